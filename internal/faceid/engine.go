package faceid

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/fault"
)

// Status describes the health of the model subsystem.
type Status string

const (
	StatusHealthy       Status = "healthy"
	StatusDegraded      Status = "degraded"
	StatusModelsMissing Status = "models_missing"
	StatusError         Status = "error"
)

// Engine detects faces and produces identity embeddings. It verifies model
// files once at initialization and refuses all detection calls if that
// verification fails.
type Engine struct {
	recognizer Recognizer
	modelDir   string
	dim        int

	initOnce sync.Once
	mu       sync.Mutex
	initErr  error
}

// NewEngine creates an engine backed by the given recognizer. modelDir holds
// the model manifests and weights checked at init; dim is the embedding
// dimension this process accepts (128 or 512).
func NewEngine(recognizer Recognizer, modelDir string, dim int) *Engine {
	return &Engine{
		recognizer: recognizer,
		modelDir:   modelDir,
		dim:        dim,
	}
}

// Init verifies model integrity and recognizer reachability. It is memoized:
// repeated calls return the first result. A failed Init is fatal; the engine
// stays unusable until the process restarts.
func (e *Engine) Init(ctx context.Context) error {
	e.initOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, constants.ModelInitTimeout)
		defer cancel()
		e.setInitErr(e.verify(ctx))
	})
	return e.loadInitErr()
}

// verify runs the one-time startup checks.
func (e *Engine) verify(ctx context.Context) error {
	if e.dim != 128 && e.dim != 512 {
		return fmt.Errorf("unsupported embedding dimension %d (must be 128 or 512)", e.dim)
	}
	if err := verifyModelDir(e.modelDir); err != nil {
		return fmt.Errorf("model verification failed: %w", err)
	}
	if err := e.recognizer.Ping(ctx); err != nil {
		return fmt.Errorf("recognizer check failed: %w", err)
	}
	return nil
}

// initErr is read by Health, which may run concurrently with the first Init,
// so access goes through the mutex.
func (e *Engine) setInitErr(err error) {
	e.mu.Lock()
	e.initErr = err
	e.mu.Unlock()
}

func (e *Engine) loadInitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

// Dim returns the embedding dimension this engine accepts.
func (e *Engine) Dim() int {
	return e.dim
}

// Health reports the current subsystem status without triggering init.
func (e *Engine) Health(ctx context.Context) (Status, string) {
	if e.modelDir == "" {
		return StatusModelsMissing, "model directory is not configured"
	}
	if err := verifyModelDir(e.modelDir); err != nil {
		return StatusModelsMissing, err.Error()
	}
	if e.loadInitErr() != nil {
		return StatusError, "model subsystem failed to initialize"
	}
	if err := e.recognizer.Ping(ctx); err != nil {
		return StatusDegraded, "recognizer is unreachable"
	}
	return StatusHealthy, "all models loaded"
}

// DetectFaces validates, preprocesses, and scans an image, returning every
// face the model accepts. It fails with NO_FACE_DETECTED when the image
// contains none.
func (e *Engine) DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error) {
	if err := e.Init(ctx); err != nil {
		return nil, fault.Wrap(fault.CodeFaceDetectionFailed, "face detection is unavailable", err)
	}

	prepared, err := Preprocess(imageData, constants.MaxDetectionSize)
	if err != nil {
		return nil, fault.Wrap(fault.CodeValidation, "image could not be processed", err)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DetectionTimeout)
	defer cancel()

	detections, err := e.recognizer.Detect(ctx, prepared)
	if err != nil {
		return nil, fault.Wrap(fault.CodeFaceDetectionFailed, "face detection failed", err)
	}

	valid := detections[:0]
	for _, d := range detections {
		if err := e.validateDetection(d); err != nil {
			return nil, err
		}
		valid = append(valid, d)
	}

	if len(valid) == 0 {
		return nil, fault.New(fault.CodeNoFaceDetected, "no face detected in the image")
	}
	return valid, nil
}

// GenerateEmbedding detects faces and returns the embedding of the most
// prominent one: largest bounding box, ties broken by higher confidence,
// then first encountered.
func (e *Engine) GenerateEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	detections, err := e.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}
	best := SelectPrimary(detections)
	return best.Embedding, nil
}

// SelectPrimary picks the most prominent face from a non-empty detection
// list: maximum bounding-box area, then confidence, then first encountered.
func SelectPrimary(detections []Detection) Detection {
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Box.Area() > best.Box.Area() {
			best = d
			continue
		}
		if d.Box.Area() == best.Box.Area() && d.Confidence > best.Confidence {
			best = d
		}
	}
	return best
}

// validateDetection enforces the embedding invariants on a single face.
func (e *Engine) validateDetection(d Detection) error {
	if len(d.Embedding) != e.dim {
		return fault.Newf(fault.CodeValidation, "unexpected embedding dimension %d", len(d.Embedding))
	}
	for _, v := range d.Embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fault.New(fault.CodeValidation, "embedding contains non-finite values")
		}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fault.New(fault.CodeValidation, "detection confidence out of range")
	}
	return nil
}

// manifest mirrors the model manifest layout on disk.
type manifest struct {
	WeightsManifest []struct {
		Paths []string `json:"paths"`
	} `json:"weightsManifest"`
}

// verifyModelDir checks that every manifest in the directory parses and that
// every weight file it references falls in a plausible size range.
func verifyModelDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("model directory not configured")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot read model directory: %w", err)
	}

	manifests := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		manifests++

		data, err := os.ReadFile(filepath.Join(dir, entry.Name())) //nolint:gosec // path built from configured model dir
		if err != nil {
			return fmt.Errorf("cannot read manifest %s: %w", entry.Name(), err)
		}

		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("manifest %s is not valid JSON: %w", entry.Name(), err)
		}
		if m.WeightsManifest == nil {
			return fmt.Errorf("manifest %s has no weightsManifest array", entry.Name())
		}

		for _, group := range m.WeightsManifest {
			for _, path := range group.Paths {
				if err := verifyWeightFile(filepath.Join(dir, filepath.Base(path))); err != nil {
					return err
				}
			}
		}
	}

	if manifests == 0 {
		return fmt.Errorf("no model manifests found in %s", dir)
	}
	return nil
}

// verifyWeightFile checks a binary weight file exists with a plausible size.
func verifyWeightFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("missing weight file %s: %w", filepath.Base(path), err)
	}
	if info.Size() < constants.MinWeightFileSize || info.Size() > constants.MaxWeightFileSize {
		return fmt.Errorf("weight file %s has implausible size %d", filepath.Base(path), info.Size())
	}
	return nil
}
