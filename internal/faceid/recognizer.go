package faceid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// Recognizer is the opaque face-recognition capability. Implementations
// return every face found in the supplied JPEG along with its embedding.
type Recognizer interface {
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
	Ping(ctx context.Context) error
}

// HTTPRecognizer talks to the recognizer sidecar over HTTP. The sidecar
// exposes a multipart endpoint that runs detection, landmarks, and
// recognition in one pass.
type HTTPRecognizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRecognizer creates a recognizer client for the given base URL.
func NewHTTPRecognizer(baseURL string) *HTTPRecognizer {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return &HTTPRecognizer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// faceResponse mirrors the sidecar's detection payload.
type faceResponse struct {
	FacesCount int `json:"faces_count"`
	Faces      []struct {
		FaceIndex int       `json:"face_index"`
		Dim       int       `json:"dim"`
		Embedding []float32 `json:"embedding"`
		BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
		DetScore  float64   `json:"det_score"`
	} `json:"faces"`
	Model string `json:"model"`
}

// Detect posts the image to the sidecar and converts its response into
// Detections with pixel-space bounding boxes.
func (r *HTTPRecognizer) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := r.postMultipartImage(ctx, "/detect/faces", imageData)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		detections = append(detections, Detection{
			Box:        cornerBoxToBounding(f.BBox),
			Embedding:  f.Embedding,
			Confidence: f.DetScore,
		})
	}
	return detections, nil
}

// Ping checks that the sidecar is reachable and healthy.
func (r *HTTPRecognizer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("recognizer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recognizer unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint.
func (r *HTTPRecognizer) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognizer error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// cornerBoxToBounding converts a [x1, y1, x2, y2] corner box into a
// BoundingBox, clamping origins into the image and sizes to at least 1.
func cornerBoxToBounding(bbox []float64) BoundingBox {
	if len(bbox) != 4 {
		return BoundingBox{Width: 1, Height: 1}
	}
	x := int(bbox[0])
	y := int(bbox[1])
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	w := int(bbox[2]) - x
	h := int(bbox[3]) - y
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return BoundingBox{X: x, Y: y, Width: w, Height: h}
}
