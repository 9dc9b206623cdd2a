// Package pipeline turns video candidates into scored matches: it downloads
// thumbnails with bounded concurrency, scans them for faces, computes
// per-video best similarity, and ranks the survivors. Temporary files are
// released on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/faceid"
	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/scrape"
	"github.com/kozaktomas/face-finder/internal/similarity"
)

// Detector is the slice of the embedding engine the pipeline needs.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]faceid.Detection, error)
}

// Options tune pipeline behavior. Zero values fall back to the defaults
// from the constants package.
type Options struct {
	BatchSize       int
	DownloadWorkers int
	BatchDelay      time.Duration
	MaxRetries      int
	// SkipOnError records per-item failures and continues. Disabling it
	// escalates the first failure to a pipeline error.
	SkipOnError bool
	// OnProgress, if set, is called after each processed item with the
	// number of items done and the total.
	OnProgress func(done, total int)
}

// DefaultOptions returns the standard pipeline tuning.
func DefaultOptions() Options {
	return Options{
		BatchSize:       constants.ScanBatchSize,
		DownloadWorkers: constants.DownloadWorkers,
		BatchDelay:      constants.BatchDelay,
		MaxRetries:      constants.PipelineRetries,
		SkipOnError:     true,
	}
}

// Stats summarizes one pipeline run for observability.
type Stats struct {
	TotalProcessed   int `json:"totalProcessed"`
	FacesDetected    int `json:"facesDetected"`
	NoFacesFound     int `json:"noFacesFound"`
	ProcessingErrors int `json:"processingErrors"`
}

// Pipeline scans candidate thumbnails against a user embedding.
type Pipeline struct {
	detector Detector
	scratch  string
	opts     Options
}

// New creates a pipeline writing scratch files under tempDir/thumbnails.
func New(detector Detector, tempDir string, opts Options) *Pipeline {
	defaults := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.DownloadWorkers <= 0 {
		opts.DownloadWorkers = defaults.DownloadWorkers
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = defaults.BatchDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Pipeline{
		detector: detector,
		scratch:  scratchDir(tempDir),
		opts:     opts,
	}
}

func scratchDir(tempDir string) string {
	return filepath.Join(tempDir, "thumbnails")
}

// item tracks one candidate through the run.
type item struct {
	candidate scrape.VideoCandidate
	localPath string
	faces     []faceid.Detection
	score     float64
	err       error
	done      bool
}

// Run processes candidates against the user embedding and returns ranked
// matches at or above the threshold, run statistics, and per-item error
// strings. Thumbnails are deleted before Run returns, on every exit path.
func (p *Pipeline) Run(ctx context.Context, candidates []scrape.VideoCandidate, user []float32, threshold float64) ([]similarity.Match, Stats, []string, error) {
	var stats Stats

	if err := similarity.ValidateThreshold(threshold); err != nil {
		return nil, stats, nil, err
	}
	if err := similarity.ValidateEmbedding(user); err != nil {
		return nil, stats, nil, err
	}

	if err := os.MkdirAll(p.scratch, 0o700); err != nil {
		return nil, stats, nil, fault.Wrap(fault.CodeProcessingFailed, "could not prepare scratch directory", err)
	}

	items := make([]*item, len(candidates))
	for i := range candidates {
		items[i] = &item{candidate: candidates[i]}
	}
	// Thumbnails are scratch state owned by this run; release them no
	// matter how we leave.
	defer p.cleanup(items)

	dl := newDownloader(p.scratch)

	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		pending := pendingItems(items)
		if len(pending) == 0 {
			break
		}
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, stats, nil, ctx.Err()
			}
			// Retries only re-attempt failed items.
			for _, it := range pending {
				it.err = nil
			}
		}

		if err := p.runPass(ctx, dl, pending, user); err != nil {
			return nil, stats, nil, err
		}
	}

	var matches []similarity.Match
	var errs []string
	for _, it := range items {
		stats.TotalProcessed++
		switch {
		case it.err != nil:
			stats.ProcessingErrors++
			errs = append(errs, fmt.Sprintf("%s: %v", it.candidate.ID, it.err))
		case len(it.faces) == 0:
			stats.NoFacesFound++
		default:
			stats.FacesDetected++
			if it.score >= threshold {
				matches = append(matches, similarity.Match{
					ID:           it.candidate.ID,
					Title:        it.candidate.Title,
					ThumbnailURL: it.candidate.ThumbnailURL,
					VideoURL:     it.candidate.VideoURL,
					SourceSite:   it.candidate.SourceSite,
					Score:        it.score,
					Faces:        it.faces,
				})
			}
		}
	}

	similarity.SortMatches(matches)
	return matches, stats, errs, nil
}

// runPass executes download, scan, and score over the given items in
// batches. It honors SkipOnError and checks cancellation between batches.
func (p *Pipeline) runPass(ctx context.Context, dl *downloader, items []*item, user []float32) error {
	for start := 0; start < len(items); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + p.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		p.downloadBatch(ctx, dl, batch)
		p.scanBatch(ctx, batch, user)

		if !p.opts.SkipOnError {
			for _, it := range batch {
				if it.err != nil {
					return fault.Wrap(fault.CodeThumbnailExtraction, "thumbnail processing failed", it.err)
				}
			}
		}

		if p.opts.OnProgress != nil {
			p.opts.OnProgress(end, len(items))
		}

		// Yield between batches so site fetching and other work can run.
		if end < len(items) {
			select {
			case <-time.After(p.opts.BatchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// downloadBatch fetches thumbnails for a batch, bounded by a semaphore.
func (p *Pipeline) downloadBatch(ctx context.Context, dl *downloader, batch []*item) {
	sem := make(chan struct{}, p.opts.DownloadWorkers)
	var wg sync.WaitGroup

	for _, it := range batch {
		if it.candidate.ThumbnailURL == "" {
			it.err = fmt.Errorf("candidate has no thumbnail URL")
			continue
		}
		wg.Add(1)
		go func(it *item) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				it.err = ctx.Err()
				return
			}
			path, err := dl.fetch(ctx, it.candidate.ID, it.candidate.ThumbnailURL)
			if err != nil {
				it.err = err
				return
			}
			it.localPath = path
		}(it)
	}
	wg.Wait()
}

// scanBatch runs face detection and scoring over downloaded items.
func (p *Pipeline) scanBatch(ctx context.Context, batch []*item, user []float32) {
	for _, it := range batch {
		if it.err != nil || it.localPath == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			it.err = err
			continue
		}

		data, err := os.ReadFile(it.localPath) //nolint:gosec // path built by the pipeline itself
		if err != nil {
			it.err = fmt.Errorf("could not read thumbnail: %w", err)
			continue
		}

		faces, err := p.detector.DetectFaces(ctx, data)
		if err != nil {
			if fault.Is(err, fault.CodeNoFaceDetected) {
				// Thumbnails without faces are expected, not an error.
				it.faces = nil
				it.done = true
				continue
			}
			it.err = err
			continue
		}

		it.faces = faces
		it.score = similarity.BestMatch(user, faces)
		it.done = true
	}
}

// pendingItems returns items that have neither completed nor exhausted
// their chances.
func pendingItems(items []*item) []*item {
	var pending []*item
	for _, it := range items {
		if !it.done {
			pending = append(pending, it)
		}
	}
	return pending
}

// cleanup deletes every downloaded thumbnail. Deletion failures are logged
// and never surfaced.
func (p *Pipeline) cleanup(items []*item) {
	for _, it := range items {
		if it.localPath == "" {
			continue
		}
		if err := os.Remove(it.localPath); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to remove thumbnail %s: %v", it.localPath, err)
		}
		it.localPath = ""
	}
}
