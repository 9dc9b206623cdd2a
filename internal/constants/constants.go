// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Upload and validation constants
const (
	// MaxUploadSize is the maximum accepted image size in bytes (10 MiB)
	MaxUploadSize = 10 << 20

	// ContentScanWindow is the number of leading bytes scanned for embedded payloads
	ContentScanWindow = 1024

	// MaxNulBytes is the maximum number of NUL bytes tolerated in the scan window
	MaxNulBytes = 10

	// MinAspectRatio and MaxAspectRatio bound accepted image proportions
	MinAspectRatio = 0.1
	MaxAspectRatio = 10.0
)

// Similarity constants
const (
	// MinThreshold and MaxThreshold bound the similarity threshold
	MinThreshold = 0.1
	MaxThreshold = 1.0

	// DefaultThreshold is used when a request does not specify one
	DefaultThreshold = 0.7

	// ScoreChunkSize is the number of candidates scored per chunk
	ScoreChunkSize = 10

	// EmbeddingDimSmall and EmbeddingDimLarge are the only embedding
	// lengths the models produce; everything else is rejected
	EmbeddingDimSmall = 128
	EmbeddingDimLarge = 512
)

// Embedding engine constants
const (
	// MaxDetectionSize is the maximum dimension (width or height) before detection
	MaxDetectionSize = 1024

	// DetectionTimeout is the ceiling for a single face-detection call
	DetectionTimeout = 15 * time.Second

	// ModelInitTimeout is the ceiling for model subsystem initialization
	ModelInitTimeout = 10 * time.Second

	// MinWeightFileSize and MaxWeightFileSize bound plausible model weight files
	MinWeightFileSize = 100
	MaxWeightFileSize = 50 << 20
)

// Site fetcher constants
const (
	// SiteRequestsPerSecond is the global request rate across all sites
	SiteRequestsPerSecond = 2

	// SiteMaxInFlight is the maximum number of concurrent site requests
	SiteMaxInFlight = 3

	// SiteFetchTimeout is the per-site navigation/request timeout
	SiteFetchTimeout = 10 * time.Second

	// SiteFetchRetries is the number of attempts per site
	SiteFetchRetries = 3

	// SiteRetryBackoff is the linear backoff unit between site attempts
	SiteRetryBackoff = time.Second
)

// Thumbnail pipeline constants
const (
	// DownloadWorkers is the semaphore size for thumbnail downloads
	DownloadWorkers = 3

	// DownloadTimeout is the per-thumbnail fetch timeout
	DownloadTimeout = 5 * time.Second

	// ScanBatchSize is the number of thumbnails face-scanned per batch
	ScanBatchSize = 5

	// BatchDelay is the yield between thumbnail batches
	BatchDelay = 100 * time.Millisecond

	// PipelineRetries is the number of re-attempts for failed items
	PipelineRetries = 2

	// ThumbnailMaxWidth and ThumbnailMaxHeight bound normalized thumbnails
	ThumbnailMaxWidth  = 640
	ThumbnailMaxHeight = 480

	// ThumbnailJPEGQuality is the re-encode quality for normalized thumbnails
	ThumbnailJPEGQuality = 85
)

// Session constants
const (
	// SessionTTL is how long a session stays readable after creation
	SessionTTL = 30 * time.Minute

	// SessionDeleteAfter is the hard retention ceiling for session data
	SessionDeleteAfter = 24 * time.Hour

	// SweepInterval is how often the expiry sweeper runs
	SweepInterval = 5 * time.Minute
)

// Rate limiting constants
const (
	// DefaultRateLimitWindow is the default per-client rate limit window
	DefaultRateLimitWindow = 15 * time.Minute

	// DefaultRateLimitMax is the default number of requests per window
	DefaultRateLimitMax = 100
)
