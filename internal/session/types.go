// Package session holds the ephemeral server-side state for one user's
// search: their face embedding, results, and lifecycle timestamps. Sessions
// live in memory only and are purged on a bounded schedule.
package session

import (
	"time"

	"github.com/kozaktomas/face-finder/internal/similarity"
)

// Status is the lifecycle state of a search session.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Operation classifies an audit log entry.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// DataType names what kind of data an audit entry touched.
type DataType string

const (
	DataEmbedding DataType = "embedding"
	DataImage     DataType = "image"
	DataResults   DataType = "results"
)

// AccessLogEntry records one operation against a session. The log is
// append-only and never returned to unauthenticated clients.
type AccessLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	DataType  DataType  `json:"dataType"`
	Success   bool      `json:"success"`
	IPAddress string    `json:"ipAddress,omitempty"`
}

// Session is one user's ephemeral search state. The embedding and image
// path are owned exclusively by the session and released with it.
type Session struct {
	ID          string
	Embedding   []float32
	Status      Status
	Results     []similarity.Match
	Threshold   float64
	CreatedAt   time.Time
	ExpiresAt   time.Time
	DeleteAfter time.Time
	ImagePath   string
	AccessLog   []AccessLogEntry
}

// Expired reports whether the session's TTL has passed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
