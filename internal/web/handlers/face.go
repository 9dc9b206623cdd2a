package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/faceid"
	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/guard"
	"github.com/kozaktomas/face-finder/internal/session"
	"github.com/kozaktomas/face-finder/internal/similarity"
	"github.com/kozaktomas/face-finder/internal/web/middleware"
)

// FaceEngine is the face detection capability the handlers need.
type FaceEngine interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]faceid.Detection, error)
	Health(ctx context.Context) (faceid.Status, string)
}

// FaceHandler covers image ingestion and session lifecycle operations.
type FaceHandler struct {
	engine FaceEngine
	store  *session.Store
}

// NewFaceHandler creates a new face handler.
func NewFaceHandler(engine FaceEngine, store *session.Store) *FaceHandler {
	return &FaceHandler{engine: engine, store: store}
}

type processImageRequest struct {
	ImageData []byte `json:"imageData"`
	MimeType  string `json:"mimeType,omitempty"`
}

type processImageResponse struct {
	Success      bool      `json:"success"`
	FaceDetected bool      `json:"faceDetected"`
	SearchID     string    `json:"searchId"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// ProcessImage validates an uploaded image, detects the primary face, and
// opens a search session around its embedding.
func (h *FaceHandler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	var req processImageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFault(w, err)
		return
	}

	resp, err := h.process(r.Context(), req.ImageData, req.MimeType, middleware.ClientIP(r))
	if err != nil {
		respondFault(w, err)
		return
	}
	if !middleware.IsLoopback(r) {
		resp.Embedding = nil
	}
	respondJSON(w, http.StatusOK, resp)
}

// process runs the full ingest chain. No session exists until every step has
// succeeded, so a rejected image leaves no state behind.
func (h *FaceHandler) process(ctx context.Context, data []byte, mimeType, ip string) (processImageResponse, error) {
	if _, err := guard.ValidateImage(data, mimeType); err != nil {
		return processImageResponse{}, err
	}

	faces, err := h.engine.DetectFaces(ctx, data)
	if err != nil {
		return processImageResponse{}, err
	}

	primary := faceid.SelectPrimary(faces)
	sess, err := h.store.Create(primary.Embedding, constants.DefaultThreshold, ip)
	if err != nil {
		return processImageResponse{}, err
	}

	normalized, err := faceid.Preprocess(data, constants.MaxDetectionSize)
	if err != nil {
		h.store.DeleteSession(sess.ID, ip)
		return processImageResponse{}, fault.Wrap(fault.CodeProcessingFailed, "could not process image", err)
	}
	if _, err := h.store.StoreImage(sess.ID, normalized, ip); err != nil {
		h.store.DeleteSession(sess.ID, ip)
		return processImageResponse{}, err
	}

	log.Printf("opened search session %s for %s", sess.ID, sanitizeForLog(ip))
	return processImageResponse{
		Success:      true,
		FaceDetected: true,
		SearchID:     sess.ID,
		Embedding:    primary.Embedding,
	}, nil
}

type sessionRequest struct {
	SearchID string `json:"searchId"`
}

type sessionView struct {
	SearchID  string             `json:"searchId"`
	Status    session.Status     `json:"status"`
	Threshold float64            `json:"threshold"`
	CreatedAt string             `json:"createdAt"`
	ExpiresAt string             `json:"expiresAt"`
	Results   []similarity.Match `json:"results"`
}

type getSessionResponse struct {
	Success bool        `json:"success"`
	Session sessionView `json:"session"`
}

// GetSession returns a snapshot of the session. The embedding never leaves
// the server.
func (h *FaceHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFault(w, err)
		return
	}

	sess, err := h.store.Get(req.SearchID, middleware.ClientIP(r))
	if err != nil {
		respondFault(w, err)
		return
	}

	respondJSON(w, http.StatusOK, getSessionResponse{
		Success: true,
		Session: sessionView{
			SearchID:  sess.ID,
			Status:    sess.Status,
			Threshold: sess.Threshold,
			CreatedAt: isoTime(sess.CreatedAt),
			ExpiresAt: isoTime(sess.ExpiresAt),
			Results:   roundMatches(sess.Results),
		},
	})
}

type updateThresholdRequest struct {
	SearchID  string  `json:"searchId"`
	Threshold float64 `json:"threshold"`
}

type updateThresholdResponse struct {
	Success        bool               `json:"success"`
	UpdatedResults []similarity.Match `json:"updatedResults"`
}

// UpdateThreshold re-filters the session's stored results against a new
// threshold. No scraping or scoring happens here.
func (h *FaceHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req updateThresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFault(w, err)
		return
	}

	updated, err := h.store.UpdateThreshold(req.SearchID, req.Threshold, middleware.ClientIP(r))
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updateThresholdResponse{
		Success:        true,
		UpdatedResults: roundMatches(updated),
	})
}

// DeleteSession removes a session and its stored image. Deleting an unknown
// id succeeds, so retries are safe.
func (h *FaceHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFault(w, err)
		return
	}

	h.store.DeleteSession(req.SearchID, middleware.ClientIP(r))
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type healthCheckResponse struct {
	Success   bool          `json:"success"`
	Status    faceid.Status `json:"status"`
	Details   string        `json:"details"`
	Timestamp string        `json:"timestamp"`
}

// HealthCheck reports the state of the model subsystem.
func (h *FaceHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details := h.engine.Health(r.Context())
	respondJSON(w, http.StatusOK, healthCheckResponse{
		Success:   true,
		Status:    status,
		Details:   details,
		Timestamp: isoTime(time.Now()),
	})
}
