package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-finder/internal/session"
	"github.com/kozaktomas/face-finder/internal/similarity"
	"github.com/kozaktomas/face-finder/internal/web/middleware"
)

// SearchHandler exposes result retrieval and re-configuration.
type SearchHandler struct {
	store *session.Store
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(store *session.Store) *SearchHandler {
	return &SearchHandler{store: store}
}

type getResultsResponse struct {
	Success  bool               `json:"success"`
	Results  []similarity.Match `json:"results"`
	Status   session.Status     `json:"status"`
	Progress int                `json:"progress"`
}

// GetResults returns the session's current results and a coarse progress
// indicator derived from its status.
func (h *SearchHandler) GetResults(w http.ResponseWriter, r *http.Request) {
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

	respondJSON(w, http.StatusOK, getResultsResponse{
		Success:  true,
		Results:  roundMatches(sess.Results),
		Status:   sess.Status,
		Progress: progressFor(sess.Status),
	})
}

// progressFor maps a session status to the coarse progress scale.
func progressFor(status session.Status) int {
	switch status {
	case session.StatusCompleted:
		return 100
	case session.StatusProcessing:
		return 50
	default:
		return 0
	}
}

type configureRequest struct {
	SearchID  string  `json:"searchId"`
	Threshold float64 `json:"threshold"`
}

type configureResponse struct {
	Success bool               `json:"success"`
	Results []similarity.Match `json:"results"`
}

// Configure re-applies a new threshold to the stored results without
// re-running the site fetch.
func (h *SearchHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFault(w, err)
		return
	}

	updated, err := h.store.UpdateThreshold(req.SearchID, req.Threshold, middleware.ClientIP(r))
	if err != nil {
		respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, configureResponse{
		Success: true,
		Results: roundMatches(updated),
	})
}
