package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/pipeline"
	"github.com/kozaktomas/face-finder/internal/scrape"
	"github.com/kozaktomas/face-finder/internal/session"
	"github.com/kozaktomas/face-finder/internal/similarity"
	"github.com/kozaktomas/face-finder/internal/web/middleware"
)

// SiteFetcher retrieves video candidates from the configured sites.
type SiteFetcher interface {
	FetchAll(ctx context.Context, sites []scrape.SiteConfig) scrape.Result
}

// MatchPipeline scans candidate thumbnails against a user embedding.
type MatchPipeline interface {
	Run(ctx context.Context, candidates []scrape.VideoCandidate, user []float32, threshold float64) ([]similarity.Match, pipeline.Stats, []string, error)
}

// VideoHandler runs the scrape-and-score flow.
type VideoHandler struct {
	store    *session.Store
	fetcher  SiteFetcher
	pipeline MatchPipeline
	sites    []scrape.SiteConfig
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(store *session.Store, fetcher SiteFetcher, matchPipeline MatchPipeline, sites []scrape.SiteConfig) *VideoHandler {
	return &VideoHandler{
		store:    store,
		fetcher:  fetcher,
		pipeline: matchPipeline,
		sites:    sites,
	}
}

type fetchFromSitesRequest struct {
	SearchID  string    `json:"searchId,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
}

type fetchFromSitesResponse struct {
	Success        bool               `json:"success"`
	Results        []similarity.Match `json:"results"`
	ProcessedSites []string           `json:"processedSites"`
	Errors         []string           `json:"errors"`
	Stats          pipeline.Stats     `json:"stats"`
}

// FetchFromSites scrapes every configured site, scans the candidate
// thumbnails, and returns matches above the threshold. Given a searchId, the
// user embedding comes from the session and the results are stored on it;
// given a raw embedding, the run is stateless. Per-site and per-candidate
// failures are collected, not fatal.
func (h *VideoHandler) FetchFromSites(w http.ResponseWriter, r *http.Request) {
	var req fetchFromSitesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFault(w, err)
		return
	}

	ip := middleware.ClientIP(r)
	embedding, threshold, err := h.resolveInput(&req, ip)
	if err != nil {
		respondFault(w, err)
		return
	}

	ctx := r.Context()
	fetched := h.fetcher.FetchAll(ctx, h.sites)

	matches, stats, scanErrors, err := h.pipeline.Run(ctx, fetched.Candidates, embedding, threshold)
	if err != nil {
		if req.SearchID != "" {
			if updateErr := h.store.UpdateStatus(req.SearchID, session.StatusError, ip); updateErr != nil {
				log.Printf("could not mark session %s as failed: %v", sanitizeForLog(req.SearchID), updateErr)
			}
		}
		respondFault(w, err)
		return
	}

	if req.SearchID != "" {
		if err := h.store.UpdateResults(req.SearchID, matches, ip); err != nil {
			respondFault(w, err)
			return
		}
		if err := h.store.UpdateStatus(req.SearchID, session.StatusCompleted, ip); err != nil {
			respondFault(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, fetchFromSitesResponse{
		Success:        true,
		Results:        roundMatches(matches),
		ProcessedSites: fetched.ProcessedSites,
		Errors:         append(append([]string{}, fetched.Errors...), scanErrors...),
		Stats:          stats,
	})
}

// resolveInput picks the embedding and threshold for the run, preferring the
// session's state when a searchId is given.
func (h *VideoHandler) resolveInput(req *fetchFromSitesRequest, ip string) ([]float32, float64, error) {
	if req.SearchID != "" {
		sess, err := h.store.Get(req.SearchID, ip)
		if err != nil {
			return nil, 0, err
		}
		threshold := sess.Threshold
		if req.Threshold != nil {
			threshold = *req.Threshold
			// Persist the override so later reads of the session see the
			// threshold the results were actually filtered with.
			if _, err := h.store.UpdateThreshold(req.SearchID, threshold, ip); err != nil {
				return nil, 0, err
			}
		}
		return sess.Embedding, threshold, nil
	}

	if len(req.Embedding) == 0 {
		return nil, 0, fault.New(fault.CodeValidation, "searchId or embedding is required")
	}
	if err := similarity.ValidateEmbedding(req.Embedding); err != nil {
		return nil, 0, err
	}
	threshold := constants.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
		if err := similarity.ValidateThreshold(threshold); err != nil {
			return nil, 0, err
		}
	}
	return req.Embedding, threshold, nil
}
