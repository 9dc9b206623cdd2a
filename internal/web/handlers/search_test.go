package handlers

import (
	"net/http"
	"testing"

	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/session"
	"github.com/kozaktomas/face-finder/internal/similarity"
)

func TestGetResultsProgressTracksStatus(t *testing.T) {
	store := newTestStore(t)
	handler := NewSearchHandler(store)

	sess, err := store.Create(testEmbeddingVec(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec := postJSON(t, handler.GetResults, sessionRequest{SearchID: sess.ID})
	assertStatusCode(t, rec, http.StatusOK)

	var resp getResultsResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Progress != 50 {
		t.Fatalf("expected progress 50 while processing, got %d", resp.Progress)
	}

	if err := store.UpdateStatus(sess.ID, session.StatusCompleted, ""); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	rec = postJSON(t, handler.GetResults, sessionRequest{SearchID: sess.ID})
	parseJSONResponse(t, rec, &resp)
	if resp.Progress != 100 {
		t.Fatalf("expected progress 100 when completed, got %d", resp.Progress)
	}

	if err := store.UpdateStatus(sess.ID, session.StatusError, ""); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	rec = postJSON(t, handler.GetResults, sessionRequest{SearchID: sess.ID})
	parseJSONResponse(t, rec, &resp)
	if resp.Progress != 0 {
		t.Fatalf("expected progress 0 on error, got %d", resp.Progress)
	}
}

func TestGetResultsExpiredSession(t *testing.T) {
	store := newTestStore(t)
	handler := NewSearchHandler(store)

	// No session at all behaves like an expired and evicted one.
	rec := postJSON(t, handler.GetResults, sessionRequest{SearchID: "gone"})
	assertStatusCode(t, rec, http.StatusNotFound)
	assertErrorCode(t, rec, fault.CodeSessionNotFound)
}

func TestConfigureReturnsSubset(t *testing.T) {
	store := newTestStore(t)
	handler := NewSearchHandler(store)

	sess, err := store.Create(testEmbeddingVec(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	results := []similarity.Match{
		{ID: "a", Score: 0.95},
		{ID: "b", Score: 0.82},
		{ID: "c", Score: 0.71},
	}
	if err := store.UpdateResults(sess.ID, results, ""); err != nil {
		t.Fatalf("update results failed: %v", err)
	}

	rec := postJSON(t, handler.Configure, configureRequest{SearchID: sess.ID, Threshold: 0.8})
	assertStatusCode(t, rec, http.StatusOK)

	var resp configureResponse
	parseJSONResponse(t, rec, &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("expected two surviving matches, got %d", len(resp.Results))
	}
	if resp.Results[0].ID != "a" || resp.Results[1].ID != "b" {
		t.Fatalf("expected ordering preserved, got %+v", resp.Results)
	}
}

func TestConfigureRejectsInvalidThreshold(t *testing.T) {
	store := newTestStore(t)
	handler := NewSearchHandler(store)

	sess, err := store.Create(testEmbeddingVec(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec := postJSON(t, handler.Configure, configureRequest{SearchID: sess.ID, Threshold: 0.09999})
	assertStatusCode(t, rec, http.StatusBadRequest)
	assertErrorCode(t, rec, fault.CodeInvalidThreshold)
}
