package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/similarity"
)

func testEmbedding() []float32 {
	emb := make([]float32, 128)
	for i := range emb {
		emb[i] = float32(i%7)*0.1 + 0.01
	}
	return emb
}

func testMatches(scores ...float64) []similarity.Match {
	matches := make([]similarity.Match, 0, len(scores))
	for i, score := range scores {
		matches = append(matches, similarity.Match{
			ID:    string(rune('a' + i)),
			Score: score,
		})
	}
	return matches
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(t.TempDir())
	t.Cleanup(store.Close)
	return store
}

func assertCode(t *testing.T, err error, code fault.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if got := fault.CodeOf(err); got != code {
		t.Fatalf("expected code %s, got %s (%v)", code, got, err)
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "10.0.0.1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected non-empty session id")
	}
	if sess.Status != StatusProcessing {
		t.Fatalf("expected status %s, got %s", StatusProcessing, sess.Status)
	}
	if sess.Threshold != 0.7 {
		t.Fatalf("expected threshold 0.7, got %f", sess.Threshold)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Fatal("expected expiry after creation time")
	}
	if !sess.DeleteAfter.After(sess.ExpiresAt) {
		t.Fatal("expected hard delete deadline after expiry")
	}

	got, err := store.Get(sess.ID, "10.0.0.1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("expected session %s, got %s", sess.ID, got.ID)
	}
}

func TestStoreCreateRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Create(make([]float32, 3), 0.7, ""); err == nil {
		t.Fatal("expected error for short embedding")
	}
	if _, err := store.Create(testEmbedding(), 1.5, ""); err == nil {
		t.Fatal("expected error for out of range threshold")
	}
}

func TestStoreGetUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("does-not-exist", "")
	assertCode(t, err, fault.CodeSessionNotFound)
}

func TestStoreExpiredSessionEvictedOnRead(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Move the clock past the TTL.
	store.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	_, err = store.Get(sess.ID, "")
	assertCode(t, err, fault.CodeSessionExpired)

	// The expired read evicts the session, so the next read misses.
	_, err = store.Get(sess.ID, "")
	assertCode(t, err, fault.CodeSessionNotFound)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	store.DeleteSession(sess.ID, "")
	store.DeleteSession(sess.ID, "")

	if store.Count() != 0 {
		t.Fatalf("expected empty store, got %d sessions", store.Count())
	}
}

func TestStoreImageLifecycle(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	t.Cleanup(store.Close)

	sess, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	path, err := store.StoreImage(sess.ID, []byte("jpeg-bytes"), "")
	if err != nil {
		t.Fatalf("store image failed: %v", err)
	}
	if want := filepath.Join(dir, sess.ID+"_image.jpg"); path != want {
		t.Fatalf("expected image path %s, got %s", want, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("image file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected permissions 0600, got %o", perm)
	}

	store.DeleteSession(sess.ID, "")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected image removed after delete, got %v", err)
	}
}

func TestStoreUpdateStatus(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := store.UpdateStatus(sess.ID, StatusCompleted, ""); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	got, err := store.Get(sess.ID, "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected status %s, got %s", StatusCompleted, got.Status)
	}

	if err := store.UpdateStatus(sess.ID, StatusProcessing, ""); err == nil {
		t.Fatal("expected error for transition back to processing")
	}
}

func TestStoreUpdateResultsRequiresSortedInput(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err = store.UpdateResults(sess.ID, testMatches(0.70, 0.95), "")
	assertCode(t, err, fault.CodeValidation)

	if err := store.UpdateResults(sess.ID, testMatches(0.95, 0.70), ""); err != nil {
		t.Fatalf("update results failed: %v", err)
	}
}

func TestStoreUpdateThresholdRefilters(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.UpdateResults(sess.ID, testMatches(0.95, 0.80, 0.72), ""); err != nil {
		t.Fatalf("update results failed: %v", err)
	}

	kept, err := store.UpdateThreshold(sess.ID, 0.9, "")
	if err != nil {
		t.Fatalf("update threshold failed: %v", err)
	}
	if len(kept) != 1 || kept[0].Score != 0.95 {
		t.Fatalf("expected single match at 0.95, got %+v", kept)
	}

	// The dropped matches stay dropped: later reads must not surface
	// results below the stored threshold.
	got, err := store.Get(sess.ID, "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Threshold != 0.9 {
		t.Fatalf("expected threshold 0.9, got %f", got.Threshold)
	}
	if len(got.Results) != 1 {
		t.Fatalf("expected one stored result, got %d", len(got.Results))
	}
	for _, m := range got.Results {
		if m.Score < got.Threshold {
			t.Fatalf("stored result score %.2f below threshold %.2f", m.Score, got.Threshold)
		}
	}
}

func TestStoreAccessLogGrows(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "10.0.0.1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(sess.AccessLog) != 1 {
		t.Fatalf("expected single create entry, got %d", len(sess.AccessLog))
	}
	if sess.AccessLog[0].Operation != OpCreate {
		t.Fatalf("expected %s entry, got %s", OpCreate, sess.AccessLog[0].Operation)
	}

	first, err := store.Get(sess.ID, "10.0.0.2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second, err := store.Get(sess.ID, "10.0.0.3")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if len(second.AccessLog) != len(first.AccessLog)+1 {
		t.Fatalf("expected log to grow by one, got %d then %d", len(first.AccessLog), len(second.AccessLog))
	}
	last := second.AccessLog[len(second.AccessLog)-1]
	if last.Operation != OpRead || last.IPAddress != "10.0.0.3" {
		t.Fatalf("unexpected last entry: %+v", last)
	}
}

func TestStoreListActiveSkipsExpired(t *testing.T) {
	store := newTestStore(t)

	fresh, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	base := time.Now()
	store.now = func() time.Time { return base.Add(-time.Hour) }
	if _, err := store.Create(testEmbedding(), 0.7, ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	store.now = func() time.Time { return base }

	active := store.ListActive()
	if len(active) != 1 {
		t.Fatalf("expected one active session, got %d", len(active))
	}
	if active[0].ID != fresh.ID {
		t.Fatalf("expected session %s, got %s", fresh.ID, active[0].ID)
	}
	if store.Count() != 2 {
		t.Fatalf("expected both sessions still tracked, got %d", store.Count())
	}
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testEmbedding(), 0.7, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.UpdateResults(sess.ID, testMatches(0.9), ""); err != nil {
		t.Fatalf("update results failed: %v", err)
	}

	got, err := store.Get(sess.ID, "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.Results[0].Score = 0.1
	got.Embedding[0] = 42

	again, err := store.Get(sess.ID, "")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.Results[0].Score != 0.9 {
		t.Fatalf("caller mutation leaked into store: %f", again.Results[0].Score)
	}
	if again.Embedding[0] == 42 {
		t.Fatal("caller mutation leaked into stored embedding")
	}
}
