package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-finder/internal/faceid"
	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/session"
)

// makeJPEG encodes a small gradient JPEG for upload fixtures.
func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}

// testEmbeddingVec builds a valid embedding for detections and sessions.
func testEmbeddingVec() []float32 {
	emb := make([]float32, 128)
	for i := range emb {
		emb[i] = float32(i%5)*0.2 + 0.05
	}
	return emb
}

// newTestStore creates a session store rooted in a test temp directory.
func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	store := session.NewStore(t.TempDir())
	t.Cleanup(store.Close)
	return store
}

// fakeEngine is a scripted FaceEngine.
type fakeEngine struct {
	detections []faceid.Detection
	detectErr  error
	status     faceid.Status
	details    string
}

func (f *fakeEngine) DetectFaces(ctx context.Context, imageData []byte) ([]faceid.Detection, error) {
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.detections, nil
}

func (f *fakeEngine) Health(ctx context.Context) (faceid.Status, string) {
	return f.status, f.details
}

func oneFaceEngine() *fakeEngine {
	return &fakeEngine{
		detections: []faceid.Detection{
			{Box: faceid.BoundingBox{X: 10, Y: 10, Width: 40, Height: 40}, Embedding: testEmbeddingVec(), Confidence: 0.99},
		},
		status:  faceid.StatusHealthy,
		details: "all models loaded",
	}
}

// postJSON serves a JSON-encoded POST through the given handler func.
func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// postJSONFrom is postJSON with an explicit remote address.
func postJSONFrom(t *testing.T, handler http.HandlerFunc, body any, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertErrorCode checks that the response carries the error envelope with
// the expected code.
func assertErrorCode(t *testing.T, recorder *httptest.ResponseRecorder, expected fault.Code) {
	t.Helper()
	var envelope errorEnvelope
	parseJSONResponse(t, recorder, &envelope)
	if envelope.Success {
		t.Errorf("expected success=false\nBody: %s", recorder.Body.String())
	}
	if envelope.Error.Code != expected {
		t.Errorf("expected error code %s, got %s", expected, envelope.Error.Code)
	}
}
