package faceid

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestPreprocess_DownscalesLargeImage(t *testing.T) {
	out, err := Preprocess(encodePNG(t, 2048, 1024), 1024)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	w, h := decodeDims(t, out)
	if w != 1024 || h != 512 {
		t.Errorf("expected 1024x512, got %dx%d", w, h)
	}
}

func TestPreprocess_KeepsSmallImage(t *testing.T) {
	out, err := Preprocess(encodePNG(t, 400, 300), 1024)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	w, h := decodeDims(t, out)
	if w != 400 || h != 300 {
		t.Errorf("expected 400x300, got %dx%d", w, h)
	}
}

func TestPreprocess_ConvertsToJPEG(t *testing.T) {
	out, err := Preprocess(encodePNG(t, 100, 100), 1024)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	// JPEG magic
	if len(out) < 3 || out[0] != 0xFF || out[1] != 0xD8 || out[2] != 0xFF {
		t.Error("expected JPEG output")
	}
}

func TestPreprocess_RejectsGarbage(t *testing.T) {
	if _, err := Preprocess([]byte("not an image"), 1024); err == nil {
		t.Error("expected decode error")
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name           string
		w, h           int
		maxW, maxH     int
		wantW, wantH   int
	}{
		{"fits already", 640, 480, 640, 480, 640, 480},
		{"wide", 1280, 480, 640, 480, 640, 240},
		{"tall", 480, 1280, 640, 480, 180, 480},
		{"both over", 2000, 1000, 640, 480, 640, 320},
		{"extreme ratio keeps min 1", 10000, 10, 640, 480, 640, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := FitWithin(tc.w, tc.h, tc.maxW, tc.maxH)
			if w != tc.wantW || h != tc.wantH {
				t.Errorf("FitWithin(%d,%d,%d,%d) = %dx%d; want %dx%d",
					tc.w, tc.h, tc.maxW, tc.maxH, w, h, tc.wantW, tc.wantH)
			}
		})
	}
}
