package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-finder/internal/constants"
)

// maxThumbnailBytes bounds a thumbnail response body before decode.
const maxThumbnailBytes = 5 << 20

// downloader fetches thumbnail images, normalizes them, and writes them to
// the pipeline's scratch directory.
type downloader struct {
	client  *http.Client
	scratch string
}

func newDownloader(scratchDir string) *downloader {
	return &downloader{
		client:  &http.Client{},
		scratch: scratchDir,
	}
}

// fetch downloads one thumbnail, re-encodes it to the normalized form, and
// writes it to <scratch>/<candidateID>-thumbnail.jpg. Re-encoding strips
// metadata and rejects anything that does not decode as an image.
func (d *downloader) fetch(ctx context.Context, candidateID, thumbnailURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("thumbnail fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnail fetch returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxThumbnailBytes {
		return "", fmt.Errorf("thumbnail too large (%d bytes)", resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes+1))
	if err != nil {
		return "", fmt.Errorf("could not read thumbnail: %w", err)
	}
	if len(body) > maxThumbnailBytes {
		return "", fmt.Errorf("thumbnail exceeds size limit")
	}

	normalized, err := normalizeThumbnail(body)
	if err != nil {
		return "", err
	}

	path := filepath.Join(d.scratch, candidateID+"-thumbnail.jpg")
	if err := os.WriteFile(path, normalized, 0o600); err != nil {
		return "", fmt.Errorf("could not write thumbnail: %w", err)
	}
	return path, nil
}

// normalizeThumbnail decodes an image and re-encodes it as JPEG bounded to
// the normalized thumbnail dimensions.
func normalizeThumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("thumbnail does not decode: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	opts := &jpeg.Options{Quality: constants.ThumbnailJPEGQuality}

	if width <= constants.ThumbnailMaxWidth && height <= constants.ThumbnailMaxHeight {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("could not encode thumbnail: %w", err)
		}
		return buf.Bytes(), nil
	}

	newWidth, newHeight := fitThumbnail(width, height)
	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, opts); err != nil {
		return nil, fmt.Errorf("could not encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// fitThumbnail scales dimensions into the normalized bounding box while
// keeping aspect ratio.
func fitThumbnail(width, height int) (int, int) {
	scaleW := float64(constants.ThumbnailMaxWidth) / float64(width)
	scaleH := float64(constants.ThumbnailMaxHeight) / float64(height)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	if scale > 1 {
		scale = 1
	}
	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
