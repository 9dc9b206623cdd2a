// Package faceid detects faces in images and produces identity embeddings.
// Detection and recognition run in an external recognizer service; this
// package owns preprocessing, model integrity checks, and face selection.
package faceid

// BoundingBox locates a face in pixel space of the source image.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the box area in pixels.
func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Detection represents a single detected face. The embedding is internal
// state and never serialized to clients.
type Detection struct {
	Box        BoundingBox `json:"box"`
	Embedding  []float32   `json:"-"`
	Confidence float64     `json:"confidence"`
}
