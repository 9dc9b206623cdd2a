package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/web/middleware"
)

// UploadHandler is the multipart ingest endpoint used by browser clients.
// It runs the same chain as face.processImage.
type UploadHandler struct {
	face          *FaceHandler
	maxUploadSize int64
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(face *FaceHandler, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{face: face, maxUploadSize: maxUploadSize}
}

// Upload accepts multipart/form-data with an "image" field, validates the
// bytes, and opens a search session.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondFault(w, fault.New(fault.CodeFileTooLarge, "upload exceeds the size limit"))
			return
		}
		respondFault(w, fault.New(fault.CodeValidation, errInvalidRequestBody))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondFault(w, fault.New(fault.CodeValidation, "missing image field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondFault(w, fault.Wrap(fault.CodeInternal, "could not read uploaded file", err))
		return
	}

	resp, err := h.face.process(r.Context(), data, header.Header.Get("Content-Type"), middleware.ClientIP(r))
	if err != nil {
		respondFault(w, err)
		return
	}
	if !middleware.IsLoopback(r) {
		resp.Embedding = nil
	}
	respondJSON(w, http.StatusOK, resp)
}

// Health is the unauthenticated liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
