// Package guard validates uploaded image bytes before any expensive work.
// It checks size bounds, magic numbers, declared MIME consistency, embedded
// payload signatures, and image proportions.
package guard

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/fault"
)

// allowedTypes maps accepted MIME types to their filetype matchers.
var allowedTypes = map[string]matchers.Matcher{
	"image/jpeg": matchers.Jpeg,
	"image/png":  matchers.Png,
	"image/webp": matchers.Webp,
}

// textSignatures are markup/script fragments matched case-insensitively in
// the leading window of an upload.
var textSignatures = [][]byte{
	[]byte("<script"),
	[]byte("javascript:"),
	[]byte("<iframe"),
	[]byte("<object"),
	[]byte("<embed"),
}

// binarySignatures are executable magic numbers matched exactly.
var binarySignatures = [][]byte{
	{0x4D, 0x5A},             // MZ (PE executable)
	{0x7F, 0x45, 0x4C, 0x46}, // ELF
	{0xCA, 0xFE, 0xBA, 0xBE}, // Java class
}

// ValidateImage runs the full validation chain over raw upload bytes.
// declaredMIME is the content type the client claimed; an empty string skips
// the cross-check. Returns the detected MIME type on success.
func ValidateImage(data []byte, declaredMIME string) (string, error) {
	if err := ValidateSize(int64(len(data))); err != nil {
		return "", err
	}

	detected, err := detectType(data)
	if err != nil {
		return "", err
	}

	if declaredMIME != "" && declaredMIME != detected {
		return "", fault.New(fault.CodeInvalidFileType, "declared content type does not match file contents")
	}

	if err := ScanContent(data); err != nil {
		return "", err
	}

	if err := validateAspectRatio(data); err != nil {
		return "", err
	}

	return detected, nil
}

// ValidateSize enforces the upload size bounds.
func ValidateSize(size int64) error {
	if size < 1 {
		return fault.New(fault.CodeValidation, "empty file")
	}
	if size > constants.MaxUploadSize {
		return fault.New(fault.CodeFileTooLarge, "file exceeds maximum allowed size")
	}
	return nil
}

// detectType identifies the file type from magic numbers and rejects
// anything that is not JPEG, PNG, or WebP.
func detectType(data []byte) (string, error) {
	for mime, matcher := range allowedTypes {
		if matcher(data) {
			return mime, nil
		}
	}
	// Known-but-disallowed types get the file type code; unrecognized
	// content is treated as a validation failure.
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return "", fault.New(fault.CodeInvalidFileType, "unsupported file type")
	}
	return "", fault.New(fault.CodeValidation, "unrecognized file contents")
}

// ScanContent inspects the leading bytes for embedded payload signatures
// and excessive NUL bytes.
func ScanContent(data []byte) error {
	window := data
	if len(window) > constants.ContentScanWindow {
		window = window[:constants.ContentScanWindow]
	}
	lower := bytes.ToLower(window)

	for _, sig := range textSignatures {
		if bytes.Contains(lower, sig) {
			return fault.New(fault.CodeMaliciousFile, "file contains disallowed content")
		}
	}

	// Executable magic only matters at the start of the file. Matching it
	// anywhere would false-positive on compressed image entropy data.
	for _, sig := range binarySignatures {
		if bytes.HasPrefix(data, sig) {
			return fault.New(fault.CodeMaliciousFile, "file contains disallowed content")
		}
	}

	// A long run of NULs in the leading window of unrecognized data suggests
	// padding around a smuggled payload. Allowed image containers carry NULs
	// legitimately and are exempt.
	nuls := bytes.Count(window, []byte{0})
	if nuls > constants.MaxNulBytes && !isBinaryFormat(data) {
		return fault.New(fault.CodeMaliciousFile, "file contains disallowed content")
	}

	return nil
}

// isBinaryFormat reports whether the data matches an allowed image type,
// whose headers legitimately contain NUL bytes.
func isBinaryFormat(data []byte) bool {
	return matchers.Png(data) || matchers.Webp(data) || matchers.Jpeg(data)
}

// validateAspectRatio decodes only the image header and checks proportions.
func validateAspectRatio(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fault.Wrap(fault.CodeValidation, "image could not be decoded", err)
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return fault.New(fault.CodeValidation, "image has invalid dimensions")
	}
	ratio := float64(cfg.Width) / float64(cfg.Height)
	if ratio < constants.MinAspectRatio || ratio > constants.MaxAspectRatio {
		return fault.New(fault.CodeValidation, "image aspect ratio out of bounds")
	}
	return nil
}
