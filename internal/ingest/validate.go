// Package ingest validates and stages uploaded event media. Uploads are
// checked against a strict extension/MIME allowlist, written to a temp file,
// and enriched with EXIF capture metadata and an inline thumbnail before the
// enrichment pipeline takes over.
package ingest

import (
	"path/filepath"
	"strings"

	"github.com/safewatch/safewatch-server/internal/apperr"
)

// Kind distinguishes the two accepted media categories.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Upload size caps. Oversized uploads are rejected before staging completes.
const (
	MaxImageBytes = 15 << 20 // 15 MiB
	MaxAudioBytes = 25 << 20 // 25 MiB
)

// SupportedImageExtensions defines the file extensions accepted for event photos.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// SupportedAudioExtensions defines the file extensions accepted for event audio.
var SupportedAudioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".weba": "audio/webm",
	".webm": "audio/webm",
	".m4a":  "audio/mp4",
}

func allowlist(kind Kind) map[string]string {
	if kind == KindAudio {
		return SupportedAudioExtensions
	}
	return SupportedImageExtensions
}

// ValidateUpload checks an upload's filename and declared Content-Type
// against the allowlist for kind. It returns the sanitized filename and the
// canonical MIME type derived from the extension.
//
// A missing or generic Content-Type (multipart clients often send
// application/octet-stream) is accepted and replaced by the canonical type;
// a declared type that contradicts the extension is rejected.
func ValidateUpload(kind Kind, filename, declaredType string) (string, string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", "", &apperr.ValidationError{Field: "filename", Reason: "missing or invalid filename"}
	}

	ext := strings.ToLower(filepath.Ext(name))
	canonical, ok := allowlist(kind)[ext]
	if !ok {
		return "", "", &apperr.ValidationError{
			Field:  "filename",
			Reason: "unsupported " + string(kind) + " extension " + ext,
		}
	}

	declared := strings.ToLower(strings.TrimSpace(declaredType))
	// Strip any parameters, e.g. "audio/webm;codecs=opus".
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}

	switch declared {
	case "", "application/octet-stream", canonical:
		return name, canonical, nil
	}

	return "", "", &apperr.ValidationError{
		Field:  "contentType",
		Reason: declared + " does not match extension " + ext,
	}
}
