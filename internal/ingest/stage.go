package ingest

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/apperr"
)

// StagedFile is an accepted upload written to a temp file, ready for
// analysis and storage. Callers must Release it when done.
type StagedFile struct {
	Path        string
	Name        string // sanitized original filename
	ContentType string // canonical type from the allowlist
	Size        int64

	released bool
}

// maxBytesFor returns the size cap for a media kind.
func maxBytesFor(kind Kind) int64 {
	if kind == KindAudio {
		return MaxAudioBytes
	}
	return MaxImageBytes
}

// StageUpload validates a multipart upload and copies it to a temp file.
// Empty and oversized uploads are rejected; the temp file is cleaned up on
// any error.
func StageUpload(fh *multipart.FileHeader, kind Kind) (*StagedFile, error) {
	if fh == nil {
		return nil, &apperr.ValidationError{Field: "file", Reason: "missing upload"}
	}

	name, contentType, err := ValidateUpload(kind, fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	maxBytes := maxBytesFor(kind)
	if fh.Size > maxBytes {
		return nil, &apperr.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("upload exceeds %d byte limit", maxBytes),
		}
	}

	src, err := fh.Open()
	if err != nil {
		return nil, &apperr.StorageError{Op: "open upload", Err: err}
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "safewatch-upload-*")
	if err != nil {
		return nil, &apperr.StorageError{Op: "stage upload", Err: err}
	}

	// Copy with a hard cap so a lying Content-Length cannot blow the limit.
	written, err := io.Copy(tmp, io.LimitReader(src, maxBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, &apperr.StorageError{Op: "stage upload", Err: err}
	}
	if written == 0 {
		os.Remove(tmp.Name())
		return nil, &apperr.ValidationError{Field: "file", Reason: "empty upload"}
	}
	if written > maxBytes {
		os.Remove(tmp.Name())
		return nil, &apperr.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("upload exceeds %d byte limit", maxBytes),
		}
	}

	log.Debug().
		Str("filename", name).
		Str("contentType", contentType).
		Int64("bytes", written).
		Str("kind", string(kind)).
		Msg("Upload staged")

	return &StagedFile{
		Path:        tmp.Name(),
		Name:        name,
		ContentType: contentType,
		Size:        written,
	}, nil
}

// StageAll stages every upload in the slice, failing fast on the first
// invalid one. It returns a single release func covering all staged files,
// idempotent like StagedFile.Release; on error nothing is left behind.
func StageAll(fhs []*multipart.FileHeader, kind Kind) ([]*StagedFile, func(), error) {
	if len(fhs) == 0 {
		return nil, nil, &apperr.ValidationError{Field: "files", Reason: "no files uploaded"}
	}

	staged := make([]*StagedFile, 0, len(fhs))
	release := func() {
		for _, s := range staged {
			s.Release()
		}
	}

	for _, fh := range fhs {
		s, err := StageUpload(fh, kind)
		if err != nil {
			release()
			return nil, nil, err
		}
		staged = append(staged, s)
	}
	return staged, release, nil
}

// Bytes reads the staged file back in full.
func (s *StagedFile) Bytes() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &apperr.StorageError{Op: "read staged upload", Err: err}
	}
	return data, nil
}

// Release removes the temp file. Safe to call more than once, so callers can
// defer it and also release early on the success path.
func (s *StagedFile) Release() {
	if s == nil || s.released {
		return
	}
	s.released = true
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", s.Path).Msg("Failed to remove staged upload")
	}
}
