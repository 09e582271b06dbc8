package ingest

import (
	"os"
	"strings"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"

	"github.com/safewatch/safewatch-server/internal/store"
)

// ExtractCapture pulls camera metadata out of a staged image's EXIF block.
// Missing or unparseable EXIF is normal (screenshots, stripped uploads), so
// failures return nil rather than an error.
//
// The imagemeta library reads only the metadata bytes via io.ReadSeeker, not
// the whole image, which is why extraction runs on the staged file instead of
// an in-memory copy.
func ExtractCapture(path string) *store.CaptureInfo {
	file, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to open staged image for EXIF extraction")
		return nil
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("No usable EXIF metadata in image")
		return nil
	}

	capture := &store.CaptureInfo{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		capture.Latitude = gps.Latitude()
		capture.Longitude = gps.Longitude()
	}

	// Timestamp fallback chain: DateTimeOriginal > CreateDate > ModifyDate.
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		capture.TakenAt = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		capture.TakenAt = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		capture.TakenAt = exifData.ModifyDate()
	}

	if capture.TakenAt.IsZero() && capture.Latitude == 0 && capture.Longitude == 0 &&
		capture.CameraMake == "" && capture.CameraModel == "" {
		return nil
	}

	log.Debug().
		Str("path", path).
		Bool("hasGps", capture.Latitude != 0 || capture.Longitude != 0).
		Bool("hasDate", !capture.TakenAt.IsZero()).
		Msg("EXIF capture metadata extracted")
	return capture
}
