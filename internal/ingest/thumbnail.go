package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// ThumbnailMaxDimension is the maximum width or height of inline thumbnails.
// Thumbnails are stored inside the event record, so they stay small: a 256px
// JPEG at quality 75 is typically under 20KB.
const ThumbnailMaxDimension = 256

const thumbnailJPEGQuality = 75

// Thumbnail decodes a staged image and returns a downscaled JPEG copy.
// Staged temp files carry no extension, so the decoder is chosen by the
// original filename's extension. PNG inputs are re-encoded as JPEG;
// transparency flattens to black, which is acceptable for preview purposes.
func Thumbnail(path, ext string, maxDimension int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(ext) {
	case ".png":
		img, err = png.Decode(f)
	default:
		img, err = jpeg.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()
	newWidth, newHeight := thumbnailDimensions(origWidth, origHeight, maxDimension)

	out := img
	if newWidth != origWidth || newHeight != origHeight {
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int("origWidth", origWidth).
		Int("origHeight", origHeight).
		Int("newWidth", newWidth).
		Int("newHeight", newHeight).
		Int("outputSize", buf.Len()).
		Msg("Thumbnail generated")

	return buf.Bytes(), nil
}

// ThumbnailForStaged generates a thumbnail for a staged image upload. The
// ingest path treats a thumbnail failure as non-fatal; callers continue
// without one.
func ThumbnailForStaged(s *StagedFile) []byte {
	data, err := Thumbnail(s.Path, filepath.Ext(s.Name), ThumbnailMaxDimension)
	if err != nil {
		log.Warn().Err(err).Str("filename", s.Name).Msg("Thumbnail generation failed, continuing without one")
		return nil
	}
	return data
}

// thumbnailDimensions scales (width, height) down to fit maxDimension,
// preserving aspect ratio. Images already within bounds keep their size.
func thumbnailDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	if width > height {
		return maxDimension, int(float64(height) * float64(maxDimension) / float64(width))
	}
	return int(float64(width) * float64(maxDimension) / float64(height)), maxDimension
}
