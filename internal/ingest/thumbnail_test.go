package ingest

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// writeTestImage encodes a solid-color image of the given size to a temp file.
func writeTestImage(t *testing.T, name string, width, height int, encode func(*os.File, image.Image) error) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test image: %v", err)
	}
	defer f.Close()

	if err := encode(f, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return path
}

func encodeJPEG(f *os.File, img image.Image) error { return jpeg.Encode(f, img, nil) }
func encodePNG(f *os.File, img image.Image) error  { return png.Encode(f, img) }

func TestThumbnail_DownscalesLandscape(t *testing.T) {
	path := writeTestImage(t, "wide.jpg", 1024, 512, encodeJPEG)

	data, err := Thumbnail(path, ".jpg", ThumbnailMaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	thumb, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("thumbnail is not valid JPEG: %v", err)
	}
	bounds := thumb.Bounds()
	if bounds.Dx() != ThumbnailMaxDimension {
		t.Errorf("expected width %d, got %d", ThumbnailMaxDimension, bounds.Dx())
	}
	if bounds.Dy() != ThumbnailMaxDimension/2 {
		t.Errorf("expected height %d, got %d", ThumbnailMaxDimension/2, bounds.Dy())
	}
}

func TestThumbnail_PNGBecomesJPEG(t *testing.T) {
	path := writeTestImage(t, "tall.png", 100, 400, encodePNG)

	data, err := Thumbnail(path, ".png", ThumbnailMaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	thumb, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("thumbnail is not valid JPEG: %v", err)
	}
	bounds := thumb.Bounds()
	if bounds.Dy() != ThumbnailMaxDimension {
		t.Errorf("expected height %d, got %d", ThumbnailMaxDimension, bounds.Dy())
	}
	if bounds.Dx() != 64 {
		t.Errorf("expected width 64, got %d", bounds.Dx())
	}
}

func TestThumbnail_SmallImageKeepsSize(t *testing.T) {
	path := writeTestImage(t, "small.jpg", 120, 80, encodeJPEG)

	data, err := Thumbnail(path, ".jpg", ThumbnailMaxDimension)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	thumb, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("thumbnail is not valid JPEG: %v", err)
	}
	if thumb.Bounds().Dx() != 120 || thumb.Bounds().Dy() != 80 {
		t.Errorf("small image should keep its size, got %dx%d", thumb.Bounds().Dx(), thumb.Bounds().Dy())
	}
}

func TestThumbnail_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Thumbnail(path, ".jpg", ThumbnailMaxDimension); err == nil {
		t.Error("expected decode error for non-image input")
	}
}

func TestThumbnailDimensions(t *testing.T) {
	tests := []struct {
		name                  string
		width, height         int
		wantWidth, wantHeight int
	}{
		{"landscape", 1024, 512, 256, 128},
		{"portrait", 512, 1024, 128, 256},
		{"square", 800, 800, 256, 256},
		{"within bounds", 200, 100, 200, 100},
		{"exactly max", 256, 256, 256, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := thumbnailDimensions(tt.width, tt.height, ThumbnailMaxDimension)
			if w != tt.wantWidth || h != tt.wantHeight {
				t.Errorf("got %dx%d, want %dx%d", w, h, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestExtractCapture_NoExif(t *testing.T) {
	path := writeTestImage(t, "plain.jpg", 32, 32, encodeJPEG)

	if capture := ExtractCapture(path); capture != nil {
		t.Errorf("expected nil capture for EXIF-less image, got %+v", capture)
	}
}
