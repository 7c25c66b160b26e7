package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeMatchingSize(t *testing.T) {
	payload := encodePNG(t, 64, 32, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	f, err := Decode(payload, 64, 32)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if f.Width != 64 || f.Height != 32 {
		t.Errorf("Expected 64x32, got %dx%d", f.Width, f.Height)
	}
	if len(f.Data) != f.Size() {
		t.Errorf("Expected %d bytes, got %d", f.Size(), len(f.Data))
	}
	if f.Timestamp.IsZero() {
		t.Error("Expected a non-zero timestamp")
	}

	// Solid red in packed RGB24: every triple is (255, 0, 0).
	if f.Data[0] != 255 || f.Data[1] != 0 || f.Data[2] != 0 {
		t.Errorf("Expected first pixel (255,0,0), got (%d,%d,%d)", f.Data[0], f.Data[1], f.Data[2])
	}
	last := len(f.Data) - 3
	if f.Data[last] != 255 || f.Data[last+1] != 0 || f.Data[last+2] != 0 {
		t.Errorf("Expected last pixel (255,0,0), got (%d,%d,%d)", f.Data[last], f.Data[last+1], f.Data[last+2])
	}
}

func TestDecodeScalesToTarget(t *testing.T) {
	payload := encodePNG(t, 100, 50, color.RGBA{R: 0, G: 128, B: 255, A: 255})

	f, err := Decode(payload, 64, 32)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if f.Width != 64 || f.Height != 32 {
		t.Errorf("Expected frame scaled to 64x32, got %dx%d", f.Width, f.Height)
	}
	if len(f.Data) != 64*32*3 {
		t.Errorf("Expected %d bytes after scaling, got %d", 64*32*3, len(f.Data))
	}
}

func TestDecodeJPEGPayload(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("Failed to encode test JPEG: %v", err)
	}

	f, err := Decode(buf.Bytes(), 32, 32)
	if err != nil {
		t.Fatalf("Decode failed on JPEG payload: %v", err)
	}
	if len(f.Data) != 32*32*3 {
		t.Errorf("Expected %d bytes, got %d", 32*32*3, len(f.Data))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("definitely not an image"), 64, 32); err == nil {
		t.Error("Expected an error for an undecodable payload")
	}
}
