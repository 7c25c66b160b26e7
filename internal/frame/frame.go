// Package frame defines the raw video frame passed from the browser capture
// to the encoder, and the decoding of screencast payloads into it.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"time"

	// Screencast payloads are JPEG; PNG is registered for completeness since
	// the DevTools protocol allows either format.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Frame is a single captured video frame in packed RGB24 layout, exactly
// Width*Height*3 bytes. Frames are produced by the browser capture and
// consumed by the encoder within one cadence tick; they are never queued.
type Frame struct {
	Width     int
	Height    int
	Timestamp time.Time
	Data      []byte
}

// Size returns the expected byte length of the pixel buffer.
func (f *Frame) Size() int {
	return f.Width * f.Height * 3
}

// Decode converts a compressed screencast payload into an RGB24 frame of
// exactly the target dimensions, scaling when the browser delivered a
// different size (Chromium caps screencast frames to the physical surface,
// which may differ from the requested viewport during resizes).
func Decode(payload []byte, targetWidth, targetHeight int) (*Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screencast payload: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != targetWidth || bounds.Dy() != targetHeight {
		scaled := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled
	}

	return &Frame{
		Width:     targetWidth,
		Height:    targetHeight,
		Timestamp: time.Now(),
		Data:      packRGB(img, targetWidth, targetHeight),
	}, nil
}

// packRGB flattens an image into packed RGB24 bytes, dropping alpha.
func packRGB(img image.Image, width, height int) []byte {
	if rgba, ok := img.(*image.RGBA); ok {
		return packFromRGBA(rgba, width, height)
	}

	data := make([]byte, 0, width*height*3)
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Min.Y+height; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+width; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			data = append(data, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	return data
}

// packFromRGBA is the fast path for the common RGBA case, copying rows
// without per-pixel interface calls.
func packFromRGBA(img *image.RGBA, width, height int) []byte {
	data := make([]byte, width*height*3)
	di := 0
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			si := x * 4
			data[di] = row[si]
			data[di+1] = row[si+1]
			data[di+2] = row[si+2]
			di += 3
		}
	}
	return data
}
