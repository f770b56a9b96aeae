// Package vision turns camera frames into the two numbers the accident
// pipeline consumes: how many occupants are visible, and how much the cabin
// changed between consecutive frames.
package vision

import (
	"context"
	"errors"
	"image"
	stddraw "image/draw"
	"time"

	"golang.org/x/image/draw"
)

// ErrNoFrame is returned by a Source that had no frame ready in time.
var ErrNoFrame = errors.New("no frame available")

// Frame is one captured camera image.
type Frame struct {
	Image    image.Image
	Captured time.Time
}

// Source is a pull-based camera. A failed read is not fatal: callers skip the
// iteration and try again.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// Grayscale converts img to 8-bit luminance, reusing it when it already is.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(gray, gray.Bounds(), img, b.Min, stddraw.Src)
	return gray
}

// Downscale shrinks img so that it is at most maxWidth pixels wide, keeping
// the aspect ratio. Images already narrow enough are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
