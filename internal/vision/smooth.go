package vision

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultKernelSize is the side of the square smoothing window.
const DefaultKernelSize = 21

// SigmaForKernel returns the standard deviation conventionally derived from
// a kernel size when none is given: 0.3*((size-1)*0.5-1)+0.8.
func SigmaForKernel(size int) float64 {
	return 0.3*(float64(size-1)*0.5-1) + 0.8
}

// GaussianKernel returns a normalised 1-D Gaussian of odd length size.
func GaussianKernel(size int, sigma float64) []float64 {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	if sigma <= 0 {
		sigma = SigmaForKernel(size)
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma}
	radius := size / 2
	k := make([]float64, size)
	for i := range k {
		k[i] = dist.Prob(float64(i - radius))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// Blur smooths grayscale images with a separable Gaussian.
type Blur struct {
	kernel []float64
}

// NewBlur returns a Blur with a size×size window. sigma <= 0 derives the
// deviation from the size.
func NewBlur(size int, sigma float64) *Blur {
	return &Blur{kernel: GaussianKernel(size, sigma)}
}

// Apply returns a smoothed copy of src. Borders are handled by reflecting
// about the edge pixel.
func (b *Blur) Apply(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	radius := len(b.kernel) / 2
	tmp := make([]float64, w*h)

	// horizontal pass
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range b.kernel {
				acc += kv * float64(row[reflect101(x+i-radius, w)])
			}
			tmp[y*w+x] = acc
		}
	}

	// vertical pass
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for i, kv := range b.kernel {
				acc += kv * tmp[reflect101(y+i-radius, h)*w+x]
			}
			out.Pix[y*out.Stride+x] = clampUint8(acc)
		}
	}
	return out
}

// reflect101 maps an out-of-range index back into [0, n) mirroring about the
// edge pixel without repeating it (dcb|abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
