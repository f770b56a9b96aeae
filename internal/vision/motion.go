package vision

import "image"

// DefaultPixelThreshold is the per-pixel intensity change, on a 0-255
// scale, above which a pixel counts as changed.
const DefaultPixelThreshold = 25

// MotionScorer prepares comparison images and scores the change between two
// of them.
type MotionScorer interface {
	// Prepare converts a camera frame into a comparison image.
	Prepare(img image.Image) *image.Gray
	// Score counts the pixels that differ between two comparison images.
	Score(baseline, current *image.Gray) int
}

// BlurDiff is the default MotionScorer: grayscale, Gaussian smoothing, then a
// thresholded absolute difference.
type BlurDiff struct {
	blur           *Blur
	pixelThreshold uint8
}

// NewBlurDiff returns a scorer with a kernelSize×kernelSize Gaussian and the
// given per-pixel threshold.
func NewBlurDiff(kernelSize int, pixelThreshold uint8) *BlurDiff {
	return &BlurDiff{
		blur:           NewBlur(kernelSize, 0),
		pixelThreshold: pixelThreshold,
	}
}

// Prepare implements MotionScorer.
func (d *BlurDiff) Prepare(img image.Image) *image.Gray {
	return d.blur.Apply(Grayscale(img))
}

// Score implements MotionScorer.
func (d *BlurDiff) Score(baseline, current *image.Gray) int {
	return DiffCount(baseline, current, d.pixelThreshold)
}

// DiffCount returns the number of pixels whose absolute difference exceeds
// threshold. Only the overlapping area of a and b is compared.
func DiffCount(a, b *image.Gray, threshold uint8) int {
	w := min(a.Rect.Dx(), b.Rect.Dx())
	h := min(a.Rect.Dy(), b.Rect.Dy())
	count := 0
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := 0; x < w; x++ {
			d := int(ra[x]) - int(rb[x])
			if d < 0 {
				d = -d
			}
			if d > int(threshold) {
				count++
			}
		}
	}
	return count
}
