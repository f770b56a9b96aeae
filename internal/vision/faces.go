package vision

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// OccupantDetector finds occupants in a grayscale frame. The number of
// detections is the frame's occupant count.
type OccupantDetector interface {
	Detect(gray *image.Gray) []image.Rectangle
}

// PigoParams tunes the pixel-intensity-comparison face detector.
type PigoParams struct {
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	MinQuality   float32
	IoUThreshold float64
}

// DefaultPigoParams are suitable for a dashboard camera at 640x480.
func DefaultPigoParams() PigoParams {
	return PigoParams{
		MinSize:      40,
		MaxSize:      640,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		MinQuality:   5.0,
		IoUThreshold: 0.2,
	}
}

// PigoDetector detects frontal faces with a pigo cascade.
type PigoDetector struct {
	classifier *pigo.Pigo
	params     PigoParams
}

// LoadPigoDetector unpacks the cascade file at path.
func LoadPigoDetector(path string, params PigoParams) (*PigoDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade %s: %w", path, err)
	}
	return &PigoDetector{classifier: classifier, params: params}, nil
}

// Detect implements OccupantDetector.
func (d *PigoDetector) Detect(gray *image.Gray) []image.Rectangle {
	cols, rows := gray.Rect.Dx(), gray.Rect.Dy()
	pixels := gray.Pix
	if gray.Stride != cols {
		pixels = make([]uint8, 0, cols*rows)
		for y := 0; y < rows; y++ {
			pixels = append(pixels, gray.Pix[y*gray.Stride:y*gray.Stride+cols]...)
		}
	}

	cp := pigo.CascadeParams{
		MinSize:     d.params.MinSize,
		MaxSize:     d.params.MaxSize,
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := d.classifier.RunCascade(cp, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.params.IoUThreshold)

	var boxes []image.Rectangle
	for _, det := range dets {
		if det.Q < d.params.MinQuality {
			continue
		}
		half := det.Scale / 2
		boxes = append(boxes, image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half))
	}
	return boxes
}
