package vision

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/lifeguard/internal/timeutil"
)

// DirSource replays the images in a directory in name order, looping at the
// end. It stands in for the camera in dev mode.
type DirSource struct {
	paths    []string
	next     int
	clock    timeutil.Clock
	interval time.Duration
	maxWidth int
}

// NewDirSource lists the .png, .jpg and .jpeg files in dir. interval is slept
// before every read to approximate a camera frame rate.
func NewDirSource(dir string, clock timeutil.Clock, interval time.Duration, maxWidth int) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	sort.Strings(paths)
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DirSource{paths: paths, clock: clock, interval: interval, maxWidth: maxWidth}, nil
}

// ReadFrame implements Source.
func (d *DirSource) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if d.interval > 0 {
		d.clock.Sleep(d.interval)
	}
	path := d.paths[d.next]
	d.next = (d.next + 1) % len(d.paths)

	f, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return Frame{Image: Downscale(img, d.maxWidth), Captured: d.clock.Now()}, nil
}

// Len returns the number of frames in the loop.
func (d *DirSource) Len() int {
	return len(d.paths)
}
