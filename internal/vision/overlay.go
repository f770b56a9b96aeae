package vision

import (
	"bytes"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/png"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lifeguard/internal/httputil"
)

// Overlay colours used by the sensing phases.
var (
	Blue   = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// OverlayLine is one line of status text drawn on a frame.
type OverlayLine struct {
	Text  string
	Color color.Color
}

// Overlay is the presentation drawn over a frame. It never feeds back into
// any phase result.
type Overlay struct {
	Lines    []OverlayLine
	Boxes    []image.Rectangle
	BoxColor color.Color
}

// Display shows annotated frames.
type Display interface {
	Show(frame Frame, ov Overlay)
}

// NopDisplay discards everything.
type NopDisplay struct{}

// Show implements Display.
func (NopDisplay) Show(Frame, Overlay) {}

// Annotate returns a copy of img with the overlay drawn on it.
func Annotate(img image.Image, ov Overlay) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)

	boxColor := ov.BoxColor
	if boxColor == nil {
		boxColor = Blue
	}
	for _, r := range ov.Boxes {
		drawRect(dst, r, boxColor, 2)
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 4
	for i, line := range ov.Lines {
		c := line.Color
		if c == nil {
			c = Green
		}
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(c),
			Face: face,
			Dot:  fixed.P(10, 20+i*lineHeight),
		}
		d.DrawString(line.Text)
	}
	return dst
}

func drawRect(dst *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	for t := 0; t < thickness; t++ {
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y+t, r.Max.X, r.Min.Y+t+1),
			image.Rect(r.Min.X, r.Max.Y-t-1, r.Max.X, r.Max.Y-t),
			image.Rect(r.Min.X+t, r.Min.Y, r.Min.X+t+1, r.Max.Y),
			image.Rect(r.Max.X-t-1, r.Min.Y, r.Max.X-t, r.Max.Y),
		}
		for _, e := range edges {
			stddraw.Draw(dst, e, src, image.Point{}, stddraw.Src)
		}
	}
}

// FrameStore is a Display that keeps the latest annotated frame so it can be
// viewed on the debug routes.
type FrameStore struct {
	mu      sync.Mutex
	latest  *image.RGBA
	updated time.Time
	shown   int
}

// NewFrameStore returns an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{}
}

// Show implements Display.
func (s *FrameStore) Show(frame Frame, ov Overlay) {
	if frame.Image == nil {
		return
	}
	annotated := Annotate(frame.Image, ov)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = annotated
	s.updated = frame.Captured
	s.shown++
}

// Latest returns the most recent annotated frame, or nil.
func (s *FrameStore) Latest() (*image.RGBA, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.updated
}

// Shown returns the number of frames displayed so far.
func (s *FrameStore) Shown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}

// AttachAdminRoutes serves the latest annotated frame as a PNG at
// /debug/frame.
func (s *FrameStore) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("frame", "latest annotated cabin frame", func(w http.ResponseWriter, r *http.Request) {
		img, captured := s.Latest()
		if img == nil {
			httputil.NotFound(w, "no frame captured yet")
			return
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			http.Error(w, "failed to encode frame", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Frame-Captured", captured.Format(time.RFC3339Nano))
		w.Write(buf.Bytes())
	})
}
