package testutil

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/banshee-data/lifeguard/internal/timeutil"
	"github.com/banshee-data/lifeguard/internal/vision"
)

// FakeSource is a vision.Source returning small blank frames. Each read
// advances Clock by Step so deadline loops make progress. Reads whose index
// is in Fail return vision.ErrNoFrame.
type FakeSource struct {
	Clock *timeutil.MockClock
	Step  time.Duration
	Fail  map[int]bool

	mu    sync.Mutex
	reads int
}

// ReadFrame implements vision.Source.
func (s *FakeSource) ReadFrame(ctx context.Context) (vision.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	s.reads++
	if s.Clock != nil && s.Step > 0 {
		s.Clock.Advance(s.Step)
	}
	if err := ctx.Err(); err != nil {
		return vision.Frame{}, err
	}
	if s.Fail[i] {
		return vision.Frame{}, vision.ErrNoFrame
	}
	var at time.Time
	if s.Clock != nil {
		at = s.Clock.Now()
	}
	return vision.Frame{Image: image.NewGray(image.Rect(0, 0, 8, 8)), Captured: at}, nil
}

// Reads returns the number of ReadFrame calls, failed ones included.
func (s *FakeSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// FakeDetector returns Counts[i] boxes on its i-th call and none once the
// script runs out.
type FakeDetector struct {
	Counts []int

	mu    sync.Mutex
	calls int
}

// Detect implements vision.OccupantDetector.
func (d *FakeDetector) Detect(*image.Gray) []image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	if d.calls < len(d.Counts) {
		n = d.Counts[d.calls]
	}
	d.calls++
	boxes := make([]image.Rectangle, n)
	for i := range boxes {
		boxes[i] = image.Rect(i*10, 0, i*10+8, 8)
	}
	return boxes
}

// Calls returns the number of Detect calls.
func (d *FakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// FakeScorer returns Scores[i] on its i-th Score call and zero once the
// script runs out.
type FakeScorer struct {
	Scores []int

	mu       sync.Mutex
	prepared int
	scored   int
}

// Prepare implements vision.MotionScorer.
func (s *FakeScorer) Prepare(img image.Image) *image.Gray {
	s.mu.Lock()
	s.prepared++
	s.mu.Unlock()
	return vision.Grayscale(img)
}

// Score implements vision.MotionScorer.
func (s *FakeScorer) Score(_, _ *image.Gray) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := 0
	if s.scored < len(s.Scores) {
		v = s.Scores[s.scored]
	}
	s.scored++
	return v
}

// Prepared returns the number of frames prepared.
func (s *FakeScorer) Prepared() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared
}

// Scored returns the number of comparisons made.
func (s *FakeScorer) Scored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scored
}

// RecordingDisplay keeps every overlay it is shown.
type RecordingDisplay struct {
	mu       sync.Mutex
	overlays []vision.Overlay
}

// Show implements vision.Display.
func (d *RecordingDisplay) Show(_ vision.Frame, ov vision.Overlay) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlays = append(d.overlays, ov)
}

// Overlays returns a copy of the overlays shown so far.
func (d *RecordingDisplay) Overlays() []vision.Overlay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vision.Overlay(nil), d.overlays...)
}

// Texts returns the overlay lines of every shown frame, one slice per frame.
func (d *RecordingDisplay) Texts() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]string, len(d.overlays))
	for i, ov := range d.overlays {
		for _, l := range ov.Lines {
			out[i] = append(out[i], l.Text)
		}
	}
	return out
}

// RecordingSpeaker records spoken text.
type RecordingSpeaker struct {
	Err error

	mu     sync.Mutex
	spoken []string
}

// Speak implements voice.Speaker.
func (s *RecordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return s.Err
}

// Spoken returns everything spoken so far.
func (s *RecordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// Reply is one scripted listener result. OK false models silence or
// unintelligible speech.
type Reply struct {
	Text string
	OK   bool
}

// ScriptedListener returns Replies in order and silence once the script runs
// out. Each call advances Clock by its timeout when the reply is silence.
type ScriptedListener struct {
	Replies []Reply
	Clock   *timeutil.MockClock

	mu       sync.Mutex
	timeouts []time.Duration
}

// Listen implements voice.Listener.
func (l *ScriptedListener) Listen(_ context.Context, timeout time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := len(l.timeouts)
	l.timeouts = append(l.timeouts, timeout)
	if i >= len(l.Replies) || !l.Replies[i].OK {
		if l.Clock != nil {
			l.Clock.Advance(timeout)
		}
		return "", false
	}
	return l.Replies[i].Text, true
}

// Timeouts returns the timeout passed to each Listen call.
func (l *ScriptedListener) Timeouts() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.timeouts...)
}

// Calls returns the number of Listen calls.
func (l *ScriptedListener) Calls() int {
	return len(l.Timeouts())
}
