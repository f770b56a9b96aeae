// Package sensing runs the two timed camera phases that follow an accident
// marker: locking the occupant count, then watching for movement.
package sensing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/monitoring"
	"github.com/banshee-data/lifeguard/internal/timeutil"
	"github.com/banshee-data/lifeguard/internal/vision"
)

// Defaults for the phase windows.
const (
	DefaultLockDuration    = 3 * time.Second
	DefaultMonitorDuration = 10 * time.Second
	DefaultRetryInterval   = 50 * time.Millisecond
)

// Phase holds what both sensing phases share: a frame source, somewhere to
// show annotated frames, the clock that bounds them and the window length.
type Phase struct {
	Source   vision.Source
	Display  vision.Display
	Clock    timeutil.Clock
	Duration time.Duration
	// Retry is the pause after a failed frame read.
	Retry  time.Duration
	Logger *zap.Logger
}

func (p Phase) normalize(defaultDuration time.Duration) Phase {
	if p.Display == nil {
		p.Display = vision.NopDisplay{}
	}
	if p.Clock == nil {
		p.Clock = timeutil.RealClock{}
	}
	if p.Duration <= 0 {
		p.Duration = defaultDuration
	}
	if p.Retry <= 0 {
		p.Retry = DefaultRetryInterval
	}
	p.Logger = monitoring.OrNop(p.Logger)
	return p
}

// PassengerLock converges on an occupant count by taking the largest count
// seen across a fixed window. A single frame can miss an occluded or blurred
// occupant; the window maximum does not.
type PassengerLock struct {
	phase    Phase
	detector vision.OccupantDetector
}

// NewPassengerLock returns a lock phase. A zero Duration uses
// DefaultLockDuration.
func NewPassengerLock(phase Phase, detector vision.OccupantDetector) *PassengerLock {
	return &PassengerLock{phase: phase.normalize(DefaultLockDuration), detector: detector}
}

// Run samples frames until the window elapses. Failed reads are skipped.
// LockedCount never decreases during a run.
func (p *PassengerLock) Run(ctx context.Context) accident.LockResult {
	var res accident.LockResult
	deadline := timeutil.NewDeadline(p.phase.Clock, p.phase.Duration)

	for !deadline.Expired() && ctx.Err() == nil {
		frame, err := p.phase.Source.ReadFrame(ctx)
		if err != nil {
			p.phase.Logger.Debug("lock: frame skipped", zap.Error(err))
			deadline.Pause(p.phase.Retry)
			continue
		}

		boxes := p.detector.Detect(vision.Grayscale(frame.Image))
		sample := accident.Sample{Kind: accident.OccupantCount, Value: len(boxes), At: frame.Captured}
		res.Frames++
		res.LockedCount = max(res.LockedCount, sample.Value)

		p.phase.Display.Show(frame, vision.Overlay{
			Lines:    []vision.OverlayLine{{Text: fmt.Sprintf("Locking Passengers: %d", res.LockedCount), Color: vision.Blue}},
			Boxes:    boxes,
			BoxColor: vision.Blue,
		})
	}

	p.phase.Logger.Info("passenger count locked",
		zap.Int("locked_count", res.LockedCount),
		zap.Int("frames", res.Frames),
		zap.Duration("elapsed", deadline.Elapsed()))
	return res
}
