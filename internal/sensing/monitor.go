package sensing

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/timeutil"
	"github.com/banshee-data/lifeguard/internal/vision"
)

// DefaultMovementThreshold is the movement score above which the occupant is
// considered to be moving.
const DefaultMovementThreshold = 5000

// MovementMonitor looks for post-impact movement by scoring each frame
// against the one before it.
type MovementMonitor struct {
	phase     Phase
	scorer    vision.MotionScorer
	threshold int
}

// NewMovementMonitor returns a monitor phase. A zero Duration uses
// DefaultMonitorDuration; a non-positive threshold uses
// DefaultMovementThreshold.
func NewMovementMonitor(phase Phase, scorer vision.MotionScorer, threshold int) *MovementMonitor {
	if threshold <= 0 {
		threshold = DefaultMovementThreshold
	}
	return &MovementMonitor{
		phase:     phase.normalize(DefaultMonitorDuration),
		scorer:    scorer,
		threshold: threshold,
	}
}

// Threshold returns the latch threshold in use.
func (m *MovementMonitor) Threshold() int {
	return m.threshold
}

// Run watches for movement until the window elapses or a score strictly
// above the threshold latches detection. The first usable frame only sets
// the baseline. The baseline rolls forward after every comparison, so slow
// lighting drift is tolerated and small movements do not accumulate.
// lockedCount is shown on the overlay only.
func (m *MovementMonitor) Run(ctx context.Context, lockedCount int) accident.MonitorResult {
	var res accident.MonitorResult
	var baseline *image.Gray
	deadline := timeutil.NewDeadline(m.phase.Clock, m.phase.Duration)

	for !deadline.Expired() && ctx.Err() == nil {
		frame, err := m.phase.Source.ReadFrame(ctx)
		if err != nil {
			m.phase.Logger.Debug("monitor: frame skipped", zap.Error(err))
			deadline.Pause(m.phase.Retry)
			continue
		}

		current := m.scorer.Prepare(frame.Image)
		if baseline == nil {
			baseline = current
			continue
		}

		sample := accident.Sample{Kind: accident.MovementScore, Value: m.scorer.Score(baseline, current), At: frame.Captured}
		res.Frames++
		res.PeakScore = max(res.PeakScore, sample.Value)
		if sample.Value > m.threshold {
			res.MovementDetected = true
		}
		baseline = current

		m.phase.Display.Show(frame, vision.Overlay{
			Lines: []vision.OverlayLine{
				{Text: fmt.Sprintf("Passengers (Locked): %d", lockedCount), Color: vision.Green},
				{Text: fmt.Sprintf("Movement Score: %d", sample.Value), Color: vision.Yellow},
			},
		})

		if res.MovementDetected {
			break
		}
	}

	m.phase.Logger.Info("movement monitoring finished",
		zap.Bool("movement_detected", res.MovementDetected),
		zap.Int("peak_score", res.PeakScore),
		zap.Int("frames", res.Frames),
		zap.Duration("elapsed", deadline.Elapsed()))
	return res
}
