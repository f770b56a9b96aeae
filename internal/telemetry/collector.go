package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/monitoring"
	"github.com/banshee-data/lifeguard/internal/timeutil"
)

// CollectResult describes how a field collection window ended.
type CollectResult struct {
	// Applied counts the recognised field updates written to the event.
	Applied int
	// Complete is true when END_PACKET arrived before the window elapsed.
	Complete bool
	Elapsed  time.Duration
}

// Collector reads the fields that follow an accident marker.
type Collector struct {
	link   Link
	clock  timeutil.Clock
	window time.Duration
	poll   time.Duration
	logger *zap.Logger
}

// NewCollector returns a collector that reads from link for at most window,
// pausing for poll whenever the link has nothing buffered.
func NewCollector(link Link, clock timeutil.Clock, window, poll time.Duration, logger *zap.Logger) *Collector {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Collector{
		link:   link,
		clock:  clock,
		window: window,
		poll:   poll,
		logger: monitoring.OrNop(logger),
	}
}

// Collect applies field updates to ev until END_PACKET, the window elapses,
// or ctx is cancelled. Fields that never arrive keep their defaults; a partial
// packet is not an error.
func (c *Collector) Collect(ctx context.Context, ev *accident.Event) CollectResult {
	var res CollectResult
	deadline := timeutil.NewDeadline(c.clock, c.window)

	for !deadline.Expired() && ctx.Err() == nil {
		line, ok := c.link.TryReadLine()
		if !ok {
			deadline.Pause(c.poll)
			continue
		}

		msg := Classify(line)
		c.logger.Debug("telemetry data", zap.String("line", msg.Raw), zap.Stringer("kind", msg.Kind))

		switch msg.Kind {
		case EndOfPacket:
			res.Complete = true
			res.Elapsed = deadline.Elapsed()
			return res
		case FieldUpdate:
			if Apply(ev, msg) {
				res.Applied++
			}
		}
	}

	res.Elapsed = deadline.Elapsed()
	c.logger.Info("field collection window elapsed",
		zap.String("incident_id", ev.ID),
		zap.Int("applied", res.Applied),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

// Apply writes a recognised field update to ev and reports whether it did.
// Unknown keys and empty values are ignored.
func Apply(ev *accident.Event, msg Message) bool {
	if !msg.Known() || msg.Value == "" {
		return false
	}
	switch msg.Key {
	case KeyLatitude:
		ev.Latitude = msg.Value
	case KeyLongitude:
		ev.Longitude = msg.Value
	case KeyImpactType:
		ev.ImpactType = msg.Value
	}
	return true
}
