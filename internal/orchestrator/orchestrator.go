// Package orchestrator runs the accident response loop: it waits for an
// accident marker on the telemetry link, then sequences field collection,
// the two sensing phases, the decision and the alert dispatch.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/decision"
	"github.com/banshee-data/lifeguard/internal/monitoring"
	"github.com/banshee-data/lifeguard/internal/notify"
	"github.com/banshee-data/lifeguard/internal/sensing"
	"github.com/banshee-data/lifeguard/internal/telemetry"
	"github.com/banshee-data/lifeguard/internal/timeutil"
	"github.com/banshee-data/lifeguard/internal/voice"
)

// DefaultPollInterval is the idle pause when the link has nothing buffered.
const DefaultPollInterval = 100 * time.Millisecond

// PromptAccident is spoken once the accident fields have been collected.
const PromptAccident = "Accident detected. Checking passenger condition."

// Stage names reported on the status route.
const (
	StageIdle        = "idle"
	StageCollecting  = "collecting"
	StageLocking     = "locking"
	StageMonitoring  = "monitoring"
	StageDeciding    = "deciding"
	StageDispatching = "dispatching"
)

// Options wires the collaborators. Every field except Clock, PollInterval
// and Logger is required; the orchestrator is only built over live handles.
type Options struct {
	Link       telemetry.Link
	Collector  *telemetry.Collector
	Lock       *sensing.PassengerLock
	Monitor    *sensing.MovementMonitor
	Engine     *decision.Engine
	Dispatcher *notify.Dispatcher
	Speaker    voice.Speaker

	Clock        timeutil.Clock
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Incident is the record of one handled accident.
type Incident struct {
	Event   accident.Event
	Collect telemetry.CollectResult
	Lock    accident.LockResult
	Monitor accident.MonitorResult
	Outcome accident.Outcome
	Report  *notify.Report
	// Aborted is set when ctx was cancelled before a decision could be made.
	// Outcome is then the zero value and nothing was dispatched.
	Aborted  bool
	Finished time.Time
}

// Orchestrator is the single thread of control over the telemetry link, the
// camera and the voice device.
type Orchestrator struct {
	link       telemetry.Link
	collector  *telemetry.Collector
	lock       *sensing.PassengerLock
	monitor    *sensing.MovementMonitor
	engine     *decision.Engine
	dispatcher *notify.Dispatcher
	speaker    voice.Speaker
	clock      timeutil.Clock
	poll       time.Duration
	logger     *zap.Logger

	mu     sync.Mutex
	status Status
}

// New returns an orchestrator over opts.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Link == nil:
		return nil, errors.New("orchestrator: telemetry link is required")
	case opts.Collector == nil:
		return nil, errors.New("orchestrator: field collector is required")
	case opts.Lock == nil || opts.Monitor == nil:
		return nil, errors.New("orchestrator: both sensing phases are required")
	case opts.Engine == nil:
		return nil, errors.New("orchestrator: decision engine is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("orchestrator: alert dispatcher is required")
	case opts.Speaker == nil:
		return nil, errors.New("orchestrator: speaker is required")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	o := &Orchestrator{
		link:       opts.Link,
		collector:  opts.Collector,
		lock:       opts.Lock,
		monitor:    opts.Monitor,
		engine:     opts.Engine,
		dispatcher: opts.Dispatcher,
		speaker:    opts.Speaker,
		clock:      opts.Clock,
		poll:       opts.PollInterval,
		logger:     monitoring.OrNop(opts.Logger),
	}
	o.status = Status{Stage: StageIdle, Started: o.clock.Now()}
	return o, nil
}

// Run polls the link until ctx is cancelled and handles every accident
// marker it sees. Nothing is carried between accidents, so a marker that
// arrives after a suppressed accident starts a fresh run immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("waiting for accident signal", zap.Duration("poll_interval", o.poll))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := o.link.TryReadLine()
		if !ok {
			o.clock.Sleep(o.poll)
			continue
		}
		msg := telemetry.Classify(line)
		if msg.Kind != telemetry.AccidentMarker {
			o.logger.Debug("ignoring telemetry line", zap.String("line", msg.Raw), zap.Stringer("kind", msg.Kind))
			continue
		}
		o.HandleAccident(ctx)
	}
}

// HandleAccident runs the full response for one accident marker.
func (o *Orchestrator) HandleAccident(ctx context.Context) Incident {
	ev := accident.NewEvent(o.clock.Now())
	log := o.logger.With(zap.String("incident_id", ev.ID))
	log.Warn("accident mode activated")

	o.setStage(StageCollecting, ev.ID)
	inc := Incident{Collect: o.collector.Collect(ctx, ev)}

	// A window cut short by cancellation says nothing about the occupants;
	// such an incident is recorded as aborted and never decided.
	if ctx.Err() == nil {
		o.say(ctx, PromptAccident)
		o.setStage(StageLocking, ev.ID)
		inc.Lock = o.lock.Run(ctx)
		ev.PassengerCount = inc.Lock.LockedCount
	}
	if ctx.Err() == nil {
		o.setStage(StageMonitoring, ev.ID)
		inc.Monitor = o.monitor.Run(ctx, inc.Lock.LockedCount)
	}
	inc.Event = *ev
	if ctx.Err() != nil {
		inc.Aborted = true
		inc.Finished = o.clock.Now()
		log.Warn("accident handling aborted", zap.Error(ctx.Err()))
		o.record(inc)
		return inc
	}

	o.setStage(StageDeciding, ev.ID)
	inc.Outcome = o.engine.Decide(ctx, inc.Lock, inc.Monitor)
	if inc.Outcome.Escalate {
		o.setStage(StageDispatching, ev.ID)
		report := o.dispatcher.Dispatch(ctx, inc.Event)
		inc.Report = &report
		if err := report.Err(); err != nil {
			log.Error("alert dispatch incomplete", zap.String("summary", report.Summary()), zap.Error(err))
		}
	}
	inc.Finished = o.clock.Now()

	log.Info("accident handled",
		zap.Stringer("outcome", inc.Outcome),
		zap.String("impact", ev.ImpactType),
		zap.Int("passengers", ev.PassengerCount),
		zap.Bool("movement", inc.Monitor.MovementDetected))
	o.record(inc)
	return inc
}

func (o *Orchestrator) say(ctx context.Context, text string) {
	if err := o.speaker.Speak(ctx, text); err != nil {
		o.logger.Warn("prompt not spoken", zap.String("text", text), zap.Error(err))
	}
}
