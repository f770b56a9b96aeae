package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/config"
	"github.com/banshee-data/lifeguard/internal/decision"
	"github.com/banshee-data/lifeguard/internal/monitoring"
	"github.com/banshee-data/lifeguard/internal/notify"
	"github.com/banshee-data/lifeguard/internal/orchestrator"
	"github.com/banshee-data/lifeguard/internal/sensing"
	"github.com/banshee-data/lifeguard/internal/serialmux"
	"github.com/banshee-data/lifeguard/internal/telemetry"
	"github.com/banshee-data/lifeguard/internal/timeutil"
	"github.com/banshee-data/lifeguard/internal/vision"
	"github.com/banshee-data/lifeguard/internal/voice"
)

// appOptions are the command line choices that are not part of the config
// file.
type appOptions struct {
	Dev             bool
	Fixture         []byte
	FixtureInterval time.Duration
	MQTT            telemetry.MQTTOptions
	Stdin           io.Reader
}

// Startup checks, replaced in tests.
var (
	loadDetector = func(path string) (vision.OccupantDetector, error) {
		return vision.LoadPigoDetector(path, vision.DefaultPigoParams())
	}
	lookPath     = exec.LookPath
	cameraWarmup = 10 * time.Second
)

// app holds the live handles built at startup.
type app struct {
	serial  serialmux.SerialMuxInterface
	camera  *vision.MJPEGSource
	frames  *vision.FrameStore
	orch    *orchestrator.Orchestrator
	clock   timeutil.Clock
	logger  *zap.Logger
	closers []io.Closer
}

// buildApp opens every device and wires the pipeline. Any failure here is
// fatal; the orchestrator is never built over a missing collaborator.
func buildApp(cfg *config.Config, secrets *config.Secrets, opts appOptions, logger *zap.Logger) (*app, error) {
	logger = monitoring.OrNop(logger)
	a := &app{clock: timeutil.RealClock{}, logger: logger, frames: vision.NewFrameStore()}

	link, err := a.buildTelemetry(cfg, opts)
	if err != nil {
		return nil, err
	}

	source, err := a.buildCamera(cfg, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	detector, err := loadDetector(cfg.GetCascadePath())
	if err != nil {
		a.Close()
		return nil, err
	}

	speaker, listener, err := buildVoice(cfg, secrets, opts, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, whatsapp, err := buildNotifier(cfg, secrets, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	contacts := cfg.ResolveContacts(secrets)
	if len(contacts) == 0 {
		a.Close()
		return nil, errors.New("no emergency contacts configured")
	}

	phase := func(d time.Duration) sensing.Phase {
		return sensing.Phase{
			Source:   source,
			Display:  a.frames,
			Clock:    a.clock,
			Duration: d,
			Retry:    cfg.GetFrameRetryInterval(),
			Logger:   logger,
		}
	}

	a.orch, err = orchestrator.New(orchestrator.Options{
		Link:      link,
		Collector: telemetry.NewCollector(link, a.clock, cfg.GetCollectDuration(), cfg.GetPollInterval(), logger),
		Lock:      sensing.NewPassengerLock(phase(cfg.GetLockDuration()), detector),
		Monitor: sensing.NewMovementMonitor(phase(cfg.GetMonitorDuration()),
			vision.NewBlurDiff(cfg.GetBlurKernel(), cfg.GetPixelThreshold()), cfg.GetMovementThreshold()),
		Engine: decision.NewEngine(speaker, listener, cfg.GetReplyTimeout(), logger),
		Dispatcher: notify.NewDispatcher(notifier, notify.DispatcherOptions{
			Contacts: contacts,
			WhatsApp: whatsapp,
			Logger:   logger,
		}),
		Speaker:      speaker,
		Clock:        a.clock,
		PollInterval: cfg.GetPollInterval(),
		Logger:       logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildTelemetry selects the link: MQTT when a broker is given, the fixture
// replay in dev mode, the serial port otherwise. The serial mux is always
// set so its debug routes exist.
func (a *app) buildTelemetry(cfg *config.Config, opts appOptions) (telemetry.Link, error) {
	switch {
	case opts.MQTT.Broker != "":
		src, err := telemetry.DialMQTT(opts.MQTT, a.logger)
		if err != nil {
			return nil, err
		}
		a.serial = serialmux.NewDisabledSerialMux()
		a.closers = append(a.closers, src)
		return src, nil
	case opts.Dev:
		if len(opts.Fixture) == 0 {
			return nil, errors.New("dev mode requires a telemetry fixture")
		}
		a.serial = serialmux.NewMockSerialMux(opts.Fixture, opts.FixtureInterval)
	default:
		mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), serialmux.PortOptions{BaudRate: cfg.GetBaudRate()})
		if err != nil {
			return nil, err
		}
		a.serial = mux
	}
	_, lines := a.serial.Subscribe()
	return telemetry.NewChannelLink(lines), nil
}

// buildCamera prefers the MJPEG stream when camera_url is set and falls back
// to the frame directory. A stream must deliver a frame within cameraWarmup.
func (a *app) buildCamera(cfg *config.Config, opts appOptions) (vision.Source, error) {
	if url := cfg.GetCameraURL(); url != "" {
		cam := vision.NewMJPEGSource(url, cfg.GetFrameTimeout(), cfg.GetFrameWidth(), a.logger)
		a.camera = cam
		a.closers = append(a.closers, cam)
		cam.Start(context.Background())
		if err := waitForFrame(cam, cameraWarmup); err != nil {
			return nil, fmt.Errorf("camera %s is not streaming: %w", url, err)
		}
		return cam, nil
	}
	dir := cfg.GetFrameDir()
	if dir == "" {
		return nil, errors.New("no camera configured: set camera_url or frame_dir")
	}
	// ~10 fps, close to the camera the pipeline was tuned against.
	return vision.NewDirSource(dir, a.clock, 100*time.Millisecond, cfg.GetFrameWidth())
}

func waitForFrame(src vision.Source, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		if _, err := src.ReadFrame(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("no frame within %s", timeout)
		}
	}
}

// buildVoice picks the speaker and listener. Outside dev mode the speech
// command, and arecord when replies are transcribed, must be on PATH.
func buildVoice(cfg *config.Config, secrets *config.Secrets, opts appOptions, logger *zap.Logger) (voice.Speaker, voice.Listener, error) {
	var speaker voice.Speaker = voice.LogSpeaker{Logger: logger}
	if !opts.Dev {
		cmd := cfg.GetSpeakerCommand()
		if _, err := lookPath(cmd); err != nil {
			return nil, nil, fmt.Errorf("speaker command %q not available: %w", cmd, err)
		}
		if cmd == config.DefaultSpeakerCommand {
			speaker = voice.NewEspeakSpeaker(logger)
		} else {
			speaker = voice.NewCommandSpeaker(cmd, nil, voice.ExecRunner, logger)
		}
	}

	if url := cfg.GetTranscribeURL(); url != "" && !opts.Dev {
		if _, err := lookPath("arecord"); err != nil {
			return nil, nil, fmt.Errorf("recorder not available: %w", err)
		}
		return speaker, voice.NewTranscriptionListener(
			voice.ArecordRecorder{Device: cfg.GetRecordDevice()},
			voice.TranscriptionOptions{
				BaseURL: url,
				APIKey:  secrets.TranscribeKey,
				Model:   cfg.GetTranscribeModel(),
			},
			logger,
		), nil
	}
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	return speaker, voice.NewConsoleListener(stdin), nil
}

// buildNotifier returns the Twilio client when credentials are present and
// notifications are enabled, otherwise a notifier that only logs.
func buildNotifier(cfg *config.Config, secrets *config.Secrets, logger *zap.Logger) (notify.Notifier, bool, error) {
	logger = monitoring.OrNop(logger)
	if !cfg.GetNotifyEnabled() || !secrets.HasTwilio() {
		logger.Warn("notifications disabled, alerts will only be logged",
			zap.Bool("notify_enabled", cfg.GetNotifyEnabled()),
			zap.Bool("twilio_configured", secrets.HasTwilio()))
		return notify.DisabledNotifier{Logger: logger}, false, nil
	}
	client, err := notify.NewTwilioClient(secrets.Twilio)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build twilio client: %w", err)
	}
	return client, client.WhatsAppEnabled(), nil
}

// Close releases the devices opened by buildApp.
func (a *app) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	if a.serial != nil {
		err = multierr.Append(err, a.serial.Close())
	}
	return err
}
