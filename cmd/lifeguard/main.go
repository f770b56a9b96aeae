package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/config"
	"github.com/banshee-data/lifeguard/internal/monitoring"
	"github.com/banshee-data/lifeguard/internal/telemetry"
	"github.com/banshee-data/lifeguard/internal/version"
)

var (
	configPath      = flag.String("config", "", "Path to JSON config file (built-in defaults when empty)")
	envFile         = flag.String("env", ".env", "Path to the .env file holding secrets")
	devMode         = flag.Bool("dev", false, "Run in dev mode: replay telemetry fixtures, log speech, type replies on stdin")
	fixtures        = flag.String("fixtures", "fixtures/accident.txt", "Telemetry fixture replayed in dev mode")
	fixtureInterval = flag.Duration("fixture-interval", 45*time.Second, "Interval between fixture replays in dev mode")
	mqttBroker      = flag.String("mqtt-broker", "", "MQTT broker URL; when set telemetry is read from MQTT instead of the serial port")
	mqttTopic       = flag.String("mqtt-topic", "lifeguard/telemetry", "MQTT topic carrying telemetry lines")
	listen          = flag.String("listen", "", "Debug server listen address (overrides debug_listen)")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.EmptyConfig(), nil
	}
	return config.LoadConfig(path)
}

func debugAddr(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.GetDebugListen()
}

// newDebugMux mounts the admin routes of the serial link, the overlay frame
// and the pipeline status.
func newDebugMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	a.serial.AttachAdminRoutes(mux)
	a.frames.AttachAdminRoutes(mux)
	a.orch.AttachAdminRoutes(mux)
	return mux
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("lifeguard %s (%s) built %s\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	secrets, err := config.LoadEnv(*envFile)
	if err != nil {
		log.Fatalf("failed to load environment: %v", err)
	}

	logger, err := monitoring.NewLogger(cfg.GetLogLevel(), cfg.GetLogFormat())
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	monitoring.Install(logger)

	logger.Info("lifeguard starting",
		zap.String("version", version.Version),
		zap.String("git_sha", version.GitSHA),
		zap.String("build_time", version.BuildTime),
		zap.Bool("dev", *devMode))

	opts := appOptions{Dev: *devMode, FixtureInterval: *fixtureInterval}
	if *mqttBroker != "" {
		host, _ := os.Hostname()
		opts.MQTT = telemetry.MQTTOptions{
			Broker:   *mqttBroker,
			ClientID: "lifeguard-" + host,
			Topic:    *mqttTopic,
			QoS:      1,
		}
	} else if *devMode {
		opts.Fixture, err = os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
	}

	a, err := buildApp(cfg, secrets, opts, logger)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("failed to monitor serial port", zap.Error(err))
			stop()
		}
		logger.Info("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("accident loop stopped", zap.Error(err))
		}
		logger.Info("accident loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    debugAddr(cfg, *listen),
			Handler: newDebugMux(a),
		}

		go func() {
			logger.Info("debug server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.Error(err))
			if err := server.Close(); err != nil {
				logger.Warn("HTTP server force close error", zap.Error(err))
			}
		}
	}()

	wg.Wait()
	logger.Info("graceful shutdown complete")
}
