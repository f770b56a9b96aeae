package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/banshee-data/lifeguard/internal/notify"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/lifeguard.defaults.json"

// Defaults used when a field is omitted.
const (
	DefaultSerialPort        = "/dev/ttyUSB0"
	DefaultBaudRate          = 9600
	DefaultCollectDuration   = 6 * time.Second
	DefaultLockDuration      = 3 * time.Second
	DefaultMonitorDuration   = 10 * time.Second
	DefaultReplyTimeout      = 10 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultFrameRetry        = 50 * time.Millisecond
	DefaultFrameTimeout      = time.Second
	DefaultMovementThreshold = 5000
	DefaultPixelThreshold    = 25
	DefaultBlurKernel        = 21
	DefaultFrameWidth        = 640
	DefaultCascadePath       = "cascade/facefinder"
	DefaultDebugListen       = "localhost:8088"
	DefaultTranscribeModel   = "whisper-1"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultSpeakerCommand    = "espeak-ng"
)

// Config is the startup configuration. It is read once and passed down;
// nothing is reloaded while running. Pointer fields distinguish "omitted"
// from a zero value, and the Get* accessors supply the defaults.
type Config struct {
	// Telemetry link
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`

	// Camera: an MJPEG stream URL, or a directory of frames in dev mode.
	CameraURL    *string `json:"camera_url,omitempty"`
	FrameDir     *string `json:"frame_dir,omitempty"`
	FrameWidth   *int    `json:"frame_width,omitempty"`
	FrameTimeout *string `json:"frame_timeout,omitempty"`
	CascadePath  *string `json:"cascade_path,omitempty"`

	// Phase windows, as duration strings like "6s".
	CollectDuration    *string `json:"collect_duration,omitempty"`
	LockDuration       *string `json:"lock_duration,omitempty"`
	MonitorDuration    *string `json:"monitor_duration,omitempty"`
	ReplyTimeout       *string `json:"reply_timeout,omitempty"`
	PollInterval       *string `json:"poll_interval,omitempty"`
	FrameRetryInterval *string `json:"frame_retry_interval,omitempty"`

	// Movement scoring
	MovementThreshold *int `json:"movement_threshold,omitempty"`
	PixelThreshold    *int `json:"pixel_threshold,omitempty"`
	BlurKernel        *int `json:"blur_kernel,omitempty"`

	// Notifications
	NotifyEnabled *bool            `json:"notify_enabled,omitempty"`
	Contacts      []notify.Contact `json:"contacts,omitempty" validate:"dive"`

	// Voice
	SpeakerCommand  *string `json:"speaker_command,omitempty"`
	RecordDevice    *string `json:"record_device,omitempty"`
	TranscribeURL   *string `json:"transcribe_url,omitempty"`
	TranscribeModel *string `json:"transcribe_model,omitempty"`

	// Ambient
	DebugListen *string `json:"debug_listen,omitempty"`
	LogLevel    *string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat   *string `json:"log_format,omitempty" validate:"omitempty,oneof=json console"`
}

var validate = validator.New()

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. Omitted fields keep their
// defaults, so partial files are fine.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	durations := map[string]*string{
		"collect_duration":     c.CollectDuration,
		"lock_duration":        c.LockDuration,
		"monitor_duration":     c.MonitorDuration,
		"reply_timeout":        c.ReplyTimeout,
		"poll_interval":        c.PollInterval,
		"frame_retry_interval": c.FrameRetryInterval,
		"frame_timeout":        c.FrameTimeout,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.MovementThreshold != nil && *c.MovementThreshold <= 0 {
		return fmt.Errorf("movement_threshold must be positive, got %d", *c.MovementThreshold)
	}
	if c.PixelThreshold != nil && (*c.PixelThreshold < 0 || *c.PixelThreshold > 255) {
		return fmt.Errorf("pixel_threshold must be between 0 and 255, got %d", *c.PixelThreshold)
	}
	if c.BlurKernel != nil && (*c.BlurKernel < 1 || *c.BlurKernel%2 == 0) {
		return fmt.Errorf("blur_kernel must be a positive odd number, got %d", *c.BlurKernel)
	}
	if c.FrameWidth != nil && *c.FrameWidth < 0 {
		return fmt.Errorf("frame_width must be non-negative, got %d", *c.FrameWidth)
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getString(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func getInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetSerialPort returns the serial device path.
func (c *Config) GetSerialPort() string { return getString(c.SerialPort, DefaultSerialPort) }

// GetBaudRate returns the serial speed.
func (c *Config) GetBaudRate() int { return getInt(c.BaudRate, DefaultBaudRate) }

// GetCameraURL returns the MJPEG stream URL, or "".
func (c *Config) GetCameraURL() string { return getString(c.CameraURL, "") }

// GetFrameDir returns the dev-mode frame directory, or "".
func (c *Config) GetFrameDir() string { return getString(c.FrameDir, "") }

// GetFrameWidth returns the width frames are downscaled to.
func (c *Config) GetFrameWidth() int { return getInt(c.FrameWidth, DefaultFrameWidth) }

// GetFrameTimeout returns how long a frame read may wait for the camera.
func (c *Config) GetFrameTimeout() time.Duration {
	return getDuration(c.FrameTimeout, DefaultFrameTimeout)
}

// GetCascadePath returns the face detection cascade file.
func (c *Config) GetCascadePath() string { return getString(c.CascadePath, DefaultCascadePath) }

// GetCollectDuration returns the field collection window.
func (c *Config) GetCollectDuration() time.Duration {
	return getDuration(c.CollectDuration, DefaultCollectDuration)
}

// GetLockDuration returns the passenger lock window.
func (c *Config) GetLockDuration() time.Duration {
	return getDuration(c.LockDuration, DefaultLockDuration)
}

// GetMonitorDuration returns the movement monitor window.
func (c *Config) GetMonitorDuration() time.Duration {
	return getDuration(c.MonitorDuration, DefaultMonitorDuration)
}

// GetReplyTimeout returns the spoken reply timeout.
func (c *Config) GetReplyTimeout() time.Duration {
	return getDuration(c.ReplyTimeout, DefaultReplyTimeout)
}

// GetPollInterval returns the idle poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return getDuration(c.PollInterval, DefaultPollInterval)
}

// GetFrameRetryInterval returns the pause after a failed frame read.
func (c *Config) GetFrameRetryInterval() time.Duration {
	return getDuration(c.FrameRetryInterval, DefaultFrameRetry)
}

// GetMovementThreshold returns the movement latch threshold.
func (c *Config) GetMovementThreshold() int {
	return getInt(c.MovementThreshold, DefaultMovementThreshold)
}

// GetPixelThreshold returns the per-pixel change threshold.
func (c *Config) GetPixelThreshold() uint8 {
	return uint8(getInt(c.PixelThreshold, DefaultPixelThreshold))
}

// GetBlurKernel returns the smoothing window size.
func (c *Config) GetBlurKernel() int { return getInt(c.BlurKernel, DefaultBlurKernel) }

// GetNotifyEnabled reports whether alerts are really sent.
func (c *Config) GetNotifyEnabled() bool {
	if c.NotifyEnabled == nil {
		return true
	}
	return *c.NotifyEnabled
}

// GetSpeakerCommand returns the text-to-speech command.
func (c *Config) GetSpeakerCommand() string {
	return getString(c.SpeakerCommand, DefaultSpeakerCommand)
}

// GetRecordDevice returns the ALSA capture device, or "" for the default.
func (c *Config) GetRecordDevice() string { return getString(c.RecordDevice, "") }

// GetTranscribeURL returns the speech-to-text API base URL, or "".
func (c *Config) GetTranscribeURL() string {
	return getString(c.TranscribeURL, "")
}

// GetTranscribeModel returns the speech-to-text model name.
func (c *Config) GetTranscribeModel() string {
	return getString(c.TranscribeModel, DefaultTranscribeModel)
}

// GetDebugListen returns the debug server address.
func (c *Config) GetDebugListen() string { return getString(c.DebugListen, DefaultDebugListen) }

// GetLogLevel returns the log level.
func (c *Config) GetLogLevel() string { return getString(c.LogLevel, DefaultLogLevel) }

// GetLogFormat returns the log encoding.
func (c *Config) GetLogFormat() string { return getString(c.LogFormat, DefaultLogFormat) }
