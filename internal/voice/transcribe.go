package voice

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/monitoring"
)

// Recorder captures audio from the cabin microphone into a WAV file.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) (path string, err error)
}

// ArecordRecorder records 16 kHz mono WAV with ALSA's arecord.
type ArecordRecorder struct {
	// Device is the ALSA capture device; empty uses the default.
	Device string
	Dir    string
	Run    Runner
}

// Record implements Recorder. The caller removes the returned file.
func (r ArecordRecorder) Record(ctx context.Context, d time.Duration) (string, error) {
	run := r.Run
	if run == nil {
		run = ExecRunner
	}
	f, err := os.CreateTemp(r.Dir, "reply-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create recording: %w", err)
	}
	path := f.Name()
	f.Close()

	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	args := []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-d", strconv.Itoa(secs)}
	if r.Device != "" {
		args = append(args, "-D", r.Device)
	}
	args = append(args, path)
	if err := run(ctx, "arecord", args...); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to record reply: %w", err)
	}
	return path, nil
}

// TranscriptionOptions configures a TranscriptionListener.
type TranscriptionOptions struct {
	// BaseURL of an OpenAI-compatible speech-to-text API.
	BaseURL string
	APIKey  string
	Model   string
	// RequestTimeout bounds the upload and recognition request.
	RequestTimeout time.Duration
	Language       string
}

const transcriptionPath = "/v1/audio/transcriptions"

type transcription struct {
	Text string `json:"text"`
}

type transcriptionError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// TranscriptionListener records a reply and sends it to a speech-to-text
// service. Recording is bounded by the listen timeout and recognition by
// RequestTimeout.
type TranscriptionListener struct {
	recorder Recorder
	client   *resty.Client
	opts     TranscriptionOptions
	logger   *zap.Logger
}

// NewTranscriptionListener returns a listener that records with recorder and
// transcribes over HTTP.
func NewTranscriptionListener(recorder Recorder, opts TranscriptionOptions, logger *zap.Logger) *TranscriptionListener {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.Model == "" {
		opts.Model = "whisper-1"
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.RequestTimeout).
		SetError(&transcriptionError{})
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	return &TranscriptionListener{
		recorder: recorder,
		client:   client,
		opts:     opts,
		logger:   monitoring.OrNop(logger),
	}
}

// Listen implements Listener.
func (l *TranscriptionListener) Listen(ctx context.Context, timeout time.Duration) (string, bool) {
	recCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	path, err := l.recorder.Record(recCtx, timeout)
	cancel()
	if err != nil {
		l.logger.Warn("listen: recording failed", zap.Error(err))
		return "", false
	}
	defer os.Remove(path)

	text, err := l.Transcribe(ctx, path)
	if err != nil {
		l.logger.Warn("listen: transcription failed", zap.Error(err))
		return "", false
	}
	reply, ok := Normalize(text)
	l.logger.Info("passenger response", zap.String("reply", reply), zap.Bool("recognised", ok))
	return reply, ok
}

// Transcribe uploads the WAV file at path and returns the recognised text.
func (l *TranscriptionListener) Transcribe(ctx context.Context, path string) (string, error) {
	form := map[string]string{
		"model":           l.opts.Model,
		"response_format": "json",
	}
	if l.opts.Language != "" {
		form["language"] = l.opts.Language
	}
	var out transcription
	resp, err := l.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(form).
		SetResult(&out).
		Post(transcriptionPath)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if e, ok := resp.Error().(*transcriptionError); ok && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return "", fmt.Errorf("transcription of %s rejected: %s", filepath.Base(path), msg)
	}
	return out.Text, nil
}
