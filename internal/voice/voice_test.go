package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Yes Please", "yes please", true},
		{"  HELP me \n", "help me", true},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestLogSpeaker(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, LogSpeaker{Logger: zap.New(core)}.Speak(context.Background(), "Stay safe."))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Stay safe.", logs.All()[0].ContextMap()["text"])

	assert.NoError(t, LogSpeaker{}.Speak(context.Background(), "no logger"))
}

func TestCommandSpeaker(t *testing.T) {
	var gotName string
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}
	s := NewCommandSpeaker("espeak-ng", []string{"-s", "150"}, run, nil)
	require.NoError(t, s.Speak(context.Background(), "Accident detected."))
	assert.Equal(t, "espeak-ng", gotName)
	assert.Equal(t, []string{"-s", "150", "Accident detected."}, gotArgs)

	// the configured args must not be aliased between calls
	require.NoError(t, s.Speak(context.Background(), "again"))
	assert.Equal(t, []string{"-s", "150"}, s.args)
}

func TestCommandSpeakerError(t *testing.T) {
	s := NewCommandSpeaker("espeak-ng", nil, func(context.Context, string, ...string) error {
		return errors.New("no audio device")
	}, nil)
	err := s.Speak(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio device")
}

// typeAfter writes line to w once Listen has had time to start waiting.
func typeAfter(w io.Writer, line string) {
	go func() {
		time.Sleep(50 * time.Millisecond)
		io.WriteString(w, line+"\n")
	}()
}

func TestConsoleListener(t *testing.T) {
	r, w := io.Pipe()
	l := NewConsoleListener(r)

	typeAfter(w, "Yes Please")
	text, ok := l.Listen(context.Background(), 2*time.Second)
	assert.True(t, ok)
	assert.Equal(t, "yes please", text)

	typeAfter(w, "")
	_, ok = l.Listen(context.Background(), 2*time.Second)
	assert.False(t, ok, "blank line is no reply")

	typeAfter(w, "no")
	text, ok = l.Listen(context.Background(), 2*time.Second)
	assert.True(t, ok)
	assert.Equal(t, "no", text)

	w.Close()
	_, ok = l.Listen(context.Background(), 2*time.Second)
	assert.False(t, ok, "closed input is no reply")
}

func TestConsoleListenerDiscardsEarlyLines(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	l := NewConsoleListener(r)

	_, err := io.WriteString(w, "yes\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(l.lines) == 1 }, time.Second, time.Millisecond)

	_, ok := l.Listen(context.Background(), 20*time.Millisecond)
	assert.False(t, ok, "a line typed before the prompt is not a reply")

	typeAfter(w, "help")
	text, ok := l.Listen(context.Background(), 2*time.Second)
	assert.True(t, ok)
	assert.Equal(t, "help", text)
}

func TestConsoleListenerTimesOut(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	l := NewConsoleListener(r)

	start := time.Now()
	_, ok := l.Listen(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

type fakeRecorder struct {
	dir      string
	err      error
	duration time.Duration
}

func (f *fakeRecorder) Record(_ context.Context, d time.Duration) (string, error) {
	f.duration = d
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, "reply.wav")
	return path, os.WriteFile(path, []byte("RIFFfake"), 0o644)
}

func newTranscriptionServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, transcriptionPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "RIFFfake", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
}

func TestTranscriptionListener(t *testing.T) {
	srv := newTranscriptionServer(t, http.StatusOK, map[string]string{"text": " Yes, please help. "})
	defer srv.Close()

	rec := &fakeRecorder{dir: t.TempDir()}
	l := NewTranscriptionListener(rec, TranscriptionOptions{BaseURL: srv.URL, APIKey: "sk-test"}, nil)

	text, ok := l.Listen(context.Background(), 10*time.Second)
	assert.True(t, ok)
	assert.Equal(t, "yes, please help.", text)
	assert.Equal(t, 10*time.Second, rec.duration)

	_, err := os.Stat(filepath.Join(rec.dir, "reply.wav"))
	assert.True(t, os.IsNotExist(err), "recording is removed after transcription")
}

func TestTranscriptionListenerSilence(t *testing.T) {
	srv := newTranscriptionServer(t, http.StatusOK, map[string]string{"text": ""})
	defer srv.Close()

	l := NewTranscriptionListener(&fakeRecorder{dir: t.TempDir()}, TranscriptionOptions{BaseURL: srv.URL, APIKey: "sk-test"}, nil)
	_, ok := l.Listen(context.Background(), time.Second)
	assert.False(t, ok)
}

func TestTranscriptionListenerRejected(t *testing.T) {
	body := map[string]any{"error": map[string]string{"message": "invalid audio"}}
	srv := newTranscriptionServer(t, http.StatusBadRequest, body)
	defer srv.Close()

	rec := &fakeRecorder{dir: t.TempDir()}
	l := NewTranscriptionListener(rec, TranscriptionOptions{BaseURL: srv.URL, APIKey: "sk-test"}, nil)

	_, ok := l.Listen(context.Background(), time.Second)
	assert.False(t, ok)

	path, err := rec.Record(context.Background(), time.Second)
	require.NoError(t, err)
	_, err = l.Transcribe(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid audio")
}

func TestTranscriptionListenerRecordingFails(t *testing.T) {
	l := NewTranscriptionListener(&fakeRecorder{err: errors.New("no mic")}, TranscriptionOptions{BaseURL: "http://127.0.0.1:1"}, nil)
	_, ok := l.Listen(context.Background(), time.Second)
	assert.False(t, ok)
}

func TestArecordRecorderArgs(t *testing.T) {
	var got []string
	r := ArecordRecorder{Device: "plughw:1", Dir: t.TempDir(), Run: func(_ context.Context, name string, args ...string) error {
		got = append([]string{name}, args...)
		return nil
	}}
	path, err := r.Record(context.Background(), 2500*time.Millisecond)
	require.NoError(t, err)
	defer os.Remove(path)

	assert.Equal(t, []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-d", "3", "-D", "plughw:1", path}, got)
}

func TestArecordRecorderFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	r := ArecordRecorder{Dir: dir, Run: func(context.Context, string, ...string) error {
		return errors.New("device busy")
	}}
	_, err := r.Record(context.Background(), time.Second)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
