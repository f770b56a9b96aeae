package testutil

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lifeguard/internal/timeutil"
	"github.com/banshee-data/lifeguard/internal/vision"
)

// recordingTB captures Errorf calls instead of failing the running test.
type recordingTB struct {
	testing.TB
	errors []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)

	rec := &recordingTB{TB: t}
	AssertStatusCode(rec, http.StatusOK, http.StatusBadRequest)
	assert.Equal(t, []string{"status code = 200, want 400"}, rec.errors)
}

func TestNewDebugRequest(t *testing.T) {
	req := NewDebugRequest(http.MethodPost, "/debug/x")
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/debug/x", req.URL.Path)
	assert.Equal(t, "127.0.0.1:12345", req.RemoteAddr)

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	assert.Equal(t, http.StatusTeapot, ServeDebug(mux, http.MethodGet, "/debug/x").Code)
}

func TestFakeSource(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &FakeSource{Clock: clock, Step: 100 * time.Millisecond, Fail: map[int]bool{1: true}}

	_, err := src.ReadFrame(context.Background())
	require.NoError(t, err)
	_, err = src.ReadFrame(context.Background())
	assert.ErrorIs(t, err, vision.ErrNoFrame)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 3, src.Reads())
	assert.Equal(t, time.Unix(0, 0).Add(300*time.Millisecond), clock.Now())
}

func TestFakeDetectorAndScorer(t *testing.T) {
	d := &FakeDetector{Counts: []int{2}}
	assert.Len(t, d.Detect(nil), 2)
	assert.Empty(t, d.Detect(nil))
	assert.Equal(t, 2, d.Calls())

	s := &FakeScorer{Scores: []int{7}}
	s.Prepare(image.NewGray(image.Rect(0, 0, 2, 2)))
	assert.Equal(t, 7, s.Score(nil, nil))
	assert.Zero(t, s.Score(nil, nil))
	assert.Equal(t, 1, s.Prepared())
	assert.Equal(t, 2, s.Scored())
}

func TestRecordingSpeakerAndListener(t *testing.T) {
	sp := &RecordingSpeaker{Err: errors.New("muted")}
	assert.Error(t, sp.Speak(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, sp.Spoken())

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	l := &ScriptedListener{Replies: []Reply{{Text: "yes", OK: true}}, Clock: clock}
	text, ok := l.Listen(context.Background(), time.Second)
	assert.True(t, ok)
	assert.Equal(t, "yes", text)
	_, ok = l.Listen(context.Background(), 10*time.Second)
	assert.False(t, ok)
	assert.Equal(t, []time.Duration{time.Second, 10 * time.Second}, l.Timeouts())
	assert.Equal(t, 10*time.Second, clock.Since(time.Unix(0, 0)))
}
