package sensing

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/testutil"
	"github.com/banshee-data/lifeguard/internal/timeutil"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newPhase(clock *timeutil.MockClock, src *testutil.FakeSource, display *testutil.RecordingDisplay, d time.Duration) Phase {
	p := Phase{
		Source:   src,
		Clock:    clock,
		Duration: d,
		Retry:    50 * time.Millisecond,
	}
	if display != nil {
		p.Display = display
	}
	return p
}

func permutations(xs []int) [][]int {
	if len(xs) <= 1 {
		return [][]int{append([]int(nil), xs...)}
	}
	var out [][]int
	for i := range xs {
		rest := make([]int, 0, len(xs)-1)
		rest = append(rest, xs[:i]...)
		rest = append(rest, xs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]int{xs[i]}, p...))
		}
	}
	return out
}

func TestPassengerLockMaxIndependentOfOrder(t *testing.T) {
	samples := []int{0, 2, 1, 3, 1}
	for _, order := range permutations(samples) {
		clock := timeutil.NewMockClock(epoch)
		src := &testutil.FakeSource{Clock: clock, Step: 100 * time.Millisecond}
		det := &testutil.FakeDetector{Counts: order}
		lock := NewPassengerLock(newPhase(clock, src, nil, 3*time.Second), det)

		res := lock.Run(context.Background())
		require.Equal(t, 3, res.LockedCount, "order %v", order)
		require.Equal(t, 30, res.Frames)
	}
}

func TestPassengerLockRunningMaxNeverDecreases(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &testutil.FakeSource{Clock: clock, Step: 500 * time.Millisecond}
	display := &testutil.RecordingDisplay{}
	det := &testutil.FakeDetector{Counts: []int{1, 3, 0, 2, 0, 0}}

	res := NewPassengerLock(newPhase(clock, src, display, 3*time.Second), det).Run(context.Background())

	want := [][]string{
		{"Locking Passengers: 1"},
		{"Locking Passengers: 3"},
		{"Locking Passengers: 3"},
		{"Locking Passengers: 3"},
		{"Locking Passengers: 3"},
		{"Locking Passengers: 3"},
	}
	if diff := cmp.Diff(want, display.Texts()); diff != "" {
		t.Errorf("overlay mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, accident.LockResult{LockedCount: 3, Frames: 6}, res)
	assert.Len(t, display.Overlays()[1].Boxes, 3)
}

func TestPassengerLockSkipsFailedReads(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &testutil.FakeSource{Clock: clock, Step: 100 * time.Millisecond, Fail: map[int]bool{0: true, 1: true}}
	det := &testutil.FakeDetector{Counts: []int{2}}

	res := NewPassengerLock(newPhase(clock, src, nil, time.Second), det).Run(context.Background())

	assert.Equal(t, 2, res.LockedCount)
	assert.Equal(t, det.Calls(), res.Frames)
	assert.Equal(t, src.Reads()-2, res.Frames)
	assert.Contains(t, clock.Sleeps(), 50*time.Millisecond)
}

func TestPassengerLockStaysBoundedWhenCameraIsDead(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	fail := map[int]bool{}
	for i := 0; i < 1000; i++ {
		fail[i] = true
	}
	src := &testutil.FakeSource{Clock: clock, Step: 10 * time.Millisecond, Fail: fail}
	det := &testutil.FakeDetector{}

	res := NewPassengerLock(newPhase(clock, src, nil, 3*time.Second), det).Run(context.Background())

	assert.Equal(t, accident.LockResult{}, res)
	assert.Zero(t, det.Calls())
	assert.LessOrEqual(t, clock.Since(epoch), 3*time.Second+10*time.Millisecond)
}

func TestPassengerLockDefaults(t *testing.T) {
	lock := NewPassengerLock(Phase{Source: &testutil.FakeSource{}}, &testutil.FakeDetector{})
	assert.Equal(t, DefaultLockDuration, lock.phase.Duration)
	assert.Equal(t, DefaultRetryInterval, lock.phase.Retry)
	assert.NotNil(t, lock.phase.Display)
	assert.NotNil(t, lock.phase.Logger)
}

func TestMovementMonitorBelowThresholdRunsFullWindow(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &testutil.FakeSource{Clock: clock, Step: time.Second}
	scorer := &testutil.FakeScorer{Scores: []int{10, 4999, 5000, 0, 3000, 120, 1, 2, 3}}

	res := NewMovementMonitor(newPhase(clock, src, nil, 10*time.Second), scorer, 5000).Run(context.Background(), 2)

	assert.False(t, res.MovementDetected)
	assert.Equal(t, 10, src.Reads())
	assert.Equal(t, 9, res.Frames, "first frame is the baseline")
	assert.Equal(t, 5000, res.PeakScore)
}

func TestMovementMonitorLatchesOnFirstScoreOverThreshold(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &testutil.FakeSource{Clock: clock, Step: 100 * time.Millisecond}
	display := &testutil.RecordingDisplay{}
	scorer := &testutil.FakeScorer{Scores: []int{100, 5001, 9999, 9999}}

	res := NewMovementMonitor(newPhase(clock, src, display, 10*time.Second), scorer, 5000).Run(context.Background(), 3)

	assert.Equal(t, accident.MonitorResult{MovementDetected: true, Frames: 2, PeakScore: 5001}, res)
	assert.Equal(t, 2, scorer.Scored())
	assert.Equal(t, 3, src.Reads(), "no frame is read after the latch")

	want := [][]string{
		{"Passengers (Locked): 3", "Movement Score: 100"},
		{"Passengers (Locked): 3", "Movement Score: 5001"},
	}
	if diff := cmp.Diff(want, display.Texts()); diff != "" {
		t.Errorf("overlay mismatch (-want +got):\n%s", diff)
	}
}

func TestMovementMonitorFailedReadIsNotBaseline(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	src := &testutil.FakeSource{Clock: clock, Step: 100 * time.Millisecond, Fail: map[int]bool{0: true}}
	scorer := &testutil.FakeScorer{Scores: []int{6000}}

	res := NewMovementMonitor(newPhase(clock, src, nil, time.Second), scorer, 0).Run(context.Background(), 1)

	assert.True(t, res.MovementDetected)
	assert.Equal(t, 2, scorer.Prepared())
	assert.Equal(t, 3, src.Reads())
}

func TestMovementMonitorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clock := timeutil.NewMockClock(epoch)
	src := &testutil.FakeSource{Clock: clock}

	res := NewMovementMonitor(newPhase(clock, src, nil, time.Second), &testutil.FakeScorer{}, 1).Run(ctx, 0)

	assert.Equal(t, accident.MonitorResult{}, res)
	assert.Zero(t, src.Reads())
}

func TestMovementMonitorDefaults(t *testing.T) {
	m := NewMovementMonitor(Phase{Source: &testutil.FakeSource{}}, &testutil.FakeScorer{}, 0)
	assert.Equal(t, DefaultMonitorDuration, m.phase.Duration)
	assert.Equal(t, DefaultMovementThreshold, m.Threshold())
}
