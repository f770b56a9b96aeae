package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/timeutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want Message
	}{
		{"ACCIDENT_DETECTED", Message{Kind: AccidentMarker, Raw: "ACCIDENT_DETECTED"}},
		{">> ACCIDENT_DETECTED <<\r\n", Message{Kind: AccidentMarker, Raw: ">> ACCIDENT_DETECTED <<"}},
		{"END_PACKET", Message{Kind: EndOfPacket, Raw: "END_PACKET"}},
		{"LAT:22.57", Message{Kind: FieldUpdate, Key: "LAT", Value: "22.57", Raw: "LAT:22.57"}},
		{"IMPACT_TYPE: FRONTAL ", Message{Kind: FieldUpdate, Key: "IMPACT_TYPE", Value: "FRONTAL", Raw: "IMPACT_TYPE: FRONTAL"}},
		// the value is everything after the first colon
		{"LAT:1:2", Message{Kind: FieldUpdate, Key: "LAT", Value: "1:2", Raw: "LAT:1:2"}},
		{"TIME:12:30:05", Message{Kind: FieldUpdate, Key: "TIME", Value: "12:30:05", Raw: "TIME:12:30:05"}},
		{"SPEED:88", Message{Kind: FieldUpdate, Key: "SPEED", Value: "88", Raw: "SPEED:88"}},
		{"garbage line", Message{Kind: Unrecognized, Raw: "garbage line"}},
		{":value", Message{Kind: Unrecognized, Raw: ":value"}},
		{"   ", Message{Kind: Unrecognized, Raw: ""}},
		{"END_PACKET extra", Message{Kind: Unrecognized, Raw: "END_PACKET extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Classify(tt.line)); diff != "" {
				t.Errorf("Classify(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
		})
	}
}

func TestKnown(t *testing.T) {
	assert.True(t, Classify("LAT:1").Known())
	assert.True(t, Classify("LON:1").Known())
	assert.True(t, Classify("IMPACT_TYPE:SIDE").Known())
	assert.False(t, Classify("lat:1").Known())
	assert.False(t, Classify("SPEED:1").Known())
	assert.False(t, Classify("ACCIDENT_DETECTED").Known())
}

func TestChannelLink(t *testing.T) {
	ch := make(chan string, 2)
	link := NewChannelLink(ch)

	_, ok := link.TryReadLine()
	assert.False(t, ok, "empty channel must not block or yield")

	ch <- "LAT:1"
	line, ok := link.TryReadLine()
	require.True(t, ok)
	assert.Equal(t, "LAT:1", line)

	close(ch)
	_, ok = link.TryReadLine()
	assert.False(t, ok)
	assert.True(t, link.Closed())
}

// scriptedLink yields one line per poll and advances the clock per read so the
// collection window behaves like a live link.
type scriptedLink struct {
	clock *timeutil.MockClock
	lines []string
	step  time.Duration
	reads int
}

func (l *scriptedLink) TryReadLine() (string, bool) {
	l.clock.Advance(l.step)
	if len(l.lines) == 0 {
		return "", false
	}
	line := l.lines[0]
	l.lines = l.lines[1:]
	l.reads++
	return line, true
}

func newTestClock() *timeutil.MockClock {
	return timeutil.NewMockClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
}

func TestCollectEndsOnEndPacket(t *testing.T) {
	clock := newTestClock()
	link := &scriptedLink{
		clock: clock,
		step:  100 * time.Millisecond,
		lines: []string{"LAT:22.57", "LON:88.36", "IMPACT_TYPE:FRONTAL", "END_PACKET", "LAT:0"},
	}
	c := NewCollector(link, clock, 6*time.Second, 50*time.Millisecond, nil)
	ev := accident.NewEvent(clock.Now())

	res := c.Collect(context.Background(), ev)

	assert.True(t, res.Complete)
	assert.Equal(t, 3, res.Applied)
	assert.Less(t, res.Elapsed, 6*time.Second)
	assert.Equal(t, "22.57", ev.Latitude)
	assert.Equal(t, "88.36", ev.Longitude)
	assert.Equal(t, "FRONTAL", ev.ImpactType)
	assert.Equal(t, 4, link.reads, "lines after END_PACKET belong to the next poll")
}

func TestCollectTimesOutWithPartialFields(t *testing.T) {
	clock := newTestClock()
	link := &scriptedLink{clock: clock, step: 10 * time.Millisecond, lines: []string{"LAT:22.57", "noise", "SPEED:40"}}
	c := NewCollector(link, clock, 6*time.Second, 50*time.Millisecond, nil)
	ev := accident.NewEvent(clock.Now())

	res := c.Collect(context.Background(), ev)

	assert.False(t, res.Complete)
	assert.Equal(t, 1, res.Applied)
	assert.GreaterOrEqual(t, res.Elapsed, 6*time.Second)
	assert.Equal(t, "22.57", ev.Latitude)
	assert.Equal(t, accident.Unknown, ev.Longitude)
	assert.Equal(t, accident.Unknown, ev.ImpactType)
}

func TestCollectStopsOnCancel(t *testing.T) {
	clock := newTestClock()
	link := &scriptedLink{clock: clock, step: 10 * time.Millisecond}
	c := NewCollector(link, clock, 6*time.Second, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Collect(ctx, accident.NewEvent(clock.Now()))

	assert.False(t, res.Complete)
	assert.Zero(t, link.reads)
}

func TestApplyIgnoresEmptyValues(t *testing.T) {
	ev := accident.NewEvent(time.Now())
	assert.False(t, Apply(ev, Classify("LAT:")))
	assert.Equal(t, accident.Unknown, ev.Latitude)
}

func TestMQTTDeliverSplitsLines(t *testing.T) {
	src := newMQTTSource("vehicle/telemetry", nil)
	src.deliver([]byte("ACCIDENT_DETECTED\nLAT:22.57\r\n\nEND_PACKET"))

	var got []string
	for {
		line, ok := src.TryReadLine()
		if !ok {
			break
		}
		got = append(got, Classify(line).Raw)
	}
	assert.Equal(t, []string{"ACCIDENT_DETECTED", "LAT:22.57", "END_PACKET"}, got)
	assert.NoError(t, src.Close())
}
