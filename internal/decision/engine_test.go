package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/testutil"
)

func TestDecide(t *testing.T) {
	present := accident.LockResult{LockedCount: 3}
	moving := accident.MonitorResult{MovementDetected: true}

	tests := []struct {
		name       string
		lock       accident.LockResult
		mon        accident.MonitorResult
		replies    []testutil.Reply
		want       accident.Outcome
		wantSpoken []string
		wantListen int
	}{
		{
			name:       "nobody locked and no movement",
			lock:       accident.LockResult{},
			mon:        accident.MonitorResult{},
			want:       accident.EscalateWith(accident.AutoNoMovement, ""),
			wantSpoken: []string{PromptAutomatic},
		},
		{
			name:       "occupant locked but still",
			lock:       present,
			mon:        accident.MonitorResult{},
			want:       accident.EscalateWith(accident.AutoNoMovement, ""),
			wantSpoken: []string{PromptAutomatic},
		},
		{
			name:       "movement but nobody locked",
			lock:       accident.LockResult{},
			mon:        moving,
			want:       accident.EscalateWith(accident.AutoNoMovement, ""),
			wantSpoken: []string{PromptAutomatic},
		},
		{
			name:       "no reply",
			lock:       present,
			mon:        moving,
			replies:    []testutil.Reply{{OK: false}},
			want:       accident.EscalateWith(accident.AutoNoResponse, ""),
			wantSpoken: []string{"3 passengers detected. Do you need medical assistance?", PromptConfirmed},
			wantListen: 1,
		},
		{
			name:       "yes please",
			lock:       present,
			mon:        moving,
			replies:    []testutil.Reply{{Text: "yes please", OK: true}},
			want:       accident.EscalateWith(accident.VoiceConfirmed, "yes please"),
			wantSpoken: []string{"3 passengers detected. Do you need medical assistance?", PromptConfirmed},
			wantListen: 1,
		},
		{
			name:       "help",
			lock:       present,
			mon:        moving,
			replies:    []testutil.Reply{{Text: "please help us", OK: true}},
			want:       accident.EscalateWith(accident.VoiceConfirmed, "please help us"),
			wantSpoken: []string{"3 passengers detected. Do you need medical assistance?", PromptConfirmed},
			wantListen: 1,
		},
		{
			name:       "no im fine",
			lock:       present,
			mon:        moving,
			replies:    []testutil.Reply{{Text: "no im fine", OK: true}},
			want:       accident.Suppress("no im fine"),
			wantSpoken: []string{"3 passengers detected. Do you need medical assistance?", PromptMonitoring},
			wantListen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speaker := &testutil.RecordingSpeaker{}
			listener := &testutil.ScriptedListener{Replies: tt.replies}
			e := NewEngine(speaker, listener, 0, nil)

			got := e.Decide(context.Background(), tt.lock, tt.mon)

			assert.Equal(t, tt.want, got)
			if diff := cmp.Diff(tt.wantSpoken, speaker.Spoken()); diff != "" {
				t.Errorf("spoken mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantListen, listener.Calls())
		})
	}
}

func TestDecideUsesReplyTimeout(t *testing.T) {
	listener := &testutil.ScriptedListener{}
	e := NewEngine(&testutil.RecordingSpeaker{}, listener, 0, nil)
	e.Decide(context.Background(), accident.LockResult{LockedCount: 1}, accident.MonitorResult{MovementDetected: true})
	assert.Equal(t, []time.Duration{DefaultReplyTimeout}, listener.Timeouts())

	listener = &testutil.ScriptedListener{}
	e = NewEngine(&testutil.RecordingSpeaker{}, listener, 4*time.Second, nil)
	e.Decide(context.Background(), accident.LockResult{LockedCount: 1}, accident.MonitorResult{MovementDetected: true})
	assert.Equal(t, []time.Duration{4 * time.Second}, listener.Timeouts())
}

func TestDecideSpeakerFailureDoesNotChangeOutcome(t *testing.T) {
	speaker := &testutil.RecordingSpeaker{Err: errors.New("no audio device")}
	e := NewEngine(speaker, &testutil.ScriptedListener{}, 0, nil)

	got := e.Decide(context.Background(), accident.LockResult{}, accident.MonitorResult{})
	assert.Equal(t, accident.EscalateWith(accident.AutoNoMovement, ""), got)
	assert.Len(t, speaker.Spoken(), 1)
}

func TestConfirms(t *testing.T) {
	assert.True(t, Confirms("yes"))
	assert.True(t, Confirms("YES"))
	assert.True(t, Confirms("i need help"))
	assert.True(t, Confirms("eyes"), "substring match")
	assert.False(t, Confirms("no im fine"))
	assert.False(t, Confirms(""))
}
