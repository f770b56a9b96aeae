// Package voice provides the spoken prompts and the spoken-reply listeners
// used by the decision step.
package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/monitoring"
)

// Speaker turns text into speech.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Listener waits at most timeout for a spoken reply. ok is false on silence
// and on speech that could not be recognised; the two are not distinguished.
// Text is lowercased.
type Listener interface {
	Listen(ctx context.Context, timeout time.Duration) (text string, ok bool)
}

// Normalize lowercases and trims a recognised reply. An empty result is
// treated as no reply.
func Normalize(text string) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	return text, text != ""
}

// LogSpeaker writes prompts to the log instead of a loudspeaker.
type LogSpeaker struct {
	Logger *zap.Logger
}

// Speak implements Speaker.
func (s LogSpeaker) Speak(_ context.Context, text string) error {
	monitoring.OrNop(s.Logger).Info("speak", zap.String("text", text))
	return nil
}

// Runner runs an external command to completion.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CommandSpeaker speaks through a text-to-speech command line tool such as
// espeak-ng. The text is logged before it is spoken.
type CommandSpeaker struct {
	command string
	args    []string
	run     Runner
	logger  *zap.Logger
}

// NewCommandSpeaker returns a speaker that runs command with args followed by
// the text. A nil run uses ExecRunner.
func NewCommandSpeaker(command string, args []string, run Runner, logger *zap.Logger) *CommandSpeaker {
	if run == nil {
		run = ExecRunner
	}
	return &CommandSpeaker{command: command, args: args, run: run, logger: monitoring.OrNop(logger)}
}

// NewEspeakSpeaker speaks with espeak-ng at a slightly reduced rate.
func NewEspeakSpeaker(logger *zap.Logger) *CommandSpeaker {
	return NewCommandSpeaker("espeak-ng", []string{"-s", "150"}, nil, logger)
}

// Speak implements Speaker.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	s.logger.Info("speak", zap.String("text", text))
	args := append(append([]string(nil), s.args...), text)
	if err := s.run(ctx, s.command, args...); err != nil {
		return fmt.Errorf("failed to speak: %w", err)
	}
	return nil
}

// ConsoleListener reads replies typed on a terminal, one per line.
type ConsoleListener struct {
	lines chan string
}

// NewConsoleListener starts reading lines from r in the background.
func NewConsoleListener(r io.Reader) *ConsoleListener {
	l := &ConsoleListener{lines: make(chan string, 16)}
	go func() {
		defer close(l.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			l.lines <- scanner.Text()
		}
	}()
	return l
}

// Listen implements Listener. Lines typed before Listen was called are
// discarded; only a reply to the current prompt counts.
func (l *ConsoleListener) Listen(ctx context.Context, timeout time.Duration) (string, bool) {
	if !l.drain() {
		return "", false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line, ok := <-l.lines:
		if !ok {
			return "", false
		}
		return Normalize(line)
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// drain empties the buffered lines. It reports false once the input is closed.
func (l *ConsoleListener) drain() bool {
	for {
		select {
		case _, ok := <-l.lines:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
