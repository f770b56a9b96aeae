package telemetry

// Link is a non-blocking, pull-based view of the telemetry stream. The core
// polls it; it never waits on it.
type Link interface {
	// TryReadLine returns the next buffered line, or false if none is
	// available right now.
	TryReadLine() (string, bool)
}

// ChannelLink adapts a channel of lines, such as a serial mux subscription,
// to a Link.
type ChannelLink struct {
	lines  <-chan string
	closed bool
}

// NewChannelLink returns a Link that drains lines without blocking.
func NewChannelLink(lines <-chan string) *ChannelLink {
	return &ChannelLink{lines: lines}
}

// TryReadLine implements Link.
func (l *ChannelLink) TryReadLine() (string, bool) {
	if l.closed {
		return "", false
	}
	select {
	case line, ok := <-l.lines:
		if !ok {
			l.closed = true
			return "", false
		}
		return line, true
	default:
		return "", false
	}
}

// Closed reports whether the underlying channel has been closed.
func (l *ChannelLink) Closed() bool {
	return l.closed
}
