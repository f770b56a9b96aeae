package vision

import (
	"context"
	"fmt"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/monitoring"
)

// MJPEGSource reads a multipart MJPEG stream, as served by ESP32-CAM style
// network cameras. A background reader decodes frames into a single-slot
// buffer; ReadFrame waits for the next frame for at most FrameTimeout, so a
// stalled camera never blocks a sensing phase past its bound.
type MJPEGSource struct {
	client       *resty.Client
	url          string
	frameTimeout time.Duration
	maxWidth     int
	retry        time.Duration
	logger       *zap.Logger

	frames chan Frame
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMJPEGSource returns a source for the stream at url. Frames wider than
// maxWidth are downscaled.
func NewMJPEGSource(url string, frameTimeout time.Duration, maxWidth int, logger *zap.Logger) *MJPEGSource {
	return &MJPEGSource{
		client:       resty.New().SetHeader("Accept", "multipart/x-mixed-replace"),
		url:          url,
		frameTimeout: frameTimeout,
		maxWidth:     maxWidth,
		retry:        time.Second,
		logger:       monitoring.OrNop(logger),
		frames:       make(chan Frame, 1),
		done:         make(chan struct{}),
	}
}

// Start launches the background reader. It reconnects until ctx is done or
// Close is called.
func (s *MJPEGSource) Start(ctx context.Context) {
	s.once.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.run(ctx)
	})
}

// ReadFrame implements Source.
func (s *MJPEGSource) ReadFrame(ctx context.Context) (Frame, error) {
	timer := time.NewTimer(s.frameTimeout)
	defer timer.Stop()
	select {
	case f := <-s.frames:
		return f, nil
	case <-timer.C:
		return Frame{}, ErrNoFrame
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close stops the reader and waits for it to exit.
func (s *MJPEGSource) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

func (s *MJPEGSource) run(ctx context.Context) {
	defer close(s.done)
	for ctx.Err() == nil {
		if err := s.stream(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("camera stream interrupted", zap.String("url", s.url), zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(s.retry):
		}
	}
}

func (s *MJPEGSource) stream(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(s.url)
	if err != nil {
		return fmt.Errorf("failed to open camera stream: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return fmt.Errorf("camera stream returned status %d", resp.StatusCode())
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header().Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("invalid camera content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return fmt.Errorf("camera stream is %s, not multipart", mediaType)
	}
	boundary := strings.TrimPrefix(params["boundary"], "--")

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			return fmt.Errorf("failed to read camera frame: %w", err)
		}
		img, err := jpeg.Decode(part)
		part.Close()
		if err != nil {
			s.logger.Debug("skipping undecodable frame", zap.Error(err))
			continue
		}
		s.offer(Frame{Image: Downscale(img, s.maxWidth), Captured: time.Now()})
	}
}

// offer replaces any unread frame with f.
func (s *MJPEGSource) offer(f Frame) {
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- f:
	default:
	}
}
