// Package announce speaks navigation announcements before the rover moves.
package announce

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kibo-rover/go-kibo/internal/httpc"
	"github.com/kibo-rover/go-kibo/pkg/tts"
)

// Speaker says text and returns once it has been spoken.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, text string) error

// Speak calls f.
func (f SpeakerFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

// Sink plays a synthesized clip and returns when playback has finished.
type Sink interface {
	Play(ctx context.Context, clip *tts.Clip) error
}

// TTSSpeaker synthesizes text with a tts.Provider and plays it on a Sink.
type TTSSpeaker struct {
	provider tts.Provider
	sink     Sink
}

// NewTTSSpeaker creates a speaker from a provider and a sink.
func NewTTSSpeaker(provider tts.Provider, sink Sink) *TTSSpeaker {
	return &TTSSpeaker{provider: provider, sink: sink}
}

// Speak synthesizes and plays text.
func (s *TTSSpeaker) Speak(ctx context.Context, text string) error {
	clip, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("announce: synthesize: %w", err)
	}
	if err := s.sink.Play(ctx, clip); err != nil {
		return fmt.Errorf("announce: play: %w", err)
	}
	return nil
}

// HTTPSink uploads clips to the rover's speaker service:
// POST {base}/audio/play with the clip bytes as the body.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink for the speaker service at baseURL.
func NewHTTPSink(baseURL string) *HTTPSink {
	return &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(10 * time.Second),
	}
}

// Play uploads the clip, then waits for its playback duration.
func (h *HTTPSink) Play(ctx context.Context, clip *tts.Clip) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/audio/play", bytes.NewReader(clip.Audio))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", clip.Format.MIMEType)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpc.StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}
	return wait(ctx, clip.Duration)
}

// LogSpeaker writes announcements to a logger instead of a speaker. Paced
// speakers also wait for the estimated speaking time.
type LogSpeaker struct {
	logger *slog.Logger
	paced  bool
}

// NewLogSpeaker creates a log-only speaker.
func NewLogSpeaker(logger *slog.Logger, paced bool) *LogSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSpeaker{logger: logger.With("component", "announce.LogSpeaker"), paced: paced}
}

// Speak logs text.
func (l *LogSpeaker) Speak(ctx context.Context, text string) error {
	l.logger.Info("announcement", "text", text)
	if l.paced {
		return wait(ctx, tts.EstimateDuration(text))
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
