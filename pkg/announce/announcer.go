package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default speech timeout parameters: len(text)*PerChar + Margin.
const (
	DefaultPerChar = 80 * time.Millisecond
	DefaultMargin  = 2 * time.Second
)

// Outcome is how an announcement ended.
type Outcome int

// Announcement outcomes.
const (
	Spoken Outcome = iota
	Failed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Spoken:
		return "spoken"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Announcer bounds each announcement by a length-derived timeout and treats
// failures as advisory. Callers sequence "speak, then move" on Announce.
type Announcer struct {
	speaker Speaker
	perChar time.Duration
	margin  time.Duration
	logger  *slog.Logger
}

// NewAnnouncer wraps speaker. Zero durations use the defaults.
func NewAnnouncer(speaker Speaker, perChar, margin time.Duration, logger *slog.Logger) *Announcer {
	if perChar <= 0 {
		perChar = DefaultPerChar
	}
	if margin <= 0 {
		margin = DefaultMargin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		speaker: speaker,
		perChar: perChar,
		margin:  margin,
		logger:  logger.With("component", "announce.Announcer"),
	}
}

// Timeout returns the deadline allowed for text.
func (a *Announcer) Timeout(text string) time.Duration {
	return time.Duration(len(text))*a.perChar + a.margin
}

// Announce speaks text and returns when it completes, fails, or times out.
// It never blocks longer than Timeout(text) and never fails the caller.
func (a *Announcer) Announce(ctx context.Context, text string) Outcome {
	if a == nil || a.speaker == nil || text == "" {
		return Spoken
	}

	ctx, cancel := context.WithTimeout(ctx, a.Timeout(text))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("announce: speaker panic: %v", r)
			}
		}()
		done <- a.speaker.Speak(ctx, text)
	}()

	select {
	case err := <-done:
		if err == nil {
			return Spoken
		}
		if errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn("announcement timed out", "chars", len(text))
			return TimedOut
		}
		a.logger.Warn("announcement failed, continuing", "error", err)
		return Failed
	case <-ctx.Done():
		a.logger.Warn("announcement timed out", "chars", len(text), "timeout", a.Timeout(text))
		return TimedOut
	}
}

// Say starts an announcement without waiting for it.
func (a *Announcer) Say(ctx context.Context, text string) {
	go a.Announce(context.WithoutCancel(ctx), text)
}
