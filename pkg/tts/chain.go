package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Chain is a Provider that falls back through its providers in order.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
	fallbacks atomic.Int64
}

// NewChain builds a chain. It needs at least one provider.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger.With("component", "tts.Chain")}, nil
}

// Synthesize returns the first successful clip. When every provider fails
// the result is a *ChainError.
func (c *Chain) Synthesize(ctx context.Context, text string) (*Clip, error) {
	failed := &ChainError{}
	for i, p := range c.providers {
		clip, err := p.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.fallbacks.Add(1)
				c.logger.Info("announcement synthesized by fallback", "provider", i)
			}
			return clip, nil
		}
		failed.Errors = append(failed.Errors, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("synthesis failed", "provider", i, "error", err)
	}
	return nil, failed
}

// Fallbacks counts clips that did not come from the first provider.
func (c *Chain) Fallbacks() int64 { return c.fallbacks.Load() }

// Health is nil while any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
