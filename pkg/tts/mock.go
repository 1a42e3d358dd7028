package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// SynthesizeFunc overrides Synthesize. When nil a silent clip with an
	// estimated duration is returned.
	SynthesizeFunc func(ctx context.Context, text string) (*Clip, error)

	// HealthFunc overrides Health. When nil the mock is healthy.
	HealthFunc func(ctx context.Context) error

	mu     sync.Mutex
	texts  []string
	closed bool
}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// Synthesize records text and returns the programmed clip.
func (m *Mock) Synthesize(ctx context.Context, text string) (*Clip, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return &Clip{
		Audio:    make([]byte, len(text)),
		Format:   FormatWAV,
		Duration: time.Millisecond,
		Text:     text,
	}, nil
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Texts returns every synthesized text in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Provider = (*Mock)(nil)
