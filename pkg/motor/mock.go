package motor

import (
	"context"
	"sync"
	"time"
)

// Call records one command sent to a Mock.
type Call struct {
	Command  Command
	Duration time.Duration
}

// Mock is a Driver for tests. It records calls and can be programmed to
// delay or fail per command.
type Mock struct {
	mu    sync.Mutex
	calls []Call

	// Delay returns how long a call should block. nil means no delay.
	Delay func(Call) time.Duration
	// Err returns the error for a call. nil means success.
	Err func(Call) error
	// OnCall runs before the delay, outside the lock.
	OnCall func(Call)
}

// NewMock creates a mock driver that succeeds immediately.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) do(ctx context.Context, cmd Command, d time.Duration) error {
	c := Call{Command: cmd, Duration: d}
	m.mu.Lock()
	m.calls = append(m.calls, c)
	delay, errf, onCall := m.Delay, m.Err, m.OnCall
	m.mu.Unlock()

	if onCall != nil {
		onCall(c)
	}
	if delay != nil {
		if err := sleep(ctx, delay(c)); err != nil {
			return err
		}
	}
	if errf != nil {
		return errf(c)
	}
	return nil
}

// Forward records a forward call.
func (m *Mock) Forward(ctx context.Context, d time.Duration) error { return m.do(ctx, Forward, d) }

// Backward records a backward call.
func (m *Mock) Backward(ctx context.Context, d time.Duration) error { return m.do(ctx, Backward, d) }

// TurnLeft records a left turn.
func (m *Mock) TurnLeft(ctx context.Context, d time.Duration) error { return m.do(ctx, Left, d) }

// TurnRight records a right turn.
func (m *Mock) TurnRight(ctx context.Context, d time.Duration) error { return m.do(ctx, Right, d) }

// Stop records a stop.
func (m *Mock) Stop(ctx context.Context) error { return m.do(ctx, Stop, 0) }

// Calls returns a copy of all recorded calls.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Commands returns the recorded command sequence.
func (m *Mock) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Command
	}
	return out
}

// Count returns how many times cmd was sent.
func (m *Mock) Count(cmd Command) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Command == cmd {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Driver = (*Mock)(nil)
