package motor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kibo-rover/go-kibo/internal/httpc"
)

// DefaultRequestTimeout bounds one bridge request, not the motion itself.
const DefaultRequestTimeout = 5 * time.Second

// HTTPDriver implements Driver against the rover's motor bridge:
// POST {base}/robot/command {"action": "...", "duration": seconds}.
type HTTPDriver struct {
	baseURL string
	client  *http.Client

	// WaitForMotion makes each call block for the commanded duration after
	// the bridge accepts it. Bridges that already block should disable it.
	WaitForMotion bool
}

// NewHTTPDriver creates a driver for the bridge at baseURL.
func NewHTTPDriver(baseURL string) *HTTPDriver {
	return &HTTPDriver{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        httpc.NewClient(DefaultRequestTimeout),
		WaitForMotion: true,
	}
}

type commandRequest struct {
	Action   Command `json:"action"`
	Duration float64 `json:"duration,omitempty"`
}

type commandResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Forward drives forward for d.
func (h *HTTPDriver) Forward(ctx context.Context, d time.Duration) error {
	return h.send(ctx, Forward, d)
}

// Backward drives backward for d.
func (h *HTTPDriver) Backward(ctx context.Context, d time.Duration) error {
	return h.send(ctx, Backward, d)
}

// TurnLeft rotates left for d.
func (h *HTTPDriver) TurnLeft(ctx context.Context, d time.Duration) error {
	return h.send(ctx, Left, d)
}

// TurnRight rotates right for d.
func (h *HTTPDriver) TurnRight(ctx context.Context, d time.Duration) error {
	return h.send(ctx, Right, d)
}

// Stop halts the wheels.
func (h *HTTPDriver) Stop(ctx context.Context) error {
	return h.send(ctx, Stop, 0)
}

func (h *HTTPDriver) send(ctx context.Context, cmd Command, d time.Duration) error {
	start := time.Now()

	body, err := json.Marshal(commandRequest{Action: cmd, Duration: d.Seconds()})
	if err != nil {
		return fmt.Errorf("motor: marshal %s: %w", cmd, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/robot/command", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("motor: %s request failed: %w", cmd, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if len(bytes.TrimSpace(data)) > 0 {
		var cr commandResponse
		if err := json.Unmarshal(data, &cr); err == nil && cr.Success != nil && !*cr.Success {
			msg := cr.Error
			if msg == "" {
				msg = cr.Message
			}
			return fmt.Errorf("%w: %s %s", ErrRejected, cmd, msg)
		}
	}

	if h.WaitForMotion && cmd != Stop {
		return sleep(ctx, d-time.Since(start))
	}
	return nil
}

// Health checks GET {base}/health.
func (h *HTTPDriver) Health(ctx context.Context) error {
	return httpc.GetJSON(ctx, h.client, h.baseURL+"/health", nil)
}

var _ Driver = (*HTTPDriver)(nil)
