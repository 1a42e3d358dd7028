package obstacle

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kibo-rover/go-kibo/internal/httpc"
)

// DefaultFeedTimeout bounds one detection request.
const DefaultFeedTimeout = time.Second

// Feed returns the obstacles currently observed by the rover.
type Feed interface {
	Obstacles(ctx context.Context) ([]Obstacle, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context) ([]Obstacle, error)

// Obstacles calls f.
func (f FeedFunc) Obstacles(ctx context.Context) ([]Obstacle, error) { return f(ctx) }

// Status is the detection service response body.
type Status struct {
	Obstacles []Obstacle `json:"obstacles"`
}

// HTTPFeed polls GET {BaseURL}/detection_status.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFeed creates a feed against the detection service at baseURL.
// A zero timeout uses DefaultFeedTimeout.
func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	return &HTTPFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(timeout),
	}
}

// Obstacles fetches the current detection status. A missing obstacles field
// yields an empty list.
func (f *HTTPFeed) Obstacles(ctx context.Context) ([]Obstacle, error) {
	var st Status
	if err := httpc.GetJSON(ctx, f.client, f.baseURL+"/detection_status", &st); err != nil {
		return nil, err
	}
	return st.Obstacles, nil
}
