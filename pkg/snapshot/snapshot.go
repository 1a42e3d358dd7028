// Package snapshot keeps the latest navigation state in Redis so other
// services can read the rover's status without talking to it.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kibo-rover/go-kibo/pkg/navigation"
)

// ErrNotFound is returned by Load when no snapshot is cached.
var ErrNotFound = errors.New("snapshot: not found")

// DefaultTTL is how long a snapshot survives without a refresh.
const DefaultTTL = 24 * time.Hour

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	RoverID  string
	TTL      time.Duration
}

// StateSource provides the state to cache.
type StateSource interface {
	State() navigation.State
}

// store is the part of the Redis client the cache uses.
type store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Cache is a navigation.Listener that writes a State snapshot to Redis
// after every event. Writes are coalesced: a burst of events produces one
// write of the newest state.
type Cache struct {
	rdb    store
	src    StateSource
	key    string
	ttl    time.Duration
	logger *slog.Logger

	dirty chan struct{}
	close func() error
}

// Dial connects to Redis and returns a cache fed from src.
func Dial(ctx context.Context, cfg Config, src StateSource, logger *slog.Logger) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("snapshot: connect %s: %w", cfg.Addr, err)
	}
	c := newCache(rdb, src, cfg, logger)
	c.close = rdb.Close
	c.logger.Info("redis connected", "addr", cfg.Addr, "key", c.key)
	return c, nil
}

func newCache(rdb store, src StateSource, cfg Config, logger *slog.Logger) *Cache {
	if cfg.RoverID == "" {
		cfg.RoverID = "kibo"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		rdb:    rdb,
		src:    src,
		key:    Key(cfg.RoverID),
		ttl:    cfg.TTL,
		logger: logger.With("component", "snapshot"),
		dirty:  make(chan struct{}, 1),
		close:  func() error { return nil },
	}
}

// Key returns the Redis key holding roverID's snapshot.
func Key(roverID string) string {
	return fmt.Sprintf("kibo:navigation:%s", roverID)
}

// OnEvent marks the snapshot stale. Log events are ignored.
func (c *Cache) OnEvent(e navigation.Event) {
	if e.Type == navigation.EventLog {
		return
	}
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// Run writes snapshots until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.dirty:
			if err := c.Save(ctx, c.src.State()); err != nil {
				c.logger.Warn("save snapshot", "error", err)
			}
		}
	}
}

// Save writes st immediately.
func (c *Cache) Save(ctx context.Context, st navigation.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: save: %w", err)
	}
	return nil
}

// Load reads the cached snapshot.
func (c *Cache) Load(ctx context.Context) (*navigation.State, error) {
	val, err := c.rdb.Get(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshot: load: %w", err)
	}
	var st navigation.State
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return &st, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.close()
}
