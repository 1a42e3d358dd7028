// Package link accepts the rover bridge's websocket connection and drives the
// rover through it: motor commands, audio playback and pushed detections.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/kibo-rover/go-kibo/pkg/obstacle"
	"github.com/kibo-rover/go-kibo/pkg/protocol"
)

// Errors returned by the hub.
var (
	ErrRoverOffline = errors.New("link: rover not connected")
	ErrAckTimeout   = errors.New("link: command not acknowledged")
	ErrStale        = errors.New("link: no recent detections")
)

// Defaults.
const (
	DefaultAckTimeout = 3 * time.Second
	DefaultStaleAfter = 3 * time.Second
)

// Rover is a connected bridge.
type Rover struct {
	ID        string
	Connected time.Time

	conn     *websocket.Conn
	mu       sync.Mutex
	lastSeen time.Time
	state    protocol.StateData
}

// Send writes msg to the rover.
func (r *Rover) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Rover) touch() {
	r.mu.Lock()
	r.lastSeen = time.Now()
	r.mu.Unlock()
}

// Hub manages rover connections.
type Hub struct {
	logger     *slog.Logger
	ackTimeout time.Duration
	staleAfter time.Duration

	mu      sync.RWMutex
	rovers  map[string]*Rover
	primary string

	pendingMu sync.Mutex
	pending   map[string]chan protocol.AckData

	obsMu       sync.RWMutex
	obstacles   []obstacle.Obstacle
	obstaclesAt time.Time

	received atomic.Uint64
	sent     atomic.Uint64
	acked    atomic.Uint64
}

// NewHub creates a hub. Zero durations use the defaults.
func NewHub(logger *slog.Logger, ackTimeout, staleAfter time.Duration) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Hub{
		logger:     logger.With("component", "link.Hub"),
		ackTimeout: ackTimeout,
		staleAfter: staleAfter,
		rovers:     make(map[string]*Rover),
		pending:    make(map[string]chan protocol.AckData),
	}
}

// RegisterRoutes mounts the rover endpoint on app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/rover", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/rover", websocket.New(h.handleRover))
	app.Get("/ws/rover/:id", websocket.New(h.handleRover))
}

func (h *Hub) handleRover(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = "kibo"
	}
	rover := &Rover{ID: id, Connected: time.Now(), lastSeen: time.Now(), conn: c}

	h.mu.Lock()
	h.rovers[id] = rover
	h.primary = id
	n := len(h.rovers)
	h.mu.Unlock()
	h.logger.Info("rover connected", "rover", id, "rovers", n)

	defer func() {
		h.mu.Lock()
		if h.rovers[id] == rover {
			delete(h.rovers, id)
		}
		if h.primary == id {
			h.primary = ""
			for other := range h.rovers {
				h.primary = other
				break
			}
		}
		h.mu.Unlock()
		h.logger.Info("rover disconnected", "rover", id)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("rover read ended", "rover", id, "error", err)
			return
		}
		rover.touch()
		h.received.Add(1)
		h.handleMessage(rover, data)
	}
}

func (h *Hub) handleMessage(rover *Rover, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("bad message from rover", "rover", rover.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeMotorAck, protocol.TypeSpeakDone:
		ack, err := msg.GetAck()
		if err != nil {
			h.logger.Warn("bad ack", "rover", rover.ID, "error", err)
			return
		}
		h.resolve(msg.ID, *ack)

	case protocol.TypeObstacles:
		obs, err := msg.GetObstacles()
		if err != nil {
			h.logger.Warn("bad obstacles", "rover", rover.ID, "error", err)
			return
		}
		h.obsMu.Lock()
		h.obstacles = obs.Obstacles
		h.obstaclesAt = time.Now()
		h.obsMu.Unlock()

	case protocol.TypeState:
		st, err := msg.GetStateData()
		if err != nil {
			return
		}
		rover.mu.Lock()
		rover.state = *st
		rover.mu.Unlock()

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(msg.Timestamp)
		if err == nil {
			h.send(rover, pong)
		}
	}
}

func (h *Hub) resolve(id string, ack protocol.AckData) {
	h.pendingMu.Lock()
	ch, ok := h.pending[id]
	delete(h.pending, id)
	h.pendingMu.Unlock()
	if !ok {
		h.logger.Debug("ack for unknown command", "id", id)
		return
	}
	h.acked.Add(1)
	ch <- ack
}

func (h *Hub) send(r *Rover, msg *protocol.Message) error {
	h.sent.Add(1)
	return r.Send(msg)
}

// Rover returns the connection for id, or the primary rover when id is empty.
func (h *Hub) Rover(id string) (*Rover, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if id == "" {
		id = h.primary
	}
	r, ok := h.rovers[id]
	if !ok {
		return nil, ErrRoverOffline
	}
	return r, nil
}

// Request sends msg and waits up to wait for the rover's acknowledgement.
// msg must carry an ID.
func (h *Hub) Request(ctx context.Context, roverID string, msg *protocol.Message, wait time.Duration) (protocol.AckData, error) {
	rover, err := h.Rover(roverID)
	if err != nil {
		return protocol.AckData{}, err
	}

	ch := make(chan protocol.AckData, 1)
	h.pendingMu.Lock()
	h.pending[msg.ID] = ch
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, msg.ID)
		h.pendingMu.Unlock()
	}()

	if err := h.send(rover, msg); err != nil {
		return protocol.AckData{}, fmt.Errorf("link: send %s: %w", msg.Type, err)
	}

	timer := time.NewTimer(wait + h.ackTimeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		return ack, nil
	case <-timer.C:
		return protocol.AckData{}, fmt.Errorf("%w: %s %s", ErrAckTimeout, msg.Type, msg.ID)
	case <-ctx.Done():
		return protocol.AckData{}, ctx.Err()
	}
}

// Obstacles returns the detections most recently pushed by the rover. It
// implements obstacle.Feed; stale data is an error so the monitor treats it
// as a failed poll.
func (h *Hub) Obstacles(context.Context) ([]obstacle.Obstacle, error) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	if h.obstaclesAt.IsZero() || time.Since(h.obstaclesAt) > h.staleAfter {
		return nil, ErrStale
	}
	return append([]obstacle.Obstacle(nil), h.obstacles...), nil
}

// RoverCount returns the number of connected rovers.
func (h *Hub) RoverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rovers)
}

// Stats contains hub counters.
type Stats struct {
	Rovers   int    `json:"rovers"`
	Received uint64 `json:"messages_received"`
	Sent     uint64 `json:"messages_sent"`
	Acked    uint64 `json:"commands_acked"`
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Rovers:   h.RoverCount(),
		Received: h.received.Load(),
		Sent:     h.sent.Load(),
		Acked:    h.acked.Load(),
	}
}

// RoverInfo describes a connected rover.
type RoverInfo struct {
	ID        string             `json:"id"`
	Connected time.Time          `json:"connected"`
	LastSeen  time.Time          `json:"last_seen"`
	State     protocol.StateData `json:"state"`
}

// Rovers lists connected rovers.
func (h *Hub) Rovers() []RoverInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	infos := make([]RoverInfo, 0, len(h.rovers))
	for _, r := range h.rovers {
		r.mu.Lock()
		infos = append(infos, RoverInfo{ID: r.ID, Connected: r.Connected, LastSeen: r.lastSeen, State: r.state})
		r.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes mounts rover status routes on api.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	rovers := api.Group("/rovers")
	rovers.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"rovers": h.Rovers(), "count": h.RoverCount()})
	})
	rovers.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.Stats())
	})
}
