// Package web serves the navigation dashboard API and live websocket feeds.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/kibo-rover/go-kibo/pkg/hub"
	"github.com/kibo-rover/go-kibo/pkg/navigation"
	"github.com/kibo-rover/go-kibo/pkg/pose"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

const maxLogs = 500

// Navigator is the coordinator surface the dashboard drives.
type Navigator interface {
	StartRoute(ctx context.Context, steps []route.Step) (string, error)
	Stop(ctx context.Context, reason string) bool
	State() navigation.State
	Pose() pose.Pose
	Progress() float64
	HandleVoiceCommand(ctx context.Context, text string) bool
}

// LogEntry is one running-log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	RunID   string    `json:"run_id,omitempty"`
}

// Server is the dashboard server. It is also a navigation.Listener.
type Server struct {
	app    *fiber.App
	nav    Navigator
	logger *slog.Logger

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub *hub.Hub
	logHub    *hub.Hub
}

// NewServer creates the server. staticDir, when non-empty, is served at /.
func NewServer(nav Navigator, staticDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		nav:       nav,
		logger:    logger.With("component", "web.Server"),
		logs:      make([]LogEntry, 0, maxLogs),
		statusHub: hub.New("status", logger),
		logHub:    hub.New("logs", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Kibo Navigation",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	if staticDir != "" {
		app.Static("/", staticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/pose", s.handlePose)
	api.Get("/progress", s.handleProgress)
	api.Get("/logs", s.handleLogs)
	api.Post("/route", s.handleStartRoute)
	api.Post("/stop", s.handleStop)
	api.Post("/voice", s.handleVoice)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app so callers can mount extra routes.
func (s *Server) App() *fiber.App { return s.app }

// Run starts the hubs and listens on addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", addr)
		errc <- s.app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// OnEvent records log lines and pushes events to websocket subscribers.
func (s *Server) OnEvent(e navigation.Event) {
	if e.Type == navigation.EventLog {
		s.AddLog(LogEntry{Time: e.Time, Level: e.Level, Message: e.Message, RunID: e.RunID})
		return
	}
	if err := s.statusHub.BroadcastJSON(e); err != nil {
		s.logger.Warn("encode event", "type", e.Type, "error", err)
	}
}

// AddLog appends an entry to the ring buffer and broadcasts it.
func (s *Server) AddLog(entry LogEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
	s.logsMu.Unlock()

	if err := s.logHub.BroadcastJSON(entry); err != nil {
		s.logger.Warn("encode log entry", "error", err)
	}
}

// Logs returns a copy of the buffered log.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return append([]LogEntry(nil), s.logs...)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
