package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
	"github.com/kibo-rover/go-kibo/pkg/protocol"
	"github.com/kibo-rover/go-kibo/pkg/tts"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startHub serves h on port and dials it as rover id.
func startHub(t *testing.T, h *Hub, port int, id string) *websocket.Conn {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.RegisterRoutes(app)
	h.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(fmt.Sprintf(":%d", port))
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://localhost:%d/ws/rover/%s", port, id), nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	deadline := time.Now().Add(time.Second)
	for h.RoverCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	return ws
}

// bridge answers motor and speak commands like the rover bridge would.
func bridge(ws *websocket.Conn, fail string) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}
		var ackType protocol.MessageType
		var cmdErr error
		switch msg.Type {
		case protocol.TypeMotor:
			ackType = protocol.TypeMotorAck
			cmd, _ := msg.GetMotorCommand()
			if cmd != nil && cmd.Action == fail {
				cmdErr = errors.New("wheel jammed")
			}
		case protocol.TypeSpeak:
			ackType = protocol.TypeSpeakDone
		default:
			continue
		}
		ack, _ := protocol.NewAckMessage(ackType, msg.ID, cmdErr)
		out, _ := ack.Bytes()
		ws.WriteMessage(websocket.TextMessage, out)
	}
}

func TestNewHub(t *testing.T) {
	h := NewHub(nil, 0, 0)
	if h.RoverCount() != 0 {
		t.Error("RoverCount should be 0 initially")
	}
	if h.ackTimeout != DefaultAckTimeout {
		t.Errorf("ackTimeout = %v, want %v", h.ackTimeout, DefaultAckTimeout)
	}
	if _, err := h.Rover(""); !errors.Is(err, ErrRoverOffline) {
		t.Errorf("Rover() error = %v, want ErrRoverOffline", err)
	}
}

func TestObstaclesStaleWithoutRover(t *testing.T) {
	h := NewHub(quietLogger(), 0, 0)
	if _, err := h.Obstacles(context.Background()); !errors.Is(err, ErrStale) {
		t.Errorf("Obstacles() error = %v, want ErrStale", err)
	}
}

func TestDriverOffline(t *testing.T) {
	drv := NewMotorDriver(NewHub(quietLogger(), 0, 0), "")
	if err := drv.Forward(context.Background(), time.Millisecond); !errors.Is(err, ErrRoverOffline) {
		t.Errorf("Forward() error = %v, want ErrRoverOffline", err)
	}
}

func TestRoverConnectAndDisconnect(t *testing.T) {
	h := NewHub(quietLogger(), 0, 0)
	ws := startHub(t, h, 18180, "kibo-1")

	if h.RoverCount() != 1 {
		t.Fatalf("RoverCount = %d, want 1", h.RoverCount())
	}
	r, err := h.Rover("")
	if err != nil || r.ID != "kibo-1" {
		t.Fatalf("primary rover = %v, %v; want kibo-1", r, err)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	if h.RoverCount() != 0 {
		t.Errorf("RoverCount = %d, want 0 after disconnect", h.RoverCount())
	}
}

func TestMotorDriverWaitsForAck(t *testing.T) {
	h := NewHub(quietLogger(), 500*time.Millisecond, 0)
	ws := startHub(t, h, 18181, "kibo")
	go bridge(ws, string(motor.Left))

	drv := NewMotorDriver(h, "")
	ctx := context.Background()
	if err := drv.Forward(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if err := drv.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	err := drv.TurnLeft(ctx, 10*time.Millisecond)
	if !errors.Is(err, motor.ErrRejected) {
		t.Errorf("TurnLeft() error = %v, want ErrRejected", err)
	}

	if got := h.Stats().Acked; got != 3 {
		t.Errorf("Acked = %d, want 3", got)
	}
}

func TestAckTimeout(t *testing.T) {
	h := NewHub(quietLogger(), 50*time.Millisecond, 0)
	ws := startHub(t, h, 18182, "kibo")
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err := NewMotorDriver(h, "").Forward(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrAckTimeout) {
		t.Errorf("Forward() error = %v, want ErrAckTimeout", err)
	}
}

func TestSinkPlaysOnRover(t *testing.T) {
	h := NewHub(quietLogger(), 500*time.Millisecond, 0)
	ws := startHub(t, h, 18183, "kibo")
	go bridge(ws, "")

	clip := &tts.Clip{Audio: []byte{1, 2, 3}, Text: "Moving forward", Format: tts.Format{MIMEType: "audio/mpeg"}}
	if err := NewSink(h, "").Play(context.Background(), clip); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
}

func TestPushedObstacles(t *testing.T) {
	h := NewHub(quietLogger(), 0, 200*time.Millisecond)
	ws := startHub(t, h, 18184, "kibo")

	msg, _ := protocol.NewMessage(protocol.TypeObstacles, protocol.ObstaclesData{
		Obstacles: []obstacle.Obstacle{{Type: "person", Center: []float64{0.5, 0.5}, DangerLevel: obstacle.DangerHigh}},
	})
	data, _ := msg.Bytes()
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	obs, err := h.Obstacles(context.Background())
	if err != nil {
		t.Fatalf("Obstacles() error = %v", err)
	}
	if len(obs) != 1 || obs[0].Type != "person" {
		t.Errorf("Obstacles() = %+v", obs)
	}

	time.Sleep(250 * time.Millisecond)
	if _, err := h.Obstacles(context.Background()); !errors.Is(err, ErrStale) {
		t.Errorf("after staleness Obstacles() error = %v, want ErrStale", err)
	}
}

func TestPingPong(t *testing.T) {
	h := NewHub(quietLogger(), 0, 0)
	ws := startHub(t, h, 18185, "kibo")

	ping, _ := protocol.NewMessage(protocol.TypePing, nil)
	data, _ := ping.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, reply, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", msg.Type)
	}
}

func TestAPIListRovers(t *testing.T) {
	h := NewHub(quietLogger(), 0, 0)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/rovers/", nil))
	if err != nil {
		t.Fatalf("Test error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}
