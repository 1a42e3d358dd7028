package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/kibo-rover/go-kibo/pkg/navigation"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.nav.State())
}

func (s *Server) handlePose(c *fiber.Ctx) error {
	return c.JSON(s.nav.Pose())
}

func (s *Server) handleProgress(c *fiber.Ctx) error {
	st := s.nav.State()
	return c.JSON(fiber.Map{
		"progress":    s.nav.Progress(),
		"step_index":  st.StepIndex,
		"total_steps": st.TotalSteps,
		"active":      st.Active,
	})
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

// handleStartRoute accepts either a step list or a directions result.
func (s *Server) handleStartRoute(c *fiber.Ctx) error {
	steps, err := route.Decode(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	id, err := s.nav.StartRoute(c.UserContext(), steps)
	switch {
	case errors.Is(err, navigation.ErrActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": id, "steps": len(steps)})
}

// StopRequest is the optional body of POST /api/stop.
type StopRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	var req StopRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if req.Reason == "" {
		req.Reason = "dashboard stop"
	}
	if !s.nav.Stop(c.UserContext(), req.Reason) {
		return fiber.NewError(fiber.StatusConflict, navigation.ErrNotActive.Error())
	}
	return c.JSON(fiber.Map{"stopped": true})
}

// VoiceRequest is the body of POST /api/voice.
type VoiceRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleVoice(c *fiber.Ctx) error {
	var req VoiceRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}
	if !s.nav.HandleVoiceCommand(c.UserContext(), req.Text) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"accepted": false,
			"reason":   "only STOP is accepted while the rover is moving",
		})
	}
	return c.JSON(fiber.Map{"accepted": true})
}

// handleLogsWS replays the buffered log and then streams new entries.
func (s *Server) handleLogsWS(c *websocket.Conn) {
	logs := s.Logs()
	backlog := make([][]byte, 0, len(logs))
	for _, entry := range logs {
		if data, err := json.Marshal(entry); err == nil {
			backlog = append(backlog, data)
		}
	}
	if err := s.logHub.Serve(c, backlog...); err != nil {
		s.logger.Debug("log subscriber rejected", "error", err)
	}
}

// handleStatusWS sends the current state and then streams navigation events.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var backlog [][]byte
	if data, err := json.Marshal(s.nav.State()); err == nil {
		backlog = append(backlog, data)
	}
	if err := s.statusHub.Serve(c, backlog...); err != nil {
		s.logger.Debug("status subscriber rejected", "error", err)
	}
}
