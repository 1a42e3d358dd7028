// Package protocol defines the WebSocket messages exchanged between the
// navigation service and the on-board rover bridge.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kibo-rover/go-kibo/pkg/obstacle"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Service → rover
	TypeMotor MessageType = "motor" // timed motor primitive
	TypeSpeak MessageType = "speak" // play an audio clip

	// Rover → service
	TypeMotorAck  MessageType = "motor_ack"  // motor primitive finished
	TypeSpeakDone MessageType = "speak_done" // playback finished
	TypeObstacles MessageType = "obstacles"  // latest detections
	TypeState     MessageType = "state"      // bridge status

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope for every WebSocket message. ID correlates a
// command with its acknowledgement.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s data: %w", msgType, err)
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// WithID sets the correlation ID and returns m.
func (m *Message) WithID(id string) *Message {
	m.ID = id
	return m
}

// ParseData unmarshals the payload into v. An empty payload is not an error.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON encoding of m.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes a message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol: message without type")
	}
	return &msg, nil
}

// MotorCommand asks the bridge to run one primitive. Action is one of
// forward, backward, left, right, stop.
type MotorCommand struct {
	Action   string  `json:"action"`
	Duration float64 `json:"duration"` // seconds
}

// SpeakData carries a synthesized clip.
type SpeakData struct {
	Text       string `json:"text,omitempty"`
	Format     string `json:"format"` // MIME type
	SampleRate int    `json:"sample_rate,omitempty"`
	Data       string `json:"data"` // base64
}

// AckData reports the outcome of a command.
type AckData struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ObstaclesData carries the bridge's latest detections, in the detection
// service's format.
type ObstaclesData struct {
	Obstacles []obstacle.Obstacle `json:"obstacles"`
}

// StateData describes the bridge.
type StateData struct {
	Battery  float64 `json:"battery,omitempty"` // 0-100
	Camera   bool    `json:"camera"`
	Detector bool    `json:"detector"`
}

// PongData answers a ping.
type PongData struct {
	PingTS    int64 `json:"ping_ts"`
	PongTS    int64 `json:"pong_ts"`
	LatencyMs int64 `json:"latency_ms"`
}
