package protocol

import (
	"encoding/base64"
	"time"
)

// NewMotorMessage creates a motor command.
func NewMotorMessage(id, action string, d time.Duration) (*Message, error) {
	msg, err := NewMessage(TypeMotor, MotorCommand{Action: action, Duration: d.Seconds()})
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewSpeakMessage creates a speak command from raw audio.
func NewSpeakMessage(id, text string, audio []byte, format string, sampleRate int) (*Message, error) {
	msg, err := NewMessage(TypeSpeak, SpeakData{
		Text:       text,
		Format:     format,
		SampleRate: sampleRate,
		Data:       base64.StdEncoding.EncodeToString(audio),
	})
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewAckMessage answers the command with the given id.
func NewAckMessage(t MessageType, id string, cmdErr error) (*Message, error) {
	ack := AckData{OK: cmdErr == nil}
	if cmdErr != nil {
		ack.Error = cmdErr.Error()
	}
	msg, err := NewMessage(t, ack)
	if err != nil {
		return nil, err
	}
	return msg.WithID(id), nil
}

// NewPongMessage answers a ping sent at pingTS.
func NewPongMessage(pingTS int64) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{PingTS: pingTS, PongTS: now, LatencyMs: now - pingTS})
}

// GetMotorCommand extracts a motor command.
func (m *Message) GetMotorCommand() (*MotorCommand, error) {
	var data MotorCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DurationValue converts the wire duration back to a time.Duration.
func (c *MotorCommand) DurationValue() time.Duration {
	return time.Duration(c.Duration * float64(time.Second))
}

// GetSpeakData extracts speak data.
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Audio decodes the base64 clip.
func (s *SpeakData) Audio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.Data)
}

// GetAck extracts an acknowledgement.
func (m *Message) GetAck() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetObstacles extracts detections.
func (m *Message) GetObstacles() (*ObstaclesData, error) {
	var data ObstaclesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts bridge state.
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts a pong.
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
