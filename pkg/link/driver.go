package link

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/protocol"
	"github.com/kibo-rover/go-kibo/pkg/tts"
)

// MotorDriver drives the rover over the link. Each call returns when the
// bridge acknowledges that the primitive finished.
type MotorDriver struct {
	hub   *Hub
	rover string
}

// NewMotorDriver returns a driver for roverID; empty means the primary rover.
func NewMotorDriver(h *Hub, roverID string) *MotorDriver {
	return &MotorDriver{hub: h, rover: roverID}
}

func (d *MotorDriver) run(ctx context.Context, cmd motor.Command, dur time.Duration) error {
	msg, err := protocol.NewMotorMessage(uuid.NewString(), string(cmd), dur)
	if err != nil {
		return err
	}
	ack, err := d.hub.Request(ctx, d.rover, msg, dur)
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("%w: %s", motor.ErrRejected, ack.Error)
	}
	return nil
}

// Forward drives forward for dur.
func (d *MotorDriver) Forward(ctx context.Context, dur time.Duration) error {
	return d.run(ctx, motor.Forward, dur)
}

// Backward drives backward for dur.
func (d *MotorDriver) Backward(ctx context.Context, dur time.Duration) error {
	return d.run(ctx, motor.Backward, dur)
}

// TurnLeft rotates left for dur.
func (d *MotorDriver) TurnLeft(ctx context.Context, dur time.Duration) error {
	return d.run(ctx, motor.Left, dur)
}

// TurnRight rotates right for dur.
func (d *MotorDriver) TurnRight(ctx context.Context, dur time.Duration) error {
	return d.run(ctx, motor.Right, dur)
}

// Stop halts the rover.
func (d *MotorDriver) Stop(ctx context.Context) error {
	return d.run(ctx, motor.Stop, 0)
}

// Sink plays clips on the rover's speaker over the link.
type Sink struct {
	hub   *Hub
	rover string
}

// NewSink returns a sink for roverID; empty means the primary rover.
func NewSink(h *Hub, roverID string) *Sink {
	return &Sink{hub: h, rover: roverID}
}

// Play sends the clip and waits for playback to finish.
func (s *Sink) Play(ctx context.Context, clip *tts.Clip) error {
	msg, err := protocol.NewSpeakMessage(uuid.NewString(), clip.Text, clip.Audio, clip.Format.MIMEType, clip.Format.SampleRate)
	if err != nil {
		return err
	}
	ack, err := s.hub.Request(ctx, s.rover, msg, clip.Duration)
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("link: playback failed: %s", ack.Error)
	}
	return nil
}
