package navigation

import (
	"strings"

	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

// DeriveCommand picks the primitive for a step. The instruction text wins:
// "turn left"/"turn right" anywhere in it, case-insensitive. Otherwise a
// left or right maneuver decides, and everything else goes forward.
func DeriveCommand(step route.Step) motor.Command {
	text := strings.ToLower(step.Instruction)
	switch {
	case strings.Contains(text, "turn left"):
		return motor.Left
	case strings.Contains(text, "turn right"):
		return motor.Right
	case step.Maneuver.IsLeft():
		return motor.Left
	case step.Maneuver.IsRight():
		return motor.Right
	}
	return motor.Forward
}
