package announce

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/route"
)

// Fixed phrases.
const (
	WaitPhrase      = "Stopping to wait for obstacles to clear"
	EmergencyPhrase = "Cannot safely navigate around obstacles. Please assist or provide new directions."
	ArrivalPhrase   = "You have reached your destination!"
)

const streetName = `([^,\s]+(?:\s+[^,\s]+)*)`

var (
	forwardStreet    = regexp.MustCompile(`(?i)\b(?:on|along|down)\s+` + streetName)
	leftStreet       = regexp.MustCompile(`(?i)turn left (?:onto|into|on)\s+` + streetName)
	rightStreet      = regexp.MustCompile(`(?i)turn right (?:onto|into|on)\s+` + streetName)
	roundaboutExit   = regexp.MustCompile(`(?i)take the (\d+(?:st|nd|rd|th)) exit`)
	roundaboutStreet = regexp.MustCompile(`(?i)\b(?:onto|on)\s+` + streetName)
)

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Street extracts the street name a step refers to for cmd, or "".
func Street(cmd motor.Command, instruction string) string {
	switch cmd {
	case motor.Left:
		return submatch(leftStreet, instruction)
	case motor.Right:
		return submatch(rightStreet, instruction)
	default:
		return submatch(forwardStreet, instruction)
	}
}

func meters(m float64) string {
	return fmt.Sprintf("%.0f", m)
}

// Movement builds the announcement spoken before a step's motion.
func Movement(cmd motor.Command, step route.Step) string {
	dist := meters(step.DistanceMeters)
	instr := step.Instruction

	if step.Maneuver.IsRoundabout() || strings.Contains(strings.ToLower(instr), "roundabout") {
		exit := submatch(roundaboutExit, instr)
		if exit == "" {
			exit = "next"
		}
		if street := submatch(roundaboutStreet, instr); street != "" {
			return fmt.Sprintf("Kibo will navigate the roundabout, taking the %s exit onto %s, continuing for %s meters", exit, street, dist)
		}
		return fmt.Sprintf("Kibo will navigate the roundabout, taking the %s exit, continuing for %s meters", exit, dist)
	}

	switch cmd {
	case motor.Left, motor.Right:
		street := Street(cmd, instr)
		switch {
		case street != "" && step.DistanceMeters > 0:
			return fmt.Sprintf("Kibo will now turn %s onto %s and continue for %s meters", cmd, street, dist)
		case street != "":
			return fmt.Sprintf("Kibo will now turn %s onto %s", cmd, street)
		}
		return fmt.Sprintf("Kibo will now turn %s and continue %s meters", cmd, dist)
	case motor.Backward:
		return fmt.Sprintf("Kibo will now move backward %s meters", dist)
	}

	if street := Street(motor.Forward, instr); street != "" {
		return fmt.Sprintf("Kibo will now continue forward on %s for %s meters, monitoring for obstacles", street, dist)
	}
	return fmt.Sprintf("Kibo will now move forward %s meters with obstacle detection active", dist)
}

// Obstacles builds the announcement made when avoidance starts.
func Obstacles(types []string) string {
	if len(types) == 0 {
		return "Obstacle detected. Finding safe path."
	}
	return fmt.Sprintf("Obstacles detected: %s. Finding safe path.", strings.Join(types, ", "))
}
