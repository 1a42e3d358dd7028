// Package config provides configuration helpers for go-kibo commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default rover ports. The motor bridge and the detection service run as
// separate processes on the rover's Pi.
const (
	DefaultMotorPort     = "5001"
	DefaultDetectionPort = "5005"
	DefaultSpeakerPort   = "5002"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Existing variables win.
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// RoverIP returns the rover IP from KIBO_ROVER_IP.
// Falls back to the provided default if not set.
func RoverIP(defaultIP string) string {
	return Env("KIBO_ROVER_IP", defaultIP)
}

// MotorURL returns the base URL of the rover's motor bridge.
func MotorURL(roverIP string) string {
	return Env("KIBO_MOTOR_URL", fmt.Sprintf("http://%s:%s", roverIP, DefaultMotorPort))
}

// DetectionURL returns the base URL of the rover's obstacle detection service.
func DetectionURL(roverIP string) string {
	return Env("KIBO_DETECTION_URL", fmt.Sprintf("http://%s:%s", roverIP, DefaultDetectionPort))
}

// SpeakerURL returns the base URL of the rover's audio playback endpoint.
func SpeakerURL(roverIP string) string {
	return Env("KIBO_SPEAKER_URL", fmt.Sprintf("http://%s:%s", roverIP, DefaultSpeakerPort))
}

// Env returns the value of key, or def when unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt returns key parsed as an int, or def when unset or malformed.
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// EnvBool returns key parsed as a bool, or def when unset or malformed.
func EnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// EnvDuration returns key parsed with time.ParseDuration, or def.
func EnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
