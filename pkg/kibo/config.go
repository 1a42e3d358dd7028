// Package kibo wires the navigation coordinator to the rover, the dashboard
// and the optional telemetry, snapshot and history sinks.
package kibo

import (
	"strconv"
	"time"

	"github.com/kibo-rover/go-kibo/internal/config"
	"github.com/kibo-rover/go-kibo/pkg/tts"
)

// Default configuration values.
const (
	DefaultRoverIP = "192.168.1.50"
	DefaultAddr    = ":8080"
	DefaultRoverID = "kibo"
)

// Backend names.
const (
	BackendHTTP   = "http"
	BackendLink   = "link"
	BackendSim    = "sim"
	BackendOpenAI = "openai"
	BackendLog    = "log"
)

// Config holds all configuration for the Kibo application.
// Flag parsing is done in cmd/kibo/main.go; this struct is data only.
type Config struct {
	// LogLevel is debug, info, warn or error.
	LogLevel string
	LogJSON  bool

	RoverIP string
	RoverID string

	// Addr is the dashboard and rover link listen address.
	Addr      string
	StaticDir string

	// Backends.
	Motor    string // "http", "link", "sim"
	Speaker  string // "openai", "log"
	Feed     string // "http", "link"
	Playback string // "http", "link"; where synthesized audio is played

	TTSVoice  string
	TTSModel  string
	OpenAIKey string

	// TuningFile is an optional YAML file watched for changes.
	TuningFile string

	// RouteFile is started at boot when set. It holds a step list or a
	// directions result.
	RouteFile string

	LinkAckTimeout time.Duration

	// Optional sinks, enabled when their endpoint is set.
	MQTTBroker    string
	MQTTUsername  string
	MQTTPassword  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
}

// DefaultConfig returns defaults for a rover reachable over HTTP.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		RoverIP:  DefaultRoverIP,
		RoverID:  DefaultRoverID,
		Addr:     DefaultAddr,
		Motor:    BackendHTTP,
		Speaker:  BackendOpenAI,
		Feed:     BackendHTTP,
		Playback: BackendHTTP,
		TTSVoice: tts.VoiceNova,
		TTSModel: tts.ModelTTS1HD,
	}
}

// LoadEnvConfig fills fields left at their defaults from the environment,
// so flags win over environment variables.
func (c *Config) LoadEnvConfig() {
	if c.RoverIP == "" || c.RoverIP == DefaultRoverIP {
		c.RoverIP = config.RoverIP(DefaultRoverIP)
	}
	fill(&c.OpenAIKey, "OPENAI_API_KEY")
	fill(&c.TuningFile, "KIBO_TUNING_FILE")
	fill(&c.MQTTBroker, "KIBO_MQTT_BROKER")
	fill(&c.MQTTUsername, "KIBO_MQTT_USERNAME")
	fill(&c.MQTTPassword, "KIBO_MQTT_PASSWORD")
	fill(&c.RedisAddr, "KIBO_REDIS_ADDR")
	fill(&c.RedisPassword, "KIBO_REDIS_PASSWORD")
	fill(&c.DatabaseURL, "KIBO_DATABASE_URL")
	if c.RedisDB == 0 {
		c.RedisDB = config.EnvInt("KIBO_REDIS_DB", 0)
	}
}

func fill(dst *string, key string) {
	if *dst == "" {
		*dst = config.Env(key, "")
	}
}

// Validate checks backend names and required credentials.
func (c *Config) Validate() error {
	if err := oneOf("Motor", c.Motor, BackendHTTP, BackendLink, BackendSim); err != nil {
		return err
	}
	if err := oneOf("Speaker", c.Speaker, BackendOpenAI, BackendLog); err != nil {
		return err
	}
	if err := oneOf("Feed", c.Feed, BackendHTTP, BackendLink); err != nil {
		return err
	}
	if err := oneOf("Playback", c.Playback, BackendHTTP, BackendLink); err != nil {
		return err
	}
	if c.Speaker == BackendOpenAI && c.OpenAIKey == "" {
		return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for the openai speaker"}
	}
	return nil
}

// UsesLink reports whether any backend talks to the rover over the link.
func (c *Config) UsesLink() bool {
	return c.Motor == BackendLink || c.Feed == BackendLink || (c.Speaker == BackendOpenAI && c.Playback == BackendLink)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ConfigError{Field: field, Message: field + ": unknown backend " + strconv.Quote(value)}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
