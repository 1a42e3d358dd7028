// Kibo - navigation and obstacle avoidance service for the Kibo rover
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/kibo-rover/go-kibo/internal/config"
	"github.com/kibo-rover/go-kibo/pkg/kibo"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("⚠️  %v", err)
	}
	cfg := parseFlags()

	app, err := kibo.New(cfg)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags parses command line flags and returns configuration.
// Environment variables fill in whatever the flags leave at their defaults.
func parseFlags() kibo.Config {
	cfg := kibo.DefaultConfig()

	logLevel := flag.String("log-level", config.Env("KIBO_LOG_LEVEL", cfg.LogLevel), "Log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", config.EnvBool("KIBO_LOG_JSON", false), "Log as JSON")
	roverIP := flag.String("rover-ip", "", "Rover IP address (overrides KIBO_ROVER_IP)")
	roverID := flag.String("rover-id", cfg.RoverID, "Rover name used in telemetry topics and cache keys")
	addr := flag.String("addr", config.Env("KIBO_ADDR", cfg.Addr), "Dashboard and rover link listen address")
	static := flag.String("static", "", "Directory with dashboard assets")
	motorBackend := flag.String("motor", cfg.Motor, "Motor backend: http, link, sim")
	speaker := flag.String("speaker", cfg.Speaker, "Announcement backend: openai, log")
	feed := flag.String("feed", cfg.Feed, "Obstacle feed: http, link")
	playback := flag.String("playback", cfg.Playback, "Where synthesized audio plays: http, link")
	voice := flag.String("tts-voice", cfg.TTSVoice, "OpenAI TTS voice")
	model := flag.String("tts-model", cfg.TTSModel, "OpenAI TTS model; tts-1 backs up any other model")
	tuning := flag.String("tuning", "", "YAML tuning file, reloaded on change")
	routeFile := flag.String("route", "", "Route file to start at boot (steps or directions JSON)")
	ackTimeout := flag.Duration("ack-timeout", config.EnvDuration("KIBO_ACK_TIMEOUT", 3*time.Second), "Extra time allowed for rover acknowledgements")
	sim := flag.Bool("sim", false, "Dry run: simulated motors and logged announcements")
	flag.Parse()

	cfg.LogLevel, cfg.LogJSON = *logLevel, *logJSON
	cfg.RoverID, cfg.Addr, cfg.StaticDir = *roverID, *addr, *static
	cfg.Motor, cfg.Speaker, cfg.Feed, cfg.Playback = *motorBackend, *speaker, *feed, *playback
	cfg.TTSVoice, cfg.TTSModel = *voice, *model
	cfg.TuningFile, cfg.RouteFile = *tuning, *routeFile
	cfg.LinkAckTimeout = *ackTimeout
	if *roverIP != "" {
		cfg.RoverIP = *roverIP
	}
	if *sim {
		cfg.Motor, cfg.Speaker = kibo.BackendSim, kibo.BackendLog
	}
	return cfg
}
