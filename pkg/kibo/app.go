package kibo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kibo-rover/go-kibo/internal/config"
	"github.com/kibo-rover/go-kibo/internal/log"
	"github.com/kibo-rover/go-kibo/pkg/announce"
	"github.com/kibo-rover/go-kibo/pkg/history"
	"github.com/kibo-rover/go-kibo/pkg/link"
	"github.com/kibo-rover/go-kibo/pkg/motor"
	"github.com/kibo-rover/go-kibo/pkg/navigation"
	"github.com/kibo-rover/go-kibo/pkg/obstacle"
	"github.com/kibo-rover/go-kibo/pkg/route"
	"github.com/kibo-rover/go-kibo/pkg/snapshot"
	"github.com/kibo-rover/go-kibo/pkg/telemetry"
	"github.com/kibo-rover/go-kibo/pkg/tts"
	"github.com/kibo-rover/go-kibo/pkg/web"
)

// App is the Kibo navigation service. It owns every component and their
// lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	// Rover
	link    *link.Hub
	motor   motor.Driver
	monitor *obstacle.Monitor
	speaker announce.Speaker
	tts     tts.Provider

	// Navigation
	nav    *navigation.Coordinator
	tuning *config.TuningStore

	// Sinks
	web       *web.Server
	telemetry *telemetry.Publisher
	snapshot  *snapshot.Cache
	history   *history.Recorder
	store     *history.GormStore

	mu        sync.RWMutex
	listeners navigation.Listeners
}

// New creates the application. Environment overrides are applied before
// validation.
func New(cfg Config) (*App, error) {
	cfg.LoadEnvConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config: cfg,
		logger: log.New(os.Stderr, cfg.LogLevel, cfg.LogJSON),
	}, nil
}

// Init builds all components. Call it after New and before Run. Optional
// sinks that fail to connect are logged and skipped.
func (a *App) Init(ctx context.Context) error {
	slog.SetDefault(a.logger)
	a.logger.Info("kibo navigation starting", "rover", a.config.RoverIP,
		"motor", a.config.Motor, "speaker", a.config.Speaker, "feed", a.config.Feed)

	if a.config.UsesLink() {
		a.link = link.NewHub(a.logger, a.config.LinkAckTimeout, 0)
	}

	navCfg := navigation.DefaultConfig()
	thresholds := obstacle.DefaultThresholds()
	interval := obstacle.DefaultInterval
	if a.config.TuningFile != "" {
		store, err := config.LoadTuning(a.config.TuningFile)
		if err != nil {
			return fmt.Errorf("tuning: %w", err)
		}
		a.tuning = store
		t := store.Current()
		navCfg = ApplyTuning(navCfg, t)
		thresholds = ApplyThresholds(thresholds, t)
		if t.Obstacle.Interval > 0 {
			interval = t.Obstacle.Interval
		}
	}

	a.motor = a.buildMotor()
	a.monitor = obstacle.NewMonitor(a.buildFeed(),
		obstacle.WithInterval(interval),
		obstacle.WithThresholds(thresholds),
		obstacle.WithLogger(a.logger))

	speaker, err := a.buildSpeaker()
	if err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	a.speaker = speaker

	a.nav = navigation.New(navCfg, navigation.Collaborators{
		Motor:    a.motor,
		Monitor:  a.monitor,
		Speaker:  a.speaker,
		Listener: navigation.ListenerFunc(a.dispatch),
		Logger:   a.logger,
	})

	a.web = web.NewServer(a.nav, a.config.StaticDir, a.logger)
	a.addListener(a.web)
	if a.link != nil {
		a.link.RegisterRoutes(a.web.App())
		a.link.RegisterAPIRoutes(a.web.App().Group("/api"))
	}

	a.initSinks(ctx)

	if a.tuning != nil {
		a.tuning.Watch(func(t config.Tuning) {
			a.nav.Reconfigure(ApplyTuning(a.nav.Config(), t))
			a.logger.Info("tuning reloaded", "file", a.config.TuningFile)
		})
	}
	return nil
}

func (a *App) buildMotor() motor.Driver {
	switch a.config.Motor {
	case BackendLink:
		return link.NewMotorDriver(a.link, "")
	case BackendSim:
		return motor.NewSim(a.logger)
	default:
		return motor.NewHTTPDriver(config.MotorURL(a.config.RoverIP))
	}
}

func (a *App) buildFeed() obstacle.Feed {
	if a.config.Feed == BackendLink {
		return a.link
	}
	return obstacle.NewHTTPFeed(config.DetectionURL(a.config.RoverIP), 0)
}

func (a *App) buildSpeaker() (announce.Speaker, error) {
	if a.config.Speaker == BackendLog {
		return announce.NewLogSpeaker(a.logger, true), nil
	}

	// tts-1 backs up any other model.
	models := []string{a.config.TTSModel}
	if a.config.TTSModel != tts.ModelTTS1 {
		models = append(models, tts.ModelTTS1)
	}
	var providers []tts.Provider
	for _, model := range models {
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(a.config.OpenAIKey),
			tts.WithVoice(a.config.TTSVoice),
			tts.WithModel(model),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	provider, err := tts.NewChain(a.logger, providers...)
	if err != nil {
		return nil, err
	}
	a.tts = provider

	var sink announce.Sink
	if a.config.Playback == BackendLink {
		sink = link.NewSink(a.link, "")
	} else {
		sink = announce.NewHTTPSink(config.SpeakerURL(a.config.RoverIP))
	}
	return announce.NewTTSSpeaker(provider, sink), nil
}

func (a *App) initSinks(ctx context.Context) {
	if a.config.MQTTBroker != "" {
		cfg := telemetry.DefaultConfig()
		cfg.Broker = a.config.MQTTBroker
		cfg.Username = a.config.MQTTUsername
		cfg.Password = a.config.MQTTPassword
		cfg.RoverID = a.config.RoverID
		cfg.ClientID = "kibo-navigation-" + a.config.RoverID
		pub, err := telemetry.Connect(cfg, a.nav, a.logger)
		if err != nil {
			a.logger.Warn("telemetry disabled", "error", err)
		} else {
			a.telemetry = pub
			a.addListener(pub)
		}
	}

	if a.config.RedisAddr != "" {
		cache, err := snapshot.Dial(ctx, snapshot.Config{
			Addr:     a.config.RedisAddr,
			Password: a.config.RedisPassword,
			DB:       a.config.RedisDB,
			RoverID:  a.config.RoverID,
		}, a.nav, a.logger)
		if err != nil {
			a.logger.Warn("snapshot cache disabled", "error", err)
		} else {
			a.snapshot = cache
			a.addListener(cache)
		}
	}

	if a.config.DatabaseURL != "" {
		store, err := history.Open(a.config.DatabaseURL, a.logger)
		if err != nil {
			a.logger.Warn("run history disabled", "error", err)
		} else {
			a.store = store
			a.history = history.NewRecorder(store, a.logger)
			a.addListener(a.history)
			history.RegisterAPIRoutes(a.web.App().Group("/api"), store)
		}
	}
}

func (a *App) addListener(l navigation.Listener) {
	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.mu.Unlock()
}

func (a *App) dispatch(e navigation.Event) {
	a.mu.RLock()
	ls := a.listeners
	a.mu.RUnlock()
	ls.OnEvent(e)
}

// Navigator returns the coordinator.
func (a *App) Navigator() *navigation.Coordinator { return a.nav }

// Run starts background workers and the dashboard, starts the boot route if
// one is configured, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.telemetry != nil {
		go a.telemetry.Run(ctx)
	}
	if a.snapshot != nil {
		go a.snapshot.Run(ctx)
	}
	if a.history != nil {
		go a.history.Run(ctx)
	}

	if a.config.RouteFile != "" {
		if err := a.startRouteFile(ctx); err != nil {
			return err
		}
	}

	err := a.web.Run(ctx, a.config.Addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (a *App) startRouteFile(ctx context.Context) error {
	var src route.Source = route.FileSource{Path: a.config.RouteFile}
	steps, err := src.Steps(ctx)
	if err != nil {
		return fmt.Errorf("route: %w", err)
	}
	runID, err := a.nav.StartRoute(ctx, steps)
	if err != nil {
		return fmt.Errorf("route: %w", err)
	}
	a.logger.Info("boot route started", "file", a.config.RouteFile, "steps", len(steps), "run", runID)
	return nil
}

// Shutdown stops navigation and closes every component.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.nav != nil {
		a.nav.Stop(ctx, "shutdown")
		a.nav.Wait(ctx)
	}
	if a.telemetry != nil {
		a.telemetry.Close()
	}
	if a.snapshot != nil {
		a.snapshot.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.tts != nil {
		a.tts.Close()
	}
	a.logger.Info("kibo navigation stopped")
}
