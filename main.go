// Command shooting-star runs the shooting-star chat bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to SQLite or Postgres and runs idempotent migrations.
//   - Connects to Discord or Twitch and routes chat into the star game.
//   - Runs the event clock that generates the daily schedule and arms stars.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /leaderboard and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/shooting-star/chat"
	"github.com/onnwee/shooting-star/config"
	"github.com/onnwee/shooting-star/db"
	"github.com/onnwee/shooting-star/ledger"
	"github.com/onnwee/shooting-star/schedule"
	"github.com/onnwee/shooting-star/server"
	"github.com/onnwee/shooting-star/star"
	"github.com/onnwee/shooting-star/telemetry"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidatePlatform(); err != nil {
		slog.Error("platform config invalid", slog.Any("err", err))
		os.Exit(1)
	}
	if len(cfg.ChannelIDs) == 0 {
		slog.Warn("CHANNEL_IDS is empty; no stars will be scheduled")
	}
	if len(cfg.Words) < cfg.EventsPerDay {
		slog.Warn("word pool smaller than events per day; words will repeat", slog.Int("words", len(cfg.Words)), slog.Int("events_per_day", cfg.EventsPerDay))
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("shooting-star", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, dialect, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; the embedded SQL covers databases created
	// before schema_migrations existed.
	slog.Info("running database migrations", slog.String("dialect", string(dialect)), slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database, dialect); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database, dialect); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
	}

	var store schedule.Store
	switch cfg.ScheduleStore {
	case config.StoreDB:
		store = schedule.NewKVStore(database, dialect)
	default:
		store = schedule.NewFileStore(cfg.SchedulePath)
	}

	var platform chat.Platform
	switch cfg.Platform {
	case config.PlatformTwitch:
		platform = chat.NewTwitch(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannels)
	default:
		d, err := chat.NewDiscord(cfg.DiscordToken, cfg.StarImage)
		if err != nil {
			slog.Error("discord init failed", slog.Any("err", err))
			os.Exit(1)
		}
		platform = d
	}

	l := ledger.New(database, dialect)
	sky := star.NewSky(platform, l, star.Config{Reward: cfg.Reward, Window: cfg.CatchWindow})
	defer sky.Close()

	clock := &star.Clock{
		Store:     store,
		Generator: schedule.NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano()))),
		Sky:       sky,
		Channels:  cfg.ChannelIDs,
		Words:     cfg.Words,
		PerDay:    cfg.EventsPerDay,
		Location:  cfg.Location,
		Ready:     platform.Connected,
	}
	router := &chat.Router{Platform: platform, Sky: sky, Ledger: l, OwnerID: cfg.OwnerID}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting bot",
		slog.String("platform", platform.Name()),
		slog.Int("channel_count", len(cfg.ChannelIDs)),
		slog.String("schedule_store", cfg.ScheduleStore),
		slog.String("tz", cfg.Location.String()))

	go func() {
		if err := platform.Run(ctx, router); err != nil {
			slog.Error("chat platform exited with error", slog.Any("err", err))
			stop()
		}
	}()
	go func() {
		if err := clock.Run(ctx, cfg.TickInterval); err != nil {
			slog.Error("event clock exited with error", slog.Any("err", err))
			stop()
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		deps := server.Deps{
			DB:         database,
			Sky:        sky,
			Schedule:   store,
			Ledger:     l,
			Platform:   platform,
			AdminToken: cfg.AdminToken,
		}
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
