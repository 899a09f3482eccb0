package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/buildersguild/sentinel/internal/bus"
	"github.com/buildersguild/sentinel/internal/channels/discord"
	"github.com/buildersguild/sentinel/internal/classifier"
	"github.com/buildersguild/sentinel/internal/config"
	"github.com/buildersguild/sentinel/internal/gateway"
	"github.com/buildersguild/sentinel/internal/history"
	"github.com/buildersguild/sentinel/internal/moderation"
	"github.com/buildersguild/sentinel/internal/store/sqlite"
	"github.com/buildersguild/sentinel/internal/telemetry"
)

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func runBot() {
	// Secrets (token, API key) usually live in a local .env file.
	godotenv.Load()
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Channels.Discord.Token == "" {
		slog.Error("no Discord token configured, set SENTINEL_DISCORD_TOKEN")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(flushCtx)
	}()

	outcomes, err := sqlite.Open(config.ExpandHome(cfg.Store.Path))
	if err != nil {
		slog.Error("failed to open outcome store", "error", err)
		os.Exit(1)
	}
	defer outcomes.Close()

	eventBus := bus.NewEventBus()
	defer eventBus.Close()

	buffers := history.NewManager(cfg.Moderation.BufferCapacity)
	cls := classifier.NewOpenAIClassifier(cfg.Classifier)
	moderator := moderation.NewModerator(cfg, buffers, cls, outcomes, eventBus)
	sched := moderation.NewScheduler(buffers, moderator.Check,
		func() time.Duration {
			return time.Duration(cfg.ModerationSettings().QuietPeriodSecs) * time.Second
		},
		func() int {
			return cfg.ModerationSettings().CheckThreshold
		},
	)

	dc, err := discord.New(cfg, eventBus)
	if err != nil {
		slog.Error("failed to initialize discord channel", "error", err)
		os.Exit(1)
	}
	if err := dc.Start(ctx); err != nil {
		slog.Error("failed to start discord channel", "error", err)
		os.Exit(1)
	}
	defer dc.Stop(context.Background())
	moderator.SetBotID(dc.BotUserID())

	g, gctx := errgroup.WithContext(ctx)

	// Config file watcher: moderation tunables reload without restart.
	g.Go(func() error {
		if err := config.Watch(gctx, cfgPath, cfg); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		consumeEvents(gctx, eventBus, buffers, sched, moderator)
		return nil
	})

	g.Go(func() error {
		deliverOutbound(gctx, eventBus, dc)
		return nil
	})

	if cfg.Gateway.Port > 0 {
		server := gateway.NewServer(cfg, eventBus, outcomes)
		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	slog.Info("sentinel starting",
		"version", Version,
		"watched_channels", len(cfg.DiscordSettings().AllowChannels),
		"respond_mode", string(cfg.ModerationSettings().RespondMode),
	)

	if err := g.Wait(); err != nil {
		slog.Error("sentinel stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("graceful shutdown complete")
}
