package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiPkg "github.com/stageline-io/stageline/internal/api"
	"github.com/stageline-io/stageline/internal/config"
	"github.com/stageline-io/stageline/internal/expander"
	"github.com/stageline-io/stageline/internal/logbuf"
	"github.com/stageline-io/stageline/internal/notify"
	"github.com/stageline-io/stageline/internal/planner"
	"github.com/stageline-io/stageline/internal/provider"
	"github.com/stageline-io/stageline/internal/session"
	"github.com/stageline-io/stageline/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("stagelined starting", "provider", cfg.Provider.Type)

	// 1. Initialize the generation provider
	var prov provider.Provider
	switch cfg.Provider.Type {
	case "anthropic":
		var opts []provider.AnthropicOption
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(cfg.Provider.BaseURL))
		}
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(cfg.Provider.Model))
		}
		prov = provider.NewAnthropic(cfg.Provider.APIKey, opts...)
	default: // "openai" or empty
		var opts []provider.OpenAIOption
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(cfg.Provider.BaseURL))
		}
		if cfg.Provider.Model != "" {
			opts = append(opts, provider.WithModel(cfg.Provider.Model))
		}
		prov = provider.NewOpenAI(cfg.Provider.APIKey, opts...)
	}
	logger.Info("provider initialized", "name", prov.Name(), "model", cfg.Provider.Model)

	plan := planner.New(prov, logger.With("component", "planner"))
	exp := expander.New(prov, logger.With("component", "expander"))

	// 2. Open the session store
	os.MkdirAll(cfg.Session.DataDir, 0o755)
	dbPath := cfg.Session.DataDir + "/sessions.db"
	store, err := session.NewStore(dbPath)
	if err != nil {
		logger.Error("failed to open session store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	// store will be cleaned up when the process exits

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracker client + projector, only when configured
	var projector apiPkg.IssueProjector
	var directory apiPkg.TrackerDirectory
	if cfg.Tracker.APIKey != "" {
		var opts []tracker.ClientOption
		if cfg.Tracker.BaseURL != "" {
			opts = append(opts, tracker.WithEndpoint(cfg.Tracker.BaseURL))
		}
		client := tracker.NewClient(cfg.Tracker.APIKey, opts...)
		projector = tracker.NewProjector(client, logger.With("component", "projector"))
		directory = client
		logger.Info("tracker configured", "team", cfg.Tracker.TeamID)
	} else {
		logger.Warn("tracker api key not set, projection disabled")
	}

	// 4. Slack notifier, only when configured
	var notifier apiPkg.ProjectionNotifier
	if cfg.Notify.SlackToken != "" {
		notifier = notify.New(cfg.Notify.SlackToken, cfg.Notify.SlackChannel,
			logger.With("component", "notify"))
		logger.Info("slack notifications enabled", "channel", cfg.Notify.SlackChannel)
	}

	// 5. Session janitor
	if cfg.Session.RetentionHours > 0 {
		retention := time.Duration(cfg.Session.RetentionHours) * time.Hour
		janitor, err := session.NewJanitor(store, cfg.Session.SweepSchedule, retention,
			logger.With("component", "janitor"))
		if err != nil {
			logger.Error("failed to init session janitor", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "janitor", func() { janitor.Start(ctx) })
		logger.Info("session janitor started", "schedule", cfg.Session.SweepSchedule, "retention_hours", cfg.Session.RetentionHours)
	}

	// 6. Start API server
	apiSrv := apiPkg.NewServer(plan, exp, projector, directory, store, notifier, apiPkg.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		Key:              cfg.Server.Key,
		DefaultTeamID:    cfg.Tracker.TeamID,
		DefaultProjectID: cfg.Tracker.ProjectID,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.Server.Port)

	// 7. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("stagelined stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
