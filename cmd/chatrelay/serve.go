package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/chatrelay/internal/api"
	"github.com/ashureev/chatrelay/internal/completion"
	"github.com/ashureev/chatrelay/internal/config"
	"github.com/ashureev/chatrelay/internal/events"
	"github.com/ashureev/chatrelay/internal/history"
	"github.com/ashureev/chatrelay/internal/logging"
	"github.com/ashureev/chatrelay/internal/quota"
	"github.com/ashureev/chatrelay/internal/relay"
	"github.com/ashureev/chatrelay/internal/store"
	"github.com/ashureev/chatrelay/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll Telegram and relay addressed messages",
		Long: `Start the relay: long-poll the Telegram Bot API, answer messages
addressed to the bot in allow-listed group chats, and optionally expose the
ops HTTP API and gRPC health service.

Examples:
  chatrelay serve
  chatrelay serve --env-file ./prod.env --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(parent context.Context) error {
	cfg, err := config.Load(c.v)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)
	c.logEnvSource(logger)

	slog.Info("Starting chat relay",
		"allowed_chats", len(cfg.ChatIDs),
		"quota_backend", cfg.Quota.Backend,
		"max_per_day", cfg.Quota.MaxPerDay,
		"model", cfg.OpenAI.Model,
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	counters, err := openCounters(cfg)
	if err != nil {
		slog.Error("Failed to initialize quota store", "error", err)
		return err
	}
	defer func() {
		if closeErr := counters.Close(); closeErr != nil {
			slog.Error("Failed to close quota store", "error", closeErr)
		}
	}()
	if err := counters.Ping(ctx); err != nil {
		slog.Error("Quota store health check failed", "error", err)
		return err
	}
	tracker := quota.NewTracker(counters, cfg.Quota.MaxPerDay, logger)

	hist, err := history.NewFileStore(history.Options{
		Path:       cfg.History.File,
		WindowSize: cfg.History.MessageLimit,
		Expiration: cfg.History.Expiration,
		MaxRecords: cfg.History.MaxRecords,
		Logger:     logger,
	})
	if err != nil {
		slog.Error("Failed to load history", "error", err, "path", cfg.History.File)
		return err
	}

	hub := events.NewHub(cfg.EventsSize, logger)

	bot, err := telegram.NewClient(telegram.Options{
		Token:    cfg.Telegram.Token,
		Endpoint: cfg.Telegram.APIEndpoint,
		Logger:   logger,
	})
	if err != nil {
		slog.Error("Failed to connect to Telegram", "error", err)
		return err
	}

	completer := completion.NewClient(completion.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	}, logger)

	rel, err := relay.New(relay.Config{
		AllowedChats:      cfg.ChatIDs,
		BotUsername:       bot.Username(),
		SystemPrompt:      cfg.Relay.SystemPrompt,
		QuotaExceededText: cfg.Relay.QuotaExceededText,
		CompletionTimeout: cfg.OpenAI.Timeout,
		MaxMessageLength:  cfg.Relay.MaxMessageLength,
	}, relay.Deps{
		Quota:      tracker,
		Membership: relay.NewAdminCache(telegram.NewMembership(bot), cfg.Telegram.AdminCacheTTL),
		History:    hist,
		Completer:  completer,
		Sender:     telegram.NewSender(bot, cfg.Telegram.SendRatePerSecond),
		Publisher:  hub,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if _, err := quota.StartResetScheduler(ctx, tracker, cfg.Quota.ResetCron, cfg.ResetLocation(), logger); err != nil {
		slog.Error("Failed to start quota reset scheduler", "error", err)
		return err
	}

	poller := telegram.NewPoller(bot, cfg.Telegram.PollTimeout)

	// Bind the gRPC listener before the ops server starts.
	var wg sync.WaitGroup
	var grpcHealth *api.GRPCHealth
	if cfg.Ops.GRPCHealthAddr != "" {
		grpcHealth, err = api.NewGRPCHealth(cfg.Ops.GRPCHealthAddr, logger)
		if err != nil {
			slog.Error("Failed to start gRPC health service", "error", err)
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcHealth.Serve(ctx); err != nil {
				slog.Error("gRPC health service failed", "error", err)
			}
		}()
		poller.OnStateChange(grpcHealth.SetServing)
	}

	var httpSrv *http.Server
	if cfg.Ops.Addr != "" {
		httpSrv = &http.Server{
			Addr: cfg.Ops.Addr,
			Handler: api.NewRouter(api.RouterDeps{
				Handler: api.NewHandler(hist, tracker, hub),
				Health:  api.NewHealthHandler(tracker, poller),
				Events:  events.NewWebSocketHandler(hub, nil, logger),
				Token:   cfg.Ops.Token,
			}),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // 0 = no timeout for the event stream
			IdleTimeout:  120 * time.Second,
		}
		if cfg.Ops.Token == "" {
			slog.Warn("OPS_TOKEN not set, ops API is unauthenticated", "addr", cfg.Ops.Addr)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("Ops server listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Ops server failed", "error", err)
				stop()
			}
		}()
	}

	dispatcher := relay.NewDispatcher(ctx, rel, relay.DefaultChatQueue, relay.DefaultWorkerIdle, hub, logger)

	// Blocks until a shutdown signal arrives.
	if err := poller.Run(ctx, dispatcher); err != nil {
		slog.Error("Polling failed", "error", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")
	dispatcher.Close()

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Ops server forced to shutdown", "error", err)
		}
	}
	wg.Wait()

	st := hist.Stats()
	slog.Info("Relay stopped", "chats", st.Chats, "users", st.Users, "records", st.Records, "updates", poller.Updates())
	return nil
}

func openCounters(cfg *config.Config) (store.CounterRepository, error) {
	switch cfg.Quota.Backend {
	case config.QuotaBackendSQLite:
		repo, err := store.NewSQLite(cfg.Quota.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Quota ledger opened", "path", cfg.Quota.DBPath)
		return repo, nil
	default:
		return store.NewMemory(), nil
	}
}
