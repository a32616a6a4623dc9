package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/quailyquaily/telegramdock/audit"
	"github.com/quailyquaily/telegramdock/internal/channelruntime/telegram"
	"github.com/quailyquaily/telegramdock/internal/config"
	"github.com/quailyquaily/telegramdock/internal/fsstore"
	"github.com/quailyquaily/telegramdock/internal/healthcheck"
	"github.com/quailyquaily/telegramdock/internal/logutil"
	"github.com/quailyquaily/telegramdock/internal/metrics"
	"github.com/quailyquaily/telegramdock/internal/snapshot"
	"github.com/quailyquaily/telegramdock/profile"
	"github.com/quailyquaily/telegramdock/relay"
)

func runDock(parent context.Context, path string, flags *pflag.FlagSet, stderr io.Writer) error {
	created, err := config.EnsureDefault(path)
	if err != nil {
		return err
	}
	if created {
		_, _ = fmt.Fprintf(stderr, "Created default config at %s; set bot.token and bot.operator_id.\n", path)
	}

	loader := config.Loader{Path: path, Flags: flags}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	logger, err := logutil.New(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, auditLog, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var current atomic.Pointer[relay.Router]
	if listen := healthcheck.NormalizeListen(cfg.Server.HealthListen); listen != "" {
		_, err := healthcheck.StartServer(ctx, logger, listen, healthcheck.Options{
			Service:  "telegramdock",
			Gatherer: reg,
			Mode: func() string {
				if r := current.Load(); r != nil {
					return r.Mode().String()
				}
				return relay.ModeNoOperator.String()
			},
		})
		if err != nil {
			return err
		}
	}

	watcher := config.NewWatcher(loader.Load, cfg.Watch.Interval, logger)
	cfg, err = watcher.WaitForCredential(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("telegramdock_stop", "reason", "context_canceled")
			return nil
		}
		return err
	}

	rt, err := telegram.New(telegram.Options{
		BotToken:       cfg.Bot.Token,
		APIBaseURL:     cfg.Bot.APIBaseURL,
		PollTimeout:    cfg.Bot.PollTimeout,
		RequestTimeout: cfg.Bot.RequestTimeout,
		MaxConcurrency: cfg.Bot.MaxConcurrency,
		RateLimit:      cfg.Bot.RateLimit,
		RateBurst:      cfg.Bot.RateBurst,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	st := cfg.Status()
	router, err := relay.NewRouter(relay.Options{
		Profiles:   profiles,
		Audit:      auditLog,
		Transport:  rt.Transport(),
		Templates:  templatesFromConfig(cfg.Messages),
		OperatorID: st.OperatorID,
		Observer:   m,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	current.Store(router)
	logger.Info("relay_mode", "mode", router.Mode().String(), "operator_id", router.OperatorID())

	if !st.HasOperator() {
		go watchOperator(ctx, watcher, router, logger)
	}

	return rt.Run(ctx, router)
}

// watchOperator switches the router to operator mode once the config
// carries a usable operator id.
func watchOperator(ctx context.Context, w *config.Watcher, router *relay.Router, logger *slog.Logger) {
	err := w.WatchOperator(ctx, func(cfg config.Config) {
		id := cfg.Status().OperatorID
		if router.Activate(id, templatesFromConfig(cfg.Messages)) {
			logger.Info("relay_mode", "mode", relay.ModeWithOperator.String(), "operator_id", id)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("config_watch_error", "error", err.Error())
	}
}

func templatesFromConfig(m config.MessagesConfig) relay.Templates {
	return relay.Templates{
		Welcome:        m.StartMessage,
		ForwardSuccess: m.ForwardSuccess,
		ForwardFailed:  m.ForwardFailed,
	}
}

// openStores builds and loads the profile store and audit log on the
// configured backend. The returned func releases backend resources.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*profile.Store, *audit.Log, func(), error) {
	var (
		users    snapshot.Persister[profile.Snapshot]
		messages snapshot.Persister[[]audit.Record]
		closer   = func() {}
		lockWait = snapshot.WithLockTimeout(cfg.Data.LockTimeout)
	)
	switch cfg.Backend() {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		users = snapshot.NewRedisStore[profile.Snapshot](client, cfg.Redis.KeyPrefix+"users", lockWait)
		messages = snapshot.NewRedisStore[[]audit.Record](client, cfg.Redis.KeyPrefix+"messages", lockWait)
		closer = func() { _ = client.Close() }
	default:
		if err := fsstore.EnsureDir(cfg.Data.Dir, 0o700); err != nil {
			return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		users = snapshot.NewFileStore[profile.Snapshot](cfg.UsersPath(), fsstore.FileOptions{}, lockWait)
		messages = snapshot.NewFileStore[[]audit.Record](cfg.MessagesPath(), fsstore.FileOptions{}, lockWait)
	}

	profiles := profile.NewStore(users)
	if err := profiles.Load(ctx); err != nil {
		closer()
		return nil, nil, nil, fmt.Errorf("load profiles: %w", err)
	}
	auditLog := audit.NewLog(messages, audit.Options{
		Capacity:   cfg.Data.AuditCapacity,
		SummaryMax: cfg.Data.SummaryMaxChars,
	})
	if err := auditLog.Load(ctx); err != nil {
		closer()
		return nil, nil, nil, fmt.Errorf("load audit log: %w", err)
	}
	logger.Info("stores_loaded", "backend", cfg.Backend(), "profiles", profiles.Len(), "audit_records", auditLog.Len())
	return profiles, auditLog, closer, nil
}
