package config

import (
	"context"
	"log/slog"
	"time"
)

const defaultWatchInterval = 30 * time.Second

// Watcher re-reads configuration on a fixed interval until the required
// values become usable. It never stops the process; it only reports when
// a stage is reached.
type Watcher struct {
	load     func() (Config, error)
	interval time.Duration
	logger   *slog.Logger
}

func NewWatcher(load func() (Config, error), interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{load: load, interval: interval, logger: logger}
}

// WaitForCredential returns the first configuration with a usable bot
// token, checking immediately and then once per interval. It returns
// ctx.Err() when ctx ends first.
func (w *Watcher) WaitForCredential(ctx context.Context) (Config, error) {
	return w.poll(ctx, "credential", func(st Status) bool { return st.HasCredential() })
}

// WatchOperator waits until both the token and the operator id are usable,
// then calls fn once with that configuration and returns nil.
func (w *Watcher) WatchOperator(ctx context.Context, fn func(Config)) error {
	cfg, err := w.poll(ctx, "operator", func(st Status) bool { return st.Complete() })
	if err != nil {
		return err
	}
	if fn != nil {
		fn(cfg)
	}
	return nil
}

func (w *Watcher) poll(ctx context.Context, stage string, ready func(Status) bool) (Config, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		cfg, err := w.load()
		if err != nil {
			w.logger.Warn("config_watch_load_error", "stage", stage, "error", err.Error())
		} else {
			st := cfg.Status()
			if ready(st) {
				w.logger.Info("config_watch_ready", "stage", stage)
				return cfg, nil
			}
			w.logger.Warn("config_watch_pending", "stage", stage, "interval", w.interval.String(), "reason", st.Err().Error())
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
