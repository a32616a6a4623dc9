// Package telegram connects the relay to the Telegram Bot API with a
// long-poll loop and per-sender workers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"golang.org/x/time/rate"

	runtimeworker "github.com/quailyquaily/telegramdock/internal/channelruntime/worker"
	"github.com/quailyquaily/telegramdock/inbound"
	"github.com/quailyquaily/telegramdock/relay"
)

var ErrStartup = errors.New("telegram: startup failed")

// Handler consumes inbound events. *relay.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev inbound.Event) (relay.Route, error)
}

type Runtime struct {
	opts      Options
	api       *telegramAPI
	transport *transport
	logger    *slog.Logger
}

func New(opts Options) (*Runtime, error) {
	opts = normalizeOptions(opts)
	if opts.BotToken == "" {
		return nil, fmt.Errorf("%w: missing bot token", ErrStartup)
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	api := newTelegramAPI(opts.HTTPClient, opts.APIBaseURL, opts.BotToken, rate.NewLimiter(limit, opts.RateBurst))
	return &Runtime{
		opts:      opts,
		api:       api,
		transport: newTransport(api, opts.RequestTimeout),
		logger:    opts.Logger,
	}, nil
}

// Transport returns the outward side used by the router.
func (rt *Runtime) Transport() relay.Transport { return rt.transport }

// Run verifies the token, then polls for updates and dispatches them until
// ctx is canceled. Events from one sender are handled in order; different
// senders are handled concurrently. On cancellation Run waits for in-flight
// events and drops queued ones.
func (rt *Runtime) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrStartup)
	}
	logger := rt.logger

	me, err := rt.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("telegram_stop", "reason", "context_canceled")
			return nil
		}
		return err
	}

	workersCtx, stopWorkers := context.WithCancel(ctx)
	pool := runtimeworker.NewPool[int64, inbound.Event](workersCtx, runtimeworker.Options[inbound.Event]{
		MaxConcurrency: rt.opts.MaxConcurrency,
		Drain:          rt.opts.DrainTimeout,
		Handle: func(jobCtx context.Context, ev inbound.Event) {
			route, err := h.Handle(jobCtx, ev)
			if err != nil {
				logger.Debug("telegram_event_error", "event_id", ev.ID, "route", string(route), "error", err.Error())
				return
			}
			logger.Debug("telegram_event_handled", "event_id", ev.ID, "route", string(route))
		},
	})
	defer func() {
		stopWorkers()
		pool.Wait()
	}()

	logger.Info("telegram_start",
		"bot_id", me.ID,
		"bot_username", me.Username,
		"poll_timeout", rt.opts.PollTimeout.String(),
		"max_concurrency", rt.opts.MaxConcurrency,
	)

	var offset int64
	for {
		updates, nextOffset, err := rt.api.getUpdates(ctx, offset, rt.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			if isTelegramPollTimeoutError(err) {
				logger.Debug("telegram_get_updates_timeout", "error", err.Error())
			} else {
				logger.Warn("telegram_get_updates_error", "error", err.Error())
			}
			if !sleepCtx(ctx, time.Second) {
				logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			ev, ok := eventFromUpdate(u)
			if !ok {
				logger.Debug("telegram_update_skipped", "update_id", u.UpdateID)
				continue
			}
			if err := pool.Enqueue(ctx, ev.Sender.ID, ev); err != nil {
				if ctx.Err() != nil {
					logger.Info("telegram_stop", "reason", "context_canceled")
					return nil
				}
				logger.Warn("telegram_enqueue_error", "event_id", ev.ID, "user_id", ev.Sender.ID, "error", err.Error())
			}
		}
	}
}

// connect checks the token with getMe, retrying transient failures. A
// rejected token is not retried.
func (rt *Runtime) connect(ctx context.Context) (*telegramUser, error) {
	var me *telegramUser
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(rt.opts.StartupAttempts),
		retry.Delay(rt.opts.StartupDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !isUnauthorized(err) }),
		retry.OnRetry(func(attempt uint, err error) {
			rt.logger.Warn("telegram_get_me_error", "attempt", attempt+1, "error", err.Error())
		}),
	).Do(func() error {
		reqCtx, cancel := context.WithTimeout(ctx, rt.opts.RequestTimeout)
		defer cancel()
		u, err := rt.api.getMe(reqCtx)
		if err != nil {
			return err
		}
		me = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: getMe: %v", ErrStartup, err)
	}
	return me, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
