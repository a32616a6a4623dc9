package telegram

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://api.telegram.org"

type Options struct {
	BotToken       string
	APIBaseURL     string
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	MaxConcurrency int
	// RateLimit is the outbound messages per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	// DrainTimeout bounds how long the in-flight event per sender may run
	// after shutdown starts.
	DrainTimeout time.Duration
	// StartupAttempts bounds the getMe check run before polling.
	StartupAttempts uint
	StartupDelay    time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

func normalizeOptions(opts Options) Options {
	opts.BotToken = strings.TrimSpace(opts.BotToken)
	opts.APIBaseURL = strings.TrimRight(strings.TrimSpace(opts.APIBaseURL), "/")
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = defaultAPIBaseURL
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.RateLimit < 0 {
		opts.RateLimit = 0
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = opts.RequestTimeout
	}
	if opts.StartupAttempts == 0 {
		opts.StartupAttempts = 3
	}
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = 2 * time.Second
	}
	if opts.HTTPClient == nil {
		// Long polls hold the connection for PollTimeout.
		opts.HTTPClient = &http.Client{Timeout: opts.PollTimeout + opts.RequestTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}
