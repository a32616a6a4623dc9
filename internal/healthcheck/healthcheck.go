// Package healthcheck serves liveness and metrics endpoints.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ModeFunc reports the current routing mode, e.g. "with_operator".
type ModeFunc func() string

type Options struct {
	Service  string
	Mode     ModeFunc
	Gatherer prometheus.Gatherer
}

type status struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// NormalizeListen turns a bare port ("8080") into ":8080" and trims
// whitespace. Empty means disabled.
func NormalizeListen(listen string) string {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return ""
	}
	if !strings.Contains(listen, ":") {
		return ":" + listen
	}
	return listen
}

// NewRouter builds the handler tree: GET /healthz and, when a gatherer is
// set, GET /metrics.
func NewRouter(opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		out := status{Status: "ok", Service: opts.Service}
		if opts.Mode != nil {
			out.Mode = opts.Mode()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// StartServer listens on listen and serves until ctx is done or Shutdown
// is called. Listen errors are returned synchronously.
func StartServer(ctx context.Context, logger *slog.Logger, listen string, opts Options) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("health_server_error", "addr", ln.Addr().String(), "error", err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("health_server_start", "addr", ln.Addr().String(), "service", opts.Service)
	return srv, nil
}
