package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/janaaaac/meetworld-relay/internal/chat"
	"github.com/janaaaac/meetworld-relay/internal/config"
	"github.com/janaaaac/meetworld-relay/internal/httpserver"
	"github.com/janaaaac/meetworld-relay/internal/metrics"
	"github.com/janaaaac/meetworld-relay/internal/ratelimit"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting meetworld-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"allowed_origins", cfg.AllowedOrigins,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"session_idle_timeout", cfg.SessionIdleTimeout,
		"session_sweep_interval", cfg.SessionSweepInterval,
		"ice_servers", len(cfg.ICEServers),
	)

	logStartupWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	m := metrics.New()
	clock := ratelimit.RealClock{}

	registry := chat.NewRegistry()
	engine := chat.NewEngine(registry, logger, clock, m)

	limiter := ratelimit.NewUserLimiter(clock, cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitTrackedUsers)
	handler := chat.NewHandler(engine, logger, limiter, m, cfg.MaxChatBodyBytes)
	handler.RegisterRoutes(srv.Mux())

	ws := chat.NewWebSocketServer(engine, logger, m, chat.WebSocketConfig{
		IdleTimeout:          cfg.WSIdleTimeout,
		PingInterval:         cfg.WSPingInterval,
		PushInterval:         cfg.WSPushInterval,
		MaxMessageBytes:      cfg.MaxWSMessageBytes,
		MaxMessagesPerSecond: cfg.MaxWSMessagesPerSecond,
	})
	srv.Mux().Handle("GET /api/chat/ws", ws)

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := chat.NewSweeper(engine, logger, clock, cfg.SessionIdleTimeout, cfg.SessionSweepInterval)
	go sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
