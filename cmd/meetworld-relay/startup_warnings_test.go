package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/janaaaac/meetworld-relay/internal/config"
)

func captureWarnings(cfg config.Config) string {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logStartupWarnings(logger, cfg)
	return buf.String()
}

func TestStartupWarnings_WildcardOriginsInProd(t *testing.T) {
	out := captureWarnings(config.Config{
		Mode:               config.ModeProd,
		AllowedOrigins:     []string{"*"},
		RateLimitRequests:  50,
		RateLimitWindow:    10 * time.Second,
		SessionIdleTimeout: 5 * time.Minute,
	})
	if !strings.Contains(out, "allowed_origins_wildcard") {
		t.Fatalf("missing wildcard warning: %s", out)
	}
}

func TestStartupWarnings_NoWildcardWarningInDev(t *testing.T) {
	out := captureWarnings(config.Config{
		Mode:               config.ModeDev,
		AllowedOrigins:     []string{"*"},
		RateLimitRequests:  50,
		RateLimitWindow:    10 * time.Second,
		SessionIdleTimeout: 5 * time.Minute,
	})
	if strings.Contains(out, "allowed_origins_wildcard") {
		t.Fatalf("unexpected wildcard warning in dev: %s", out)
	}
}

func TestStartupWarnings_DisabledProtections(t *testing.T) {
	out := captureWarnings(config.Config{
		Mode:           config.ModeDev,
		AllowedOrigins: []string{"https://app.example.com"},
	})
	if !strings.Contains(out, "rate_limit_disabled") {
		t.Fatalf("missing rate limit warning: %s", out)
	}
	if !strings.Contains(out, "session_sweep_disabled") {
		t.Fatalf("missing sweeper warning: %s", out)
	}
	if !strings.Contains(out, "no_ice_servers") {
		t.Fatalf("missing ICE warning: %s", out)
	}
}
