package main

import (
	"log/slog"

	"github.com/janaaaac/meetworld-relay/internal/config"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Mode == config.ModeProd && containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup warning: ALLOWED_ORIGINS contains '*' (any page may call the chat API)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		logger.Warn("startup warning: per-user rate limiting is disabled",
			"warning_code", "rate_limit_disabled",
			"rate_limit_requests", cfg.RateLimitRequests,
			"rate_limit_window", cfg.RateLimitWindow,
		)
	}

	if cfg.SessionIdleTimeout <= 0 {
		logger.Warn("startup warning: SESSION_IDLE_TIMEOUT=0 disables idle-session eviction; the registry grows without bound",
			"warning_code", "session_sweep_disabled",
			"mode", cfg.Mode,
		)
	}

	if len(cfg.ICEServers) == 0 && cfg.ICEConfigError() == nil {
		logger.Warn("startup warning: no ICE servers configured; clients behind NAT will fail to establish media",
			"warning_code", "no_ice_servers",
		)
	}

	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: ICE server configuration is invalid; /api/ice and /readyz will report errors",
			"warning_code", "ice_config_invalid",
			"err", err,
		)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
