package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr      = "MEETWORLD_RELAY_LISTEN_ADDR"
	envVarMode            = "MEETWORLD_RELAY_MODE"
	envVarLogFormat       = "MEETWORLD_RELAY_LOG_FORMAT"
	envVarLogLevel        = "MEETWORLD_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "MEETWORLD_RELAY_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// Chat API knobs.
	envVarMaxChatBodyBytes = "MAX_CHAT_BODY_BYTES"

	// Per-user request throttling on POST /api/chat.
	envVarRateLimitRequests     = "CHAT_RATE_LIMIT_REQUESTS"
	envVarRateLimitWindow       = "CHAT_RATE_LIMIT_WINDOW"
	envVarRateLimitTrackedUsers = "CHAT_RATE_LIMIT_TRACKED_USERS"

	// Idle session sweeping.
	envVarSessionIdleTimeout   = "SESSION_IDLE_TIMEOUT"
	envVarSessionSweepInterval = "SESSION_SWEEP_INTERVAL"

	// WebSocket transport hardening.
	envVarWSIdleTimeout          = "CHAT_WS_IDLE_TIMEOUT"
	envVarWSPingInterval         = "CHAT_WS_PING_INTERVAL"
	envVarWSPushInterval         = "CHAT_WS_PUSH_INTERVAL"
	envVarMaxWSMessageBytes      = "MAX_CHAT_WS_MESSAGE_BYTES"
	envVarMaxWSMessagesPerSecond = "MAX_CHAT_WS_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultMode            Mode = ModeDev

	DefaultMaxChatBodyBytes = int64(64 * 1024)

	// Matches the original deployment: 50 requests per 10 seconds per user.
	DefaultRateLimitRequests = 50
	DefaultRateLimitWindow   = 10 * time.Second

	// Sessions idle longer than this are evicted by the sweeper. Zero
	// disables sweeping (unbounded registry growth, as the first deployment
	// had).
	DefaultSessionIdleTimeout   = 5 * time.Minute
	DefaultSessionSweepInterval = 30 * time.Second

	DefaultWSIdleTimeout          = 60 * time.Second
	DefaultWSPingInterval         = 20 * time.Second
	DefaultWSPushInterval         = 250 * time.Millisecond
	DefaultMaxWSMessageBytes      = int64(64 * 1024)
	DefaultMaxWSMessagesPerSecond = 50
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins is the CORS allowlist. "*" allows every origin (the
	// original deployment's behavior and the default here).
	AllowedOrigins []string

	MaxChatBodyBytes int64

	// Per-user request throttling. Requests <= 0 or a zero window disables
	// throttling.
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	RateLimitTrackedUsers int

	// SessionIdleTimeout bounds how long a session may go without any action
	// before the sweeper evicts it with a synthetic disconnect. Zero
	// disables eviction.
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	// WebSocket transport knobs.
	WSIdleTimeout          time.Duration
	WSPingInterval         time.Duration
	WSPushInterval         time.Duration
	MaxWSMessageBytes      int64
	MaxWSMessagesPerSecond int

	// ICEServers is the STUN/TURN list handed to browser clients so they can
	// construct RTCPeerConnections. Signaling works without it, but clients
	// behind NAT will fail to connect media without at least one STUN server.
	ICEServers []webrtc.ICEServer

	iceConfigErr error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	logFormatDefault := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(modeDefault))
	logLevelDefault := envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(modeDefault))

	fs := flag.NewFlagSet("meetworld-relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	listenAddr := fs.String("listen-addr", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "TCP listen address")
	modeStr := fs.String("mode", modeDefault, "run mode: dev or prod")
	logFormatStr := fs.String("log-format", logFormatDefault, "log format: text or json")
	logLevelStr := fs.String("log-level", logLevelDefault, "log level: debug, info, warn or error")
	allowedOriginsStr := fs.String("allowed-origins", envOrDefault(lookup, envVarAllowedOrigins, "*"), "comma-separated CORS origin allowlist; '*' allows any origin")

	shutdownDefault, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout := fs.Duration("shutdown-timeout", shutdownDefault, "graceful shutdown timeout")

	idleDefault, err := envDurationOrDefault(lookup, envVarSessionIdleTimeout, DefaultSessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	sessionIdleTimeout := fs.Duration("session-idle-timeout", idleDefault, "evict sessions idle longer than this; 0 disables")

	sweepDefault, err := envDurationOrDefault(lookup, envVarSessionSweepInterval, DefaultSessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	sessionSweepInterval := fs.Duration("session-sweep-interval", sweepDefault, "how often the idle-session sweeper runs")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	mode, err := parseMode(*modeStr)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := parseLogFormat(*logFormatStr)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(*logLevelStr)
	if err != nil {
		return Config{}, err
	}
	allowedOrigins, err := parseAllowedOrigins(*allowedOriginsStr)
	if err != nil {
		return Config{}, err
	}

	maxChatBodyBytes, err := envInt64OrDefault(lookup, envVarMaxChatBodyBytes, DefaultMaxChatBodyBytes)
	if err != nil {
		return Config{}, err
	}

	rateLimitRequests, err := envIntOrDefault(lookup, envVarRateLimitRequests, DefaultRateLimitRequests)
	if err != nil {
		return Config{}, err
	}
	rateLimitWindow, err := envDurationOrDefault(lookup, envVarRateLimitWindow, DefaultRateLimitWindow)
	if err != nil {
		return Config{}, err
	}
	rateLimitTrackedUsers, err := envIntOrDefault(lookup, envVarRateLimitTrackedUsers, 0)
	if err != nil {
		return Config{}, err
	}

	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	wsPushInterval, err := envDurationOrDefault(lookup, envVarWSPushInterval, DefaultWSPushInterval)
	if err != nil {
		return Config{}, err
	}
	maxWSMessageBytes, err := envInt64OrDefault(lookup, envVarMaxWSMessageBytes, DefaultMaxWSMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxWSMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxWSMessagesPerSecond, DefaultMaxWSMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      *listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: *shutdownTimeout,
		AllowedOrigins:  allowedOrigins,

		MaxChatBodyBytes: maxChatBodyBytes,

		RateLimitRequests:     rateLimitRequests,
		RateLimitWindow:       rateLimitWindow,
		RateLimitTrackedUsers: rateLimitTrackedUsers,

		SessionIdleTimeout:   *sessionIdleTimeout,
		SessionSweepInterval: *sessionSweepInterval,

		WSIdleTimeout:          wsIdleTimeout,
		WSPingInterval:         wsPingInterval,
		WSPushInterval:         wsPushInterval,
		MaxWSMessageBytes:      maxWSMessageBytes,
		MaxWSMessagesPerSecond: maxWSMessagesPerSecond,
	}

	iceServers, err := parseICEServersFromValues(
		envOrDefault(lookup, envICEServersJSON, ""),
		envOrDefault(lookup, envStunURLs, ""),
		envOrDefault(lookup, envTurnURLs, ""),
		envOrDefault(lookup, envTurnUsername, ""),
		envOrDefault(lookup, envTurnCredential, ""),
	)
	if err != nil {
		// Keep serving signaling even with a broken ICE config; /readyz and
		// /api/ice report the error.
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (want text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if p == "*" {
			out = append(out, p)
			continue
		}
		if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "https://") {
			return nil, fmt.Errorf("invalid allowed origin %q (want '*' or an http(s) origin)", p)
		}
		out = append(out, p)
	}
	return out, nil
}
