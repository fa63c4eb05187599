package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/janaaaac/meetworld-relay/internal/httpserver"
	"github.com/janaaaac/meetworld-relay/internal/metrics"
	"github.com/janaaaac/meetworld-relay/internal/ratelimit"
)

const defaultMaxBodyBytes = int64(64 * 1024)

// Handler serves the polling chat API on /api/chat.
//
// Responses are always JSON. Business failures (no partner, unknown user)
// ride inside HTTP 200 envelopes with success:false; only malformed
// requests (missing userId, unknown action, bad payload) get HTTP 400.
type Handler struct {
	log          *slog.Logger
	engine       *Engine
	limiter      *ratelimit.UserLimiter
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

func NewHandler(engine *Engine, logger *slog.Logger, limiter *ratelimit.UserLimiter, m *metrics.Metrics, maxBodyBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		log:          logger,
		engine:       engine,
		limiter:      limiter,
		metrics:      m,
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes wires the handler into the server mux. OPTIONS preflights
// are answered by the CORS middleware before routing; other methods fall
// through to the mux's 405 handling.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chat", h.handleStatus)
	mux.HandleFunc("POST /api/chat", h.handleAction)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, h.engine.Status())
}

type actionRequest struct {
	UserID string          `json:"userId"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	if req.UserID == "" {
		httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "userId required"})
		return
	}

	if h.limiter.Enabled() && !h.limiter.Allow(req.UserID) {
		h.metrics.Inc(metrics.RateLimited)
		httpserver.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "Too many requests. Please slow down.",
			"retryAfter": h.limiter.RetryAfter(),
		})
		return
	}

	h.log.Debug("chat action", "type", req.Type, "user_id", req.UserID)

	result, err := Dispatch(h.engine, req.UserID, req.Type, req.Data)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.metrics.Inc(metrics.ValidationFailure)
			httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error()})
			return
		}
		h.log.Error("chat action failed", "type", req.Type, "user_id", req.UserID, "err", err)
		httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error: " + err.Error()})
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, result)
}
