package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/janaaaac/meetworld-relay/internal/metrics"
	"github.com/janaaaac/meetworld-relay/internal/ratelimit"
)

const wsWriteWait = 1 * time.Second

// WebSocketConfig carries the per-connection limits for the WebSocket
// transport. Zero values fall back to safe defaults.
type WebSocketConfig struct {
	IdleTimeout          time.Duration
	PingInterval         time.Duration
	PushInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PushInterval <= 0 {
		c.PushInterval = 250 * time.Millisecond
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	if c.MaxMessagesPerSecond <= 0 {
		c.MaxMessagesPerSecond = 50
	}
	return c
}

// WebSocketServer exposes the chat action contract over a WebSocket as a
// lower-latency alternative to polling.
//
// The client sends the same {type, data} envelopes as POST /api/chat and
// receives the same result envelopes, tagged with the action type. The
// server additionally pushes a batchUpdate frame whenever outboxes hold
// data, so connected clients do not poll at all. Closing the socket
// behaves like an explicit disconnect action.
type WebSocketServer struct {
	log      *slog.Logger
	engine   *Engine
	metrics  *metrics.Metrics
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWebSocketServer(engine *Engine, logger *slog.Logger, m *metrics.Metrics, cfg WebSocketConfig) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketServer{
		log:     logger,
		engine:  engine,
		metrics: m,
		cfg:     cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			// Cross-origin policy is enforced by the CORS layer for the REST
			// surface; the WebSocket carries no credentials beyond the same
			// opaque user id, so any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	connID := uuid.NewString()
	s.metrics.Inc(metrics.WebSocketConnect)
	s.log.Debug("websocket connected", "conn_id", connID, "user_id", userID)

	c := &wsConn{
		server:  s,
		conn:    conn,
		userID:  userID,
		connID:  connID,
		limiter: ratelimit.NewTokenBucket(nil, float64(s.cfg.MaxMessagesPerSecond), float64(s.cfg.MaxMessagesPerSecond)),
		done:    make(chan struct{}),
	}
	c.run()
}

type wsConn struct {
	server  *WebSocketServer
	conn    *websocket.Conn
	userID  string
	connID  string
	limiter *ratelimit.TokenBucket

	writeMu sync.Mutex
	done    chan struct{}
}

func (c *wsConn) run() {
	s := c.server
	defer func() {
		close(c.done)
		_ = c.conn.Close()
		// The socket going away is the disconnect signal for this transport.
		s.engine.Disconnect(c.userID)
		s.metrics.Inc(metrics.WebSocketDisconnect)
		s.log.Debug("websocket disconnected", "conn_id", c.connID, "user_id", c.userID)
	}()

	c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	})

	go c.pushLoop()

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			c.writeClose(websocket.CloseUnsupportedData, "expected text message")
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		if !c.limiter.Allow() {
			c.writeClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		var req struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg, &req); err != nil {
			c.writeClose(websocket.CloseUnsupportedData, "invalid message")
			return
		}

		result, err := Dispatch(s.engine, c.userID, req.Type, req.Data)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				s.metrics.Inc(metrics.ValidationFailure)
				if !c.writeFrame(map[string]any{"type": req.Type, "error": verr.Error()}) {
					return
				}
				continue
			}
			c.writeClose(websocket.CloseInternalServerErr, "action failed")
			return
		}

		if !c.writeFrame(map[string]any{"type": req.Type, "result": result}) {
			return
		}
	}
}

// pushLoop drains the user's outboxes on an interval and pushes them as
// batchUpdate frames, plus keepalive pings.
func (c *wsConn) pushLoop() {
	s := c.server

	push := time.NewTicker(s.cfg.PushInterval)
	defer push.Stop()
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-push.C:
			batch := s.engine.BatchUpdate(c.userID)
			if len(batch.Signals) == 0 && len(batch.Messages) == 0 && len(batch.Events) == 0 {
				continue
			}
			if !c.writeFrame(map[string]any{"type": ActionTypeBatchUpdate, "result": batch}) {
				return
			}
		case <-ping.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) writeFrame(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload) == nil
}

func (c *wsConn) writeClose(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
