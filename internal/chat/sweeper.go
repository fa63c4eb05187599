package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/janaaaac/meetworld-relay/internal/ratelimit"
)

// Sweeper evicts sessions that have gone idle.
//
// The registry otherwise grows without bound: a client that joins and
// never sends disconnect (tab closed, network gone) would occupy the
// session map and potentially the waiting slot forever. Eviction is a
// synthetic disconnect, so partners get the same partnerDisconnected
// event an explicit disconnect produces.
type Sweeper struct {
	log    *slog.Logger
	engine *Engine
	clock  ratelimit.Clock

	idleTimeout time.Duration
	interval    time.Duration
}

func NewSweeper(engine *Engine, logger *slog.Logger, clock ratelimit.Clock, idleTimeout, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		log:         logger,
		engine:      engine,
		clock:       clock,
		idleTimeout: idleTimeout,
		interval:    interval,
	}
}

// Run sweeps on the configured interval until ctx is canceled. It returns
// immediately when the idle timeout is zero or negative (sweeping
// disabled).
func (s *Sweeper) Run(ctx context.Context) {
	if s.idleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep performs one eviction pass and returns the evicted session ids.
func (s *Sweeper) Sweep() []string {
	cutoff := s.clock.Now().Add(-s.idleTimeout)
	evicted := s.engine.EvictIdle(cutoff)
	if len(evicted) > 0 {
		s.log.Info("swept idle sessions", "count", len(evicted), "idle_timeout", s.idleTimeout)
	}
	return evicted
}
