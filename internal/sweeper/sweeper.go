package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often the background sweep runs. Frequent enough
// that expired holds do not depress availability for long, cheap enough to
// run forever (a single indexed DELETE).
const DefaultInterval = 30 * time.Second

// Engine is the sweep entry point, satisfied by service.InventoryService.
type Engine interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically reclaims stock held by expired reservations. It is
// the in-process stand-in for an external scheduler; the same operation is
// exposed for on-demand runs through the ops server.
type Sweeper struct {
	engine   Engine
	interval time.Duration
	logger   *zap.Logger
}

func New(engine Engine, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.engine.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("reservation sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("expired reservations purged", zap.Int64("count", count))
	}
}
