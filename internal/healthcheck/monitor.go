package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/sardanna/roundrobin-lb/internal/registry"
)

// Monitor periodically rescores idle endpoints and promotes recovered ones
// back into the active set. One monitor runs for the process lifetime,
// independent of request traffic.
type Monitor struct {
	pool     *registry.Pool
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor checking the pool's idle set every interval.
func NewMonitor(pool *registry.Pool, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Run executes the periodic recovery loop until the context is cancelled.
// Individual ticks are not cancellable once started.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped")
			return

		case <-ticker.C:
			promoted := m.pool.PromoteRecovered()
			if len(promoted) == 0 {
				continue
			}

			m.logger.Info("Health check promoted endpoints",
				slog.Int("count", len(promoted)),
				slog.Any("endpoints", promoted))
		}
	}
}
