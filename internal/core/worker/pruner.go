package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ibp-network/ibpmon/internal/infra/storage"
	"github.com/ibp-network/ibpmon/internal/monitoring/metrics"
)

// Pruner deletes old health checks based on the retention policy.
type Pruner struct {
	retention time.Duration
	checks    storage.HealthCheckRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, checks storage.HealthCheckRepository) *Pruner {
	return &Pruner{retention: retention, checks: checks}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	removed, err := p.checks.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune health checks", "error", err)
		return
	}
	if removed > 0 {
		metrics.HealthChecksPruned.Add(float64(removed))
		slog.Debug("pruned health checks", "removed", removed)
	}
}
