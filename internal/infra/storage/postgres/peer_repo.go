package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
)

// PeerRepo implements storage.PeerRepository using PostgreSQL.
type PeerRepo struct {
	db *DB
}

// NewPeerRepo creates a new PostgreSQL peer repository.
func NewPeerRepo(db *DB) *PeerRepo {
	return &PeerRepo{db: db}
}

// Upsert creates the (monitor, service) association. Applying the same
// announcement twice must not create duplicates.
func (r *PeerRepo) Upsert(ctx context.Context, p *domain.Peer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO peers (monitor_id, service_url, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (monitor_id, service_url) DO UPDATE SET
			updated_at = EXCLUDED.updated_at`,
		p.MonitorID, p.ServiceURL, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert peer: %w", err)
	}
	return nil
}

// ListByMonitor retrieves all services a monitor serves.
func (r *PeerRepo) ListByMonitor(ctx context.Context, monitorID string) ([]*domain.Peer, error) {
	var rows []struct {
		MonitorID  string `db:"monitor_id"`
		ServiceURL string `db:"service_url"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT monitor_id, service_url FROM peers WHERE monitor_id = $1 ORDER BY service_url`,
		monitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}

	peers := make([]*domain.Peer, 0, len(rows))
	for _, row := range rows {
		peers = append(peers, &domain.Peer{MonitorID: row.MonitorID, ServiceURL: row.ServiceURL})
	}
	return peers, nil
}
