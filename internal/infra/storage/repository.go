package storage

import (
	"context"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
)

// MonitorRepository handles monitor catalog operations.
type MonitorRepository interface {
	// Upsert creates or refreshes a monitor. Fields absent from m (a nil
	// Services slice) are left untouched on an existing row.
	Upsert(ctx context.Context, m *domain.Monitor) error

	// Get retrieves a monitor by ID. Returns nil when not found.
	Get(ctx context.Context, id string) (*domain.Monitor, error)

	// List retrieves all known monitors.
	List(ctx context.Context) ([]*domain.Monitor, error)
}

// ServiceRepository handles service catalog operations.
type ServiceRepository interface {
	// Upsert creates or updates a service keyed by URL. Idempotent.
	Upsert(ctx context.Context, s *domain.Service) error

	// Get retrieves a service by URL. Returns nil when not found.
	Get(ctx context.Context, url string) (*domain.Service, error)

	// List retrieves all known services.
	List(ctx context.Context) ([]*domain.Service, error)
}

// PeerRepository handles monitor-to-service associations.
type PeerRepository interface {
	// Upsert creates the (monitorID, serviceURL) association. Idempotent.
	Upsert(ctx context.Context, p *domain.Peer) error

	// ListByMonitor retrieves all services a monitor serves.
	ListByMonitor(ctx context.Context, monitorID string) ([]*domain.Peer, error)
}

// HealthCheckRepository handles health check observations.
type HealthCheckRepository interface {
	// Create appends one health check. Always an insert.
	Create(ctx context.Context, hc *domain.HealthCheck) error

	// Get retrieves a health check by ID. Returns nil when not found.
	Get(ctx context.Context, id string) (*domain.HealthCheck, error)

	// LatestSuccess returns the most recent successful check for the
	// (memberID, serviceID) pair created before the given instant, or nil.
	LatestSuccess(
		ctx context.Context,
		memberID, serviceID string,
		before time.Time,
	) (*domain.HealthCheck, error)

	// LatestOtherMemberSuccess returns the most recent successful check for
	// serviceID from any member other than excludeMemberID, created within
	// [from, to), or nil.
	LatestOtherMemberSuccess(
		ctx context.Context,
		serviceID, excludeMemberID string,
		from, to time.Time,
	) (*domain.HealthCheck, error)

	// DeleteOlderThan removes checks created before the cutoff. Returns the
	// number of rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
