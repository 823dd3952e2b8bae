package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
)

// ServiceRepo implements storage.ServiceRepository using PostgreSQL.
type ServiceRepo struct {
	db *DB
}

// NewServiceRepo creates a new PostgreSQL service repository.
func NewServiceRepo(db *DB) *ServiceRepo {
	return &ServiceRepo{db: db}
}

type serviceRow struct {
	ServiceURL string `db:"service_url"`
	ChainID    string `db:"chain_id"`
}

// Upsert creates or updates a service keyed by URL.
func (r *ServiceRepo) Upsert(ctx context.Context, s *domain.Service) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO services (service_url, chain_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (service_url) DO UPDATE SET
			chain_id   = EXCLUDED.chain_id,
			updated_at = EXCLUDED.updated_at`,
		s.URL, s.ChainID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	return nil
}

// Get retrieves a service by URL.
func (r *ServiceRepo) Get(ctx context.Context, url string) (*domain.Service, error) {
	var row serviceRow
	err := r.db.GetContext(ctx, &row,
		`SELECT service_url, chain_id FROM services WHERE service_url = $1`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &domain.Service{URL: row.ServiceURL, ChainID: row.ChainID}, nil
}

// List retrieves all known services.
func (r *ServiceRepo) List(ctx context.Context) ([]*domain.Service, error) {
	var rows []serviceRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT service_url, chain_id FROM services ORDER BY service_url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	services := make([]*domain.Service, 0, len(rows))
	for _, row := range rows {
		services = append(services, &domain.Service{URL: row.ServiceURL, ChainID: row.ChainID})
	}
	return services, nil
}
