package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ibp-network/ibpmon/internal/core/domain"
)

// MonitorRepo implements storage.MonitorRepository using PostgreSQL.
type MonitorRepo struct {
	db *DB
}

// NewMonitorRepo creates a new PostgreSQL monitor repository.
func NewMonitorRepo(db *DB) *MonitorRepo {
	return &MonitorRepo{db: db}
}

type monitorRow struct {
	MonitorID string    `db:"monitor_id"`
	Services  []byte    `db:"services"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Upsert creates or refreshes a monitor. A nil services slice leaves the
// stored snapshot untouched (COALESCE keeps the old value).
func (r *MonitorRepo) Upsert(ctx context.Context, m *domain.Monitor) error {
	var services []byte
	if m.Services != nil {
		var err error
		services, err = json.Marshal(m.Services)
		if err != nil {
			return fmt.Errorf("failed to encode services: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monitors (monitor_id, services, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (monitor_id) DO UPDATE SET
			services   = COALESCE(EXCLUDED.services, monitors.services),
			updated_at = EXCLUDED.updated_at`,
		m.ID, services, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert monitor: %w", err)
	}
	return nil
}

// Get retrieves a monitor by ID.
func (r *MonitorRepo) Get(ctx context.Context, id string) (*domain.Monitor, error) {
	var row monitorRow
	err := r.db.GetContext(ctx, &row,
		`SELECT monitor_id, services, updated_at FROM monitors WHERE monitor_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}
	return rowToMonitor(&row)
}

// List retrieves all known monitors.
func (r *MonitorRepo) List(ctx context.Context) ([]*domain.Monitor, error) {
	var rows []monitorRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT monitor_id, services, updated_at FROM monitors ORDER BY monitor_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}

	monitors := make([]*domain.Monitor, 0, len(rows))
	for i := range rows {
		m, err := rowToMonitor(&rows[i])
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

func rowToMonitor(row *monitorRow) (*domain.Monitor, error) {
	m := &domain.Monitor{
		ID:        row.MonitorID,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Services) > 0 {
		if err := json.Unmarshal(row.Services, &m.Services); err != nil {
			return nil, fmt.Errorf("failed to decode services: %w", err)
		}
	}
	return m, nil
}
