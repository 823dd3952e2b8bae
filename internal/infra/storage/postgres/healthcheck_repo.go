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

// HealthCheckRepo implements storage.HealthCheckRepository using PostgreSQL.
type HealthCheckRepo struct {
	db *DB
}

// NewHealthCheckRepo creates a new PostgreSQL health check repository.
func NewHealthCheckRepo(db *DB) *HealthCheckRepo {
	return &HealthCheckRepo{db: db}
}

type healthCheckRow struct {
	ID        string    `db:"id"`
	MonitorID string    `db:"monitor_id"`
	MemberID  string    `db:"member_id"`
	ServiceID string    `db:"service_id"`
	Status    string    `db:"status"`
	Source    string    `db:"source"`
	Level     string    `db:"level"`
	Record    []byte    `db:"record"`
	CreatedAt time.Time `db:"created_at"`
}

const healthCheckColumns = `id, monitor_id, member_id, service_id, status, source, level, record, created_at`

// Create appends one health check. Always an insert, never an upsert.
func (r *HealthCheckRepo) Create(ctx context.Context, hc *domain.HealthCheck) error {
	record, err := json.Marshal(hc.Record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	createdAt := hc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO health_checks
			(id, monitor_id, member_id, service_id, status, source, level, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		hc.ID, hc.MonitorID, hc.MemberID, hc.ServiceID,
		string(hc.Status), string(hc.Source), hc.Level, record, createdAt)
	if err != nil {
		return fmt.Errorf("failed to create health check: %w", err)
	}
	return nil
}

// Get retrieves a health check by ID.
func (r *HealthCheckRepo) Get(ctx context.Context, id string) (*domain.HealthCheck, error) {
	var row healthCheckRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+healthCheckColumns+` FROM health_checks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get health check: %w", err)
	}
	return rowToHealthCheck(&row)
}

// LatestSuccess returns the most recent successful check for the member and
// service created before the given instant.
func (r *HealthCheckRepo) LatestSuccess(
	ctx context.Context,
	memberID, serviceID string,
	before time.Time,
) (*domain.HealthCheck, error) {
	var row healthCheckRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+healthCheckColumns+` FROM health_checks
		WHERE member_id = $1 AND service_id = $2 AND status = $3 AND created_at < $4
		ORDER BY created_at DESC
		LIMIT 1`,
		memberID, serviceID, string(domain.StatusSuccess), before)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest success: %w", err)
	}
	return rowToHealthCheck(&row)
}

// LatestOtherMemberSuccess returns the most recent successful check for the
// service from any other member, created within [from, to).
func (r *HealthCheckRepo) LatestOtherMemberSuccess(
	ctx context.Context,
	serviceID, excludeMemberID string,
	from, to time.Time,
) (*domain.HealthCheck, error) {
	var row healthCheckRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+healthCheckColumns+` FROM health_checks
		WHERE service_id = $1 AND member_id <> $2 AND status = $3
			AND created_at >= $4 AND created_at < $5
		ORDER BY created_at DESC
		LIMIT 1`,
		serviceID, excludeMemberID, string(domain.StatusSuccess), from, to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query other member success: %w", err)
	}
	return rowToHealthCheck(&row)
}

// DeleteOlderThan removes checks created before the cutoff.
func (r *HealthCheckRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM health_checks WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old health checks: %w", err)
	}
	return res.RowsAffected()
}

func rowToHealthCheck(row *healthCheckRow) (*domain.HealthCheck, error) {
	hc := &domain.HealthCheck{
		ID:        row.ID,
		MonitorID: row.MonitorID,
		MemberID:  row.MemberID,
		ServiceID: row.ServiceID,
		Status:    domain.Status(row.Status),
		Source:    domain.Source(row.Source),
		Level:     row.Level,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Record) > 0 {
		if err := json.Unmarshal(row.Record, &hc.Record); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
	}
	return hc, nil
}
