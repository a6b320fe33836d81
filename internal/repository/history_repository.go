package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"authgate/api/internal/models"
)

type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Record appends one audit entry. History is append-only; there is no
// update or single-row delete path.
func (r *HistoryRepository) Record(ctx context.Context, rec models.AuthHistoryRecord) error {
	const query = `
		INSERT INTO auth_history (id, user_id, device_id, outcome, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.DeviceID,
		rec.Outcome,
		rec.OccurredAt,
	)
	return err
}

// List returns one zero-indexed page, newest first. A page past the
// end yields an empty slice, not an error.
func (r *HistoryRepository) List(ctx context.Context, userID string, page, size int) ([]models.AuthHistoryRecord, error) {
	const query = `
		SELECT id, user_id, device_id, outcome, occurred_at
		FROM auth_history
		WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, size, page*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.AuthHistoryRecord, 0, size)
	for rows.Next() {
		var rec models.AuthHistoryRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DeviceID, &rec.Outcome, &rec.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListOlderThan feeds the audit archival job.
func (r *HistoryRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.AuthHistoryRecord, error) {
	const query = `
		SELECT id, user_id, device_id, outcome, occurred_at
		FROM auth_history
		WHERE occurred_at < $1
		ORDER BY occurred_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AuthHistoryRecord
	for rows.Next() {
		var rec models.AuthHistoryRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DeviceID, &rec.Outcome, &rec.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *HistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM auth_history WHERE occurred_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
