package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/repository"
)

// AdjustmentRepository stores the balance adjustment outbox.
type AdjustmentRepository struct {
	db *DB
}

// NewAdjustmentRepository creates a new AdjustmentRepository
func NewAdjustmentRepository(db *DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

const adjustmentColumns = `
	id, idempotency_key, user_id, project_id, delta, reason, status, attempts, last_error, created_at, applied_at`

// Create records an adjustment. A key that already exists yields
// repository.ErrConflict.
func (r *AdjustmentRepository) Create(ctx context.Context, adj *ledger.Adjustment) error {
	query := `INSERT INTO balance_adjustments (` + adjustmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		adj.ID,
		adj.Key,
		adj.UserID,
		adj.ProjectID,
		int64(adj.Delta),
		adj.Reason,
		adj.Status,
		adj.Attempts,
		adj.LastError,
		toUnix(adj.CreatedAt),
		nullTime(adj.AppliedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create adjustment: %w", err)
	}
	return nil
}

// GetByKey retrieves an adjustment by idempotency key.
func (r *AdjustmentRepository) GetByKey(ctx context.Context, key string) (*ledger.Adjustment, error) {
	query := `SELECT ` + adjustmentColumns + ` FROM balance_adjustments WHERE idempotency_key = ?`

	adj, err := scanAdjustment(r.db.conn(ctx).QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adjustment: %w", err)
	}
	return adj, nil
}

// MarkApplied records a successful application.
func (r *AdjustmentRepository) MarkApplied(ctx context.Context, key string, at time.Time) error {
	result, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE balance_adjustments
		SET status = 'applied', applied_at = ?, attempts = attempts + 1, last_error = ''
		WHERE idempotency_key = ?
	`, toUnix(at), key)
	if err != nil {
		return fmt.Errorf("failed to mark adjustment applied: %w", err)
	}
	return checkAffected(result, repository.ErrNotFound)
}

// MarkFailed records a failed attempt; the adjustment stays pending.
func (r *AdjustmentRepository) MarkFailed(ctx context.Context, key string, reason string) error {
	result, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE balance_adjustments
		SET attempts = attempts + 1, last_error = ?
		WHERE idempotency_key = ? AND status = 'pending'
	`, reason, key)
	if err != nil {
		return fmt.Errorf("failed to mark adjustment failed: %w", err)
	}
	return checkAffected(result, repository.ErrNotFound)
}

// ListPending returns pending adjustments, oldest first.
func (r *AdjustmentRepository) ListPending(ctx context.Context, limit int) ([]ledger.Adjustment, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + adjustmentColumns + ` FROM balance_adjustments
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending adjustments: %w", err)
	}
	defer rows.Close()

	var adjs []ledger.Adjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		adjs = append(adjs, *adj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating adjustment rows: %w", err)
	}
	return adjs, nil
}

func scanAdjustment(row rowScanner) (*ledger.Adjustment, error) {
	var (
		adj              ledger.Adjustment
		delta, createdAt int64
		appliedAt        sql.NullInt64
	)
	if err := row.Scan(
		&adj.ID,
		&adj.Key,
		&adj.UserID,
		&adj.ProjectID,
		&delta,
		&adj.Reason,
		&adj.Status,
		&adj.Attempts,
		&adj.LastError,
		&createdAt,
		&appliedAt,
	); err != nil {
		return nil, err
	}
	adj.Delta = ledger.Money(delta)
	adj.CreatedAt = fromUnix(createdAt)
	adj.AppliedAt = timePtr(appliedAt)
	return &adj, nil
}
