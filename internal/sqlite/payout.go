package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/repository"
)

// PayoutRepository stores escrowed payouts.
type PayoutRepository struct {
	db *DB
}

// NewPayoutRepository creates a new PayoutRepository
func NewPayoutRepository(db *DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

const payoutColumns = `
	id, project_id, freelancer_id, amount, description, type, status,
	payment_method, payment_details, created_at, released_at, cancelled_at`

// Create inserts a payout.
func (r *PayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	query := `INSERT INTO payouts (` + payoutColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		p.ID,
		p.ProjectID,
		p.FreelancerID,
		int64(p.Amount),
		p.Description,
		p.Type,
		p.Status,
		p.PaymentMethod,
		p.PaymentDetails,
		toUnix(p.CreatedAt),
		nullTime(p.ReleasedAt),
		nullTime(p.CancelledAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

// Get retrieves a payout by ID.
func (r *PayoutRepository) Get(ctx context.Context, id string) (*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = ?`

	p, err := scanPayout(r.db.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

// ListByProject returns a project's payouts, oldest first.
func (r *PayoutRepository) ListByProject(ctx context.Context, projectID string) ([]payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE project_id = ? ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, projectID)
}

// ListDue returns locked payouts created at or before cutoff, oldest first.
func (r *PayoutRepository) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts
		WHERE status = 'locked' AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?`
	if limit <= 0 {
		limit = -1
	}
	return r.list(ctx, query, toUnix(cutoff), limit)
}

// Release flips a locked payout to released.
func (r *PayoutRepository) Release(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE payouts SET status = 'released', released_at = ? WHERE id = ? AND status = 'locked'`,
		toUnix(at), id)
	if err != nil {
		return fmt.Errorf("failed to release payout: %w", err)
	}
	return checkAffected(result, repository.ErrConflict)
}

// Cancel flips a locked payout to cancelled.
func (r *PayoutRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE payouts SET status = 'cancelled', cancelled_at = ? WHERE id = ? AND status = 'locked'`,
		toUnix(at), id)
	if err != nil {
		return fmt.Errorf("failed to cancel payout: %w", err)
	}
	return checkAffected(result, repository.ErrConflict)
}

// PayoutTotal sums the member's payouts that are not cancelled.
func (r *PayoutRepository) PayoutTotal(ctx context.Context, projectID, freelancerID string) (ledger.Money, error) {
	return r.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payouts
		WHERE project_id = ? AND freelancer_id = ? AND status != 'cancelled'
	`, projectID, freelancerID)
}

// ActivePayoutTotal sums the project's fixed payouts that are not cancelled.
func (r *PayoutRepository) ActivePayoutTotal(ctx context.Context, projectID string) (ledger.Money, error) {
	return r.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payouts
		WHERE project_id = ? AND type = 'fixed' AND status != 'cancelled'
	`, projectID)
}

// CountLocked counts the member's payouts still in escrow.
func (r *PayoutRepository) CountLocked(ctx context.Context, projectID, freelancerID string) (int, error) {
	var n int
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payouts WHERE project_id = ? AND freelancer_id = ? AND status = 'locked'`,
		projectID, freelancerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count locked payouts: %w", err)
	}
	return n, nil
}

func (r *PayoutRepository) list(ctx context.Context, query string, args ...any) ([]payout.Payout, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []payout.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return payouts, nil
}

func (r *PayoutRepository) sum(ctx context.Context, query string, args ...any) (ledger.Money, error) {
	var total int64
	if err := r.db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum payouts: %w", err)
	}
	return ledger.Money(total), nil
}

func scanPayout(row rowScanner) (*payout.Payout, error) {
	var (
		p                       payout.Payout
		amount, createdAt       int64
		releasedAt, cancelledAt sql.NullInt64
	)
	if err := row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.FreelancerID,
		&amount,
		&p.Description,
		&p.Type,
		&p.Status,
		&p.PaymentMethod,
		&p.PaymentDetails,
		&createdAt,
		&releasedAt,
		&cancelledAt,
	); err != nil {
		return nil, err
	}
	p.Amount = ledger.Money(amount)
	p.CreatedAt = fromUnix(createdAt)
	p.ReleasedAt = timePtr(releasedAt)
	p.CancelledAt = timePtr(cancelledAt)
	return &p, nil
}
