package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ganot/teamescrow/internal/repository"
	"github.com/google/uuid"
)

// ErrDuplicateKey indicates a debit key that was already consumed.
var ErrDuplicateKey = errors.New("adjustment key already used")

// Service moves money between the engine and user balances.
//
// Debits are applied synchronously because the caller needs to know the
// user can pay. Credits are recorded as pending inside the caller's
// transaction and applied by Settle once that transaction has committed;
// anything left pending is retried by ReplayPending.
type Service struct {
	balances Balances
	repo     Repository
	logger   *slog.Logger
}

// NewService creates a new ledger service.
func NewService(balances Balances, repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{balances: balances, repo: repo, logger: logger}
}

// Debit removes amount from a user's balance.
func (s *Service) Debit(ctx context.Context, userID string, amount Money, key, reason, projectID string) (*Adjustment, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(key) == "" || amount <= 0 {
		return nil, ErrInvalidInput
	}

	if _, err := s.repo.GetByKey(ctx, key); err == nil {
		return nil, ErrDuplicateKey
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking adjustment key: %w", err)
	}

	if _, err := s.balances.AdjustBalance(ctx, userID, -amount, key, reason); err != nil {
		return nil, fmt.Errorf("debiting balance: %w", err)
	}

	now := time.Now()
	adj := &Adjustment{
		ID:        uuid.NewString(),
		Key:       key,
		UserID:    userID,
		ProjectID: projectID,
		Delta:     -amount,
		Reason:    reason,
		Status:    AdjustmentApplied,
		Attempts:  1,
		CreatedAt: now,
		AppliedAt: &now,
	}
	if err := s.repo.Create(ctx, adj); err != nil {
		s.logger.Warn("recording debit", "key", key, "user_id", userID, "error", err)
	}
	return adj, nil
}

// Reverse gives back a debit whose enclosing write failed.
func (s *Service) Reverse(ctx context.Context, debit *Adjustment) error {
	if debit == nil || debit.Delta >= 0 {
		return nil
	}
	adj, err := s.Credit(ctx, debit.UserID, -debit.Delta, debit.Key+":reversal", "reversal: "+debit.Reason, debit.ProjectID)
	if err != nil {
		return err
	}
	return s.Settle(ctx, adj)
}

// Credit records a pending credit. It returns nil when there is nothing to
// credit. A key that was already recorded yields the existing adjustment.
func (s *Service) Credit(ctx context.Context, userID string, amount Money, key, reason, projectID string) (*Adjustment, error) {
	if amount <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrInvalidInput
	}

	adj := &Adjustment{
		ID:        uuid.NewString(),
		Key:       key,
		UserID:    userID,
		ProjectID: projectID,
		Delta:     amount,
		Reason:    reason,
		Status:    AdjustmentPending,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, adj); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.repo.GetByKey(ctx, key)
		}
		return nil, fmt.Errorf("recording credit: %w", err)
	}
	return adj, nil
}

// Refund records a pending credit of gross net of tax.
func (s *Service) Refund(ctx context.Context, userID string, gross Money, rate TaxRate, key, reason, projectID string) (*Adjustment, error) {
	net := Net(gross, rate)
	if rate > 0 {
		reason = fmt.Sprintf("%s (gross %s, tax %s)", reason, gross, Tax(gross, rate))
	}
	return s.Credit(ctx, userID, net, key, reason, projectID)
}

// Settle applies pending adjustments. Failures stay pending for replay.
func (s *Service) Settle(ctx context.Context, adjs ...*Adjustment) error {
	var errs []error
	for _, adj := range adjs {
		if adj == nil || adj.Status == AdjustmentApplied {
			continue
		}
		if err := s.apply(ctx, adj); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReplayPending retries adjustments that were recorded but never applied.
func (s *Service) ReplayPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing pending adjustments: %w", err)
	}

	applied := 0
	var errs []error
	for i := range pending {
		adj := &pending[i]
		if err := s.apply(ctx, adj); err != nil {
			s.logger.Error("replaying adjustment", "key", adj.Key, "user_id", adj.UserID, "attempts", adj.Attempts, "error", err)
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

func (s *Service) apply(ctx context.Context, adj *Adjustment) error {
	if _, err := s.balances.AdjustBalance(ctx, adj.UserID, adj.Delta, adj.Key, adj.Reason); err != nil {
		adj.Attempts++
		adj.LastError = err.Error()
		if markErr := s.repo.MarkFailed(ctx, adj.Key, err.Error()); markErr != nil {
			s.logger.Warn("marking adjustment failed", "key", adj.Key, "error", markErr)
		}
		return fmt.Errorf("applying adjustment %s: %w", adj.Key, err)
	}

	now := time.Now()
	if err := s.repo.MarkApplied(ctx, adj.Key, now); err != nil {
		// The directory deduplicates by key, so a later replay is harmless.
		s.logger.Warn("marking adjustment applied", "key", adj.Key, "error", err)
	}
	adj.Status = AdjustmentApplied
	adj.Attempts++
	adj.AppliedAt = &now

	s.logger.Info("balance adjusted", "key", adj.Key, "user_id", adj.UserID, "delta", adj.Delta.String())
	return nil
}
