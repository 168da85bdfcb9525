package budget_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/repository/mocks"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	require.NoError(t, budget.Check(2000, 800, 1200))

	err := budget.Check(2000, 800, 1201)
	require.ErrorIs(t, err, budget.ErrInsufficientBudget)

	var insufficient *budget.InsufficientBudgetError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, ledger.Money(1200), insufficient.Remaining)
	require.Equal(t, ledger.Money(1201), insufficient.Required)
}

func TestBudgetService_Committed(t *testing.T) {
	ctx := context.Background()
	res := &mocks.Reservations{}
	res.On("ActiveTaskTotal", ctx, "p1").Return(ledger.Units(500), nil)
	res.On("ActivePayoutTotal", ctx, "p1").Return(ledger.Units(300), nil)

	svc := budget.NewService(res, res)
	committed, err := svc.Committed(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, ledger.Units(800), committed)

	summary, err := svc.Summarize(ctx, "p1", ledger.Units(2000))
	require.NoError(t, err)
	require.Equal(t, ledger.Units(1200), summary.Remaining)

	err = svc.CanReserve(ctx, "p1", ledger.Units(2000), ledger.Units(1500))
	require.ErrorIs(t, err, budget.ErrInsufficientBudget)
}
