package ledger

import (
	"fmt"
	"time"
)

// Money is an amount in minor currency units (cents).
type Money int64

// Units converts whole currency units to Money.
func Units(n int64) Money {
	return Money(n * 100)
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// TaxRate is expressed in basis points.
type TaxRate int64

const (
	NoTax TaxRate = 0
	// ProcessingTax is withheld from refunds of unspent budget.
	ProcessingTax TaxRate = 200
)

// Tax returns the tax owed on gross, rounded half up.
func Tax(gross Money, rate TaxRate) Money {
	if gross <= 0 || rate <= 0 {
		return 0
	}
	return Money((int64(gross)*int64(rate) + 5000) / 10000)
}

// Net returns gross minus tax.
func Net(gross Money, rate TaxRate) Money {
	return gross - Tax(gross, rate)
}

// AdjustmentStatus tracks whether an adjustment reached the user directory.
type AdjustmentStatus string

const (
	AdjustmentPending AdjustmentStatus = "pending"
	AdjustmentApplied AdjustmentStatus = "applied"
)

// Adjustment is a single balance movement for one user, keyed by the state
// transition that caused it.
type Adjustment struct {
	ID        string           `json:"id"`
	Key       string           `json:"key"`
	UserID    string           `json:"user_id"`
	ProjectID string           `json:"project_id,omitempty"`
	Delta     Money            `json:"delta"`
	Reason    string           `json:"reason"`
	Status    AdjustmentStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	LastError string           `json:"last_error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	AppliedAt *time.Time       `json:"applied_at,omitempty"`
}
