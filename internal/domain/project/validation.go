package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateCreateInput validates fields required to create a project.
func ValidateCreateInput(req CreateRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
	}
	if req.Budget < MinimumBudget {
		return ErrBudgetBelowMinimum
	}
	if err := validateRoles(req.Roles); err != nil {
		return err
	}
	if sumRoles(req.Roles) != req.TeamSize {
		return ErrTeamSizeMismatch
	}
	return validateTimeline(req.Timeline)
}

// ValidateStatusTransition validates a requested status change. Repeating
// the current status is handled by the caller as a no-op.
func ValidateStatusTransition(from, to Status) error {
	if !to.Valid() {
		return ErrInvalidInput
	}
	if from.Terminal() {
		return ErrInvalidTransition
	}
	if to == StatusNotStarted {
		return ErrInvalidTransition
	}
	return nil
}

func validateTimeline(tl Timeline) error {
	if tl.StartAt.IsZero() || tl.EndAt.IsZero() || !tl.StartAt.Before(tl.EndAt) {
		return ErrInvalidTimeline
	}
	return nil
}

func validateRoles(roles []Role) error {
	if len(roles) == 0 {
		return fmt.Errorf("%w: at least one role required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if err := validate.Struct(r); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
		}
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate role %q", ErrInvalidInput, r.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func sumRoles(roles []Role) int {
	n := 0
	for _, r := range roles {
		n += r.Quantity
	}
	return n
}

// replaceRoles checks a full role list against the seats already filled.
func replaceRoles(p *Project, roles []Role) ([]Role, error) {
	if err := validateRoles(roles); err != nil {
		return nil, err
	}
	for _, existing := range p.Roles {
		filled := p.ActiveInRole(existing.Name)
		if filled == 0 {
			continue
		}
		quantity := 0
		for _, r := range roles {
			if r.Name == existing.Name {
				quantity = r.Quantity
			}
		}
		if quantity < filled {
			return nil, ErrRoleBelowFilled
		}
	}
	return append([]Role(nil), roles...), nil
}

// resizeTeam grows the last role (or adds DefaultRoleName) or trims trailing
// roles down to their filled seats.
func resizeTeam(p *Project, size int) ([]Role, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: team size must be positive", ErrInvalidInput)
	}
	roles := append([]Role(nil), p.Roles...)
	delta := size - sumRoles(roles)
	switch {
	case delta > 0:
		if len(roles) == 0 {
			return append(roles, Role{Name: DefaultRoleName, Quantity: delta}), nil
		}
		roles[len(roles)-1].Quantity += delta
		return roles, nil
	case delta < 0:
		need := -delta
		for i := len(roles) - 1; i >= 0 && need > 0; i-- {
			spare := roles[i].Quantity - p.ActiveInRole(roles[i].Name)
			if spare <= 0 {
				continue
			}
			take := min(spare, need)
			roles[i].Quantity -= take
			need -= take
		}
		if need > 0 {
			return nil, ErrRoleBelowFilled
		}
		kept := roles[:0]
		for _, r := range roles {
			if r.Quantity > 0 {
				kept = append(kept, r)
			}
		}
		return kept, nil
	}
	return roles, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
