package access

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates the actor lacks the role an operation requires.
var ErrUnauthorized = errors.New("unauthorized")

// Role is the marketplace role carried by an identity token.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleFreelancer, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Is reports whether the actor is the given user.
func (a Actor) Is(userID string) bool {
	return a.ID != "" && a.ID == userID
}

// OwnerOrAdmin fails unless the actor is ownerID or an admin.
func OwnerOrAdmin(a Actor, ownerID string) error {
	if a.IsAdmin() || a.Is(ownerID) {
		return nil
	}
	return ErrUnauthorized
}

// System is the actor used by background jobs.
var System = Actor{ID: "system", Role: RoleAdmin}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor from ctx, if present.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && a.ID != ""
}
