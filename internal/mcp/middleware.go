package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/ganot/teamescrow/internal/domain/access"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ActorResolver resolves the calling actor from a bearer token.
type ActorResolver interface {
	ResolveActor(ctx context.Context, token string) (access.Actor, error)
}

// actorFrom returns the actor stored by the auth middleware.
func actorFrom(ctx context.Context) access.Actor {
	actor, _ := access.FromContext(ctx)
	return actor
}

// authMiddleware authenticates the bearer token and admits admins only.
func authMiddleware(resolver ActorResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}

			actor, err := resolver.ResolveActor(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}
			if !actor.IsAdmin() {
				return nil, fmt.Errorf("unauthorized: operator tools require the admin role")
			}

			return next(access.WithActor(ctx, actor), method, req)
		}
	}
}

// systemActorMiddleware runs every call as the system actor.
func systemActorMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(access.WithActor(ctx, access.System), method, req)
		}
	}
}
