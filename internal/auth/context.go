package auth

import (
	"context"

	"github.com/samber/lo"

	"github.com/satymtripathi/microbiology/pkg/types"
)

type claimsKey struct{}

// ContextWithClaims stores the session identity on ctx
func ContextWithClaims(ctx context.Context, claims *types.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the session identity, or nil for anonymous requests
func ClaimsFromContext(ctx context.Context) *types.UserClaims {
	claims, _ := ctx.Value(claimsKey{}).(*types.UserClaims)
	return claims
}

// Authorize is the one role check every protected operation makes. A nil
// caller is unauthenticated; a caller outside roles is forbidden.
func Authorize(caller *types.UserClaims, roles ...types.UserRole) error {
	if caller == nil {
		return types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required")
	}
	if !lo.Contains(roles, caller.Role) {
		return types.NewAuthorizationError(types.ErrCodeForbidden,
			"Your role does not allow this action")
	}
	return nil
}
