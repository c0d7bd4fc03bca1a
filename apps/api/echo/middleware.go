package echoapi

import (
	"context"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Authorizer decides what the requesting user may do within a context.
type Authorizer interface {
	// CanManage allows binding, configuring and unbinding disguises & managing name sets.
	CanManage(ctx context.Context, claims Claims, contextID string) bool
	// CanReveal allows toggling the reveal state of the requesting viewer.
	CanReveal(ctx context.Context, claims Claims, contextID string) bool
}

// roleAuthorizer grants rights from the roles carried by the JWT claims.
type roleAuthorizer struct{}

var _ Authorizer = roleAuthorizer{}

func NewRoleAuthorizer() Authorizer {
	return roleAuthorizer{}
}

func (roleAuthorizer) CanManage(_ context.Context, claims Claims, _ string) bool {
	return claims.IsAdmin
}

func (roleAuthorizer) CanReveal(_ context.Context, claims Claims, _ string) bool {
	return claims.IsAdmin || claims.IsTeacher
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// authorizeMiddleware checks allowed against the context id found in the `ctx` path param
// (empty for routes that are not scoped to a context).
func authorizeMiddleware(allowed func(ctx context.Context, claims Claims, contextID string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if allowed(ctx.Request().Context(), claims, ctx.Param("ctx")) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) {
				if match := claims.Roles[i]; role == match {
					return true
				}
			}
		}
	}
	return false
}
