// Package access decides who may read or act on an order.
package access

import (
	"context"

	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// RoleAdmin grants access to every order.
const RoleAdmin = "admin"

// RoleLookup reports whether a user holds a role.
type RoleLookup interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Authorizer enforces owner-or-admin access. Role lookup failures deny.
type Authorizer struct {
	roles  RoleLookup
	logger zerolog.Logger
}

// NewAuthorizer creates an authorizer backed by the given role lookup.
func NewAuthorizer(roles RoleLookup, logger zerolog.Logger) *Authorizer {
	return &Authorizer{
		roles:  roles,
		logger: logger.With().Str("component", "authorizer").Logger(),
	}
}

// Authorize allows the order's owner or any admin.
func (a *Authorizer) Authorize(ctx context.Context, actorUserID string, order *model.Order) Decision {
	if actorUserID == "" || order == nil {
		return Deny
	}
	if order.UserID == actorUserID {
		return Allow
	}
	if a.IsAdmin(ctx, actorUserID) {
		return Allow
	}

	a.logger.Warn().
		Str("actor", actorUserID).
		Str("order_id", order.ID.String()).
		Msg("order access denied")
	return Deny
}

// IsAdmin reports whether the actor holds the admin role.
func (a *Authorizer) IsAdmin(ctx context.Context, actorUserID string) bool {
	if actorUserID == "" {
		return false
	}
	ok, err := a.roles.HasRole(ctx, actorUserID, RoleAdmin)
	if err != nil {
		a.logger.Error().Err(err).Str("actor", actorUserID).Msg("role lookup failed, denying")
		return false
	}
	return ok
}

// RequireAdmin returns ErrUnauthorized unless the actor is an admin.
func (a *Authorizer) RequireAdmin(ctx context.Context, actorUserID string) error {
	if !a.IsAdmin(ctx, actorUserID) {
		return model.ErrUnauthorized
	}
	return nil
}
