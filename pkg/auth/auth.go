// Package auth defines the permission surface the HTTP layer consumes. The
// engine never manages identities itself; deployments plug in their own
// Checker.
package auth

import (
	"context"
	"errors"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Role is the caller's access level within one organization.
type Role string

const (
	RoleViewer Role = "viewer" // Read workflows, executions, analytics
	RoleEditor Role = "editor" // Plus mutate workflows and control executions
	RoleAdmin  Role = "admin"
)

// CanEdit reports whether the role may mutate state.
func (r Role) CanEdit() bool {
	return r == RoleEditor || r == RoleAdmin
}

// Checker authorizes a request against an organization.
type Checker interface {
	RequirePermission(ctx context.Context, organizationID string) (Role, error)
}

// AllowAll grants every caller the given role. Used by tests and
// single-tenant deployments that terminate auth upstream.
type AllowAll struct {
	Role Role
}

func (a AllowAll) RequirePermission(_ context.Context, _ string) (Role, error) {
	role := a.Role
	if role == "" {
		role = RoleAdmin
	}

	return role, nil
}

// StaticChecker authorizes from a fixed token table, keyed by API token.
// The HTTP layer stores the bearer token in the context under TokenKey.
type StaticChecker struct {
	// Tokens maps token -> organization id -> role.
	Tokens map[string]map[string]Role
}

type contextKey string

// TokenKey is the context key the HTTP middleware stores the bearer token
// under.
const TokenKey contextKey = "auth_token"

func (s *StaticChecker) RequirePermission(ctx context.Context, organizationID string) (Role, error) {
	token, _ := ctx.Value(TokenKey).(string)
	if token == "" {
		return "", ErrUnauthorized
	}

	grants, ok := s.Tokens[token]
	if !ok {
		return "", ErrUnauthorized
	}

	role, ok := grants[organizationID]
	if !ok {
		return "", ErrForbidden
	}

	return role, nil
}
