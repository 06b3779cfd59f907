// Package permissions implements the permission-check collaborator consumed
// by the audit scope resolver. The default implementation maps static roles
// to grant sets; deployments with a central permission service swap it out
// behind audit.PermissionChecker.
package permissions

import (
	"context"

	"audittrail/internal/audit"
	"audittrail/pkg/requestcontext"
)

// RoleChecker grants actions based on the caller's roles. Roles come from
// the request context (set by the identity middleware), so checks stay pure
// per request.
type RoleChecker struct {
	grants map[string][]string
}

// NewRoleChecker creates a checker with the default role-to-grant mapping:
// admins see everything, auditors see their organizational peers, everyone
// else sees only their own events.
func NewRoleChecker() *RoleChecker {
	return &RoleChecker{
		grants: map[string][]string{
			"admin":   {audit.ScopeActionKey("read", audit.ModeAny)},
			"auditor": {audit.ScopeActionKey("read", audit.ModeLDD)},
			"user":    {audit.ScopeActionKey("read", audit.ModeOwn)},
		},
	}
}

// Check reports whether any of the caller's roles grants the action.
func (c *RoleChecker) Check(ctx context.Context, subjectID, action string) (audit.Decision, error) {
	_ = subjectID // roles travel with the request context
	for _, role := range requestcontext.Roles(ctx) {
		for _, granted := range c.grants[role] {
			if granted == action {
				return audit.Decision{Granted: true, Source: "role:" + role}, nil
			}
		}
	}
	return audit.Decision{}, nil
}
