package audit

import (
	"context"
	"log/slog"
)

// Mode is the caller's effective read-visibility level over the audit log.
type Mode int

const (
	// ModeNone grants no visibility; queries return an empty page.
	ModeNone Mode = iota
	// ModeOwn limits visibility to events the caller themselves caused.
	ModeOwn
	// ModeLDD extends own-visibility to actors sharing a division,
	// department or location assignment with the caller.
	ModeLDD
	// ModeAny grants unrestricted visibility.
	ModeAny
)

// modePrecedence is probed in order and the first granted mode wins. The
// order is most-restrictive first; keep it explicit so reordering the
// constants can never silently widen visibility.
var modePrecedence = [...]Mode{ModeNone, ModeOwn, ModeLDD, ModeAny}

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeOwn:
		return "own"
	case ModeLDD:
		return "ldd"
	case ModeAny:
		return "any"
	default:
		return "none"
	}
}

// ParseMode maps a stored mode string back to a Mode. Unknown input resolves
// to ModeOwn, the restrictive non-empty default.
func ParseMode(s string) Mode {
	switch s {
	case "none":
		return ModeNone
	case "own":
		return ModeOwn
	case "ldd":
		return ModeLDD
	case "any":
		return ModeAny
	default:
		return ModeOwn
	}
}

// Decision is the permission collaborator's answer for one action key.
type Decision struct {
	Granted bool
	Source  string
}

// PermissionChecker is the external permission-check collaborator.
type PermissionChecker interface {
	Check(ctx context.Context, subjectID, action string) (Decision, error)
}

// ScopeResolver resolves a caller's effective visibility mode for a verb.
// Implemented by Resolver and by the cache decorator in front of it.
type ScopeResolver interface {
	Resolve(ctx context.Context, callerID, verb string) Mode
}

// Resolver probes the permission collaborator for each mode in precedence
// order using keys of the form "audit.<verb>.scope.<mode>".
type Resolver struct {
	perms  PermissionChecker
	logger *slog.Logger
}

// NewResolver creates a scope resolver backed by the given permission checker.
func NewResolver(perms PermissionChecker, logger *slog.Logger) *Resolver {
	return &Resolver{perms: perms, logger: logger}
}

// Resolve returns the first granted mode in precedence order. When nothing
// is granted, or every probe errors, the result is ModeOwn: the default
// fails toward the most restrictive non-empty mode, never toward ModeAny.
func (r *Resolver) Resolve(ctx context.Context, callerID, verb string) Mode {
	for _, mode := range modePrecedence {
		key := ScopeActionKey(verb, mode)
		decision, err := r.perms.Check(ctx, callerID, key)
		if err != nil {
			r.logger.WarnContext(ctx, "permission check failed, treating as not granted",
				"error", err,
				"caller_id", callerID,
				"action", key,
			)
			continue
		}
		if decision.Granted {
			return mode
		}
	}
	return ModeOwn
}

// ScopeActionKey builds the permission key probed for a verb/mode pair.
func ScopeActionKey(verb string, mode Mode) string {
	return "audit." + verb + ".scope." + mode.String()
}
