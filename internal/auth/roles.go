package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"xitem.org/internal/apperr"
	"xitem.org/internal/audit"
	"xitem.org/internal/obs"
)

// Comparison is a relational operator over role hierarchy levels.
type Comparison string

const (
	Greater      Comparison = ">"
	Less         Comparison = "<"
	GreaterEqual Comparison = ">="
	LessEqual    Comparison = "<="
)

func (c Comparison) holds(have, want int) bool {
	switch c {
	case Greater:
		return have > want
	case Less:
		return have < want
	case GreaterEqual:
		return have >= want
	case LessEqual:
		return have <= want
	default:
		return false
	}
}

// Condition describes what a route requires of the caller's role. Exactly
// one of Roles or Op is set.
type Condition struct {
	Roles     []string
	Op        Comparison
	Threshold string
}

// AnyOf admits callers whose role is one of roles.
func AnyOf(roles ...string) Condition { return Condition{Roles: roles} }

// AtLeast admits callers whose role level is >= role's level.
func AtLeast(role string) Condition { return Compare(GreaterEqual, role) }

// Compare admits callers whose role level satisfies op against role.
func Compare(op Comparison, role string) Condition {
	return Condition{Op: op, Threshold: role}
}

func (c Condition) String() string {
	if c.Op != "" {
		return fmt.Sprintf("role %s %s", c.Op, c.Threshold)
	}
	return "role in [" + strings.Join(c.Roles, ",") + "]"
}

// RoleEngine answers role questions about identities. Roles are immutable
// reference data, so a lookup is cached for the life of the process.
type RoleEngine struct {
	store Store

	mu    sync.RWMutex
	cache map[string]Role
	group singleflight.Group
}

// NewRoleEngine constructs an engine reading roles from store.
func NewRoleEngine(store Store) *RoleEngine {
	return &RoleEngine{store: store, cache: make(map[string]Role)}
}

// Role returns the named role, reading the store at most once per name
// even under concurrent misses.
func (e *RoleEngine) Role(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrNotFound
	}
	e.mu.RLock()
	role, ok := e.cache[name]
	e.mu.RUnlock()
	if ok {
		return role, nil
	}

	// the shared read outlives any single caller's cancellation
	shared := context.WithoutCancel(ctx)
	v, err, _ := e.group.Do(name, func() (any, error) {
		e.mu.RLock()
		cached, ok := e.cache[name]
		e.mu.RUnlock()
		if ok {
			return cached, nil
		}
		found, err := e.store.Roles(shared).Find(shared, name)
		if err != nil {
			return Role{}, err
		}
		e.mu.Lock()
		e.cache[name] = *found
		e.mu.Unlock()
		return *found, nil
	})
	if err != nil {
		return Role{}, err
	}
	return v.(Role), nil
}

// HasRole reports exact membership of the identity's role in allowed.
func (e *RoleEngine) HasRole(id Identity, allowed ...string) bool {
	if id.Role == "" {
		return false
	}
	for _, r := range allowed {
		if r == id.Role {
			return true
		}
	}
	return false
}

// CompareRole evaluates op between the identity's role level and the
// threshold role's level.
func (e *RoleEngine) CompareRole(ctx context.Context, id Identity, op Comparison, threshold string) (bool, error) {
	have, err := e.Role(ctx, id.Role)
	if err != nil {
		return false, err
	}
	want, err := e.Role(ctx, threshold)
	if err != nil {
		return false, err
	}
	return op.holds(have.Level, want.Level), nil
}

// Check evaluates cond for the identity.
func (e *RoleEngine) Check(ctx context.Context, id Identity, cond Condition) (bool, error) {
	if cond.Op == "" {
		return e.HasRole(id, cond.Roles...), nil
	}
	return e.CompareRole(ctx, id, cond.Op, cond.Threshold)
}

// Require returns nil when cond holds. A denial is audited and surfaces as
// apperr.InsufficientPermissions; a role that cannot be determined is
// treated as a denial.
func (e *RoleEngine) Require(ctx context.Context, id Identity, cond Condition, route string) error {
	ok, err := e.Check(ctx, id, cond)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return apperr.Wrap(apperr.Internal, err)
	}
	if ok {
		return nil
	}
	obs.ObserveRoleDenial(cond.String())
	if aerr := audit.LogEvent(ctx, "role.denied", map[string]any{
		"user_id":   id.UserID,
		"role":      id.Role,
		"condition": cond.String(),
		"route":     route,
	}); aerr != nil {
		obs.Warn("audit log failed", map[string]any{"error": aerr})
	}
	return apperr.InsufficientPermissions
}
