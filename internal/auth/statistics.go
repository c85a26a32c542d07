package auth

import (
	"cmp"
	"context"
	"slices"

	"xitem.org/internal/apperr"
)

// RoleCount is the number of accounts holding one role.
type RoleCount struct {
	Role  Role
	Users int
}

// UserStatistics summarizes registered accounts per role, highest role
// first.
type UserStatistics struct {
	Registered int
	Roles      []RoleCount
}

// Statistics counts accounts per known role.
func (a *Accounts) Statistics(ctx context.Context) (*UserStatistics, error) {
	roles, err := a.store.Roles(ctx).List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	slices.SortFunc(roles, func(x, y Role) int { return cmp.Compare(y.Level, x.Level) })
	out := &UserStatistics{Roles: make([]RoleCount, 0, len(roles))}
	for _, r := range roles {
		n, err := a.store.Users(ctx).CountByRole(ctx, r.Name)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err)
		}
		out.Registered += n
		out.Roles = append(out.Roles, RoleCount{Role: r, Users: n})
	}
	return out, nil
}
