package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
}

// UserStore manages users. Find methods return ErrNotFound for missing rows;
// Create returns ErrConflict when the email is taken.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	CountByRole(ctx context.Context, role string) (int, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// RoleStore reads role reference data.
type RoleStore interface {
	Find(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
}
