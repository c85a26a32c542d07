package calendar

import (
	"context"

	"xitem.org/internal/store"
)

// Store sentinels.
var (
	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// Store persists calendars and memberships. Methods return ErrNotFound for
// missing rows; Create returns ErrConflict when the name is taken.
type Store interface {
	Create(ctx context.Context, cal *Calendar, owner Membership) error
	Get(ctx context.Context, id string) (*Calendar, error)
	GetByName(ctx context.Context, name string) (*Calendar, error)
	// MaxSuffix returns the highest numeric suffix among names with the
	// given title (case-insensitive), or 0.
	MaxSuffix(ctx context.Context, title string) (int, error)
	Update(ctx context.Context, cal *Calendar) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]Associated, error)
	Member(ctx context.Context, calendarID, userID string) (*Membership, error)
	Members(ctx context.Context, calendarID string) ([]Membership, error)
	// Locked runs fn with exclusive access to the calendar's membership set.
	// It returns ErrNotFound when the calendar does not exist. An error
	// from fn aborts every write made through the MemberTx.
	Locked(ctx context.Context, calendarID string, fn func(ctx context.Context, tx MemberTx) error) error
}

// MemberTx is the membership view inside Locked.
type MemberTx interface {
	Calendar() *Calendar
	List(ctx context.Context) ([]Membership, error)
	Get(ctx context.Context, userID string) (*Membership, error)
	Insert(ctx context.Context, m Membership) error
	Update(ctx context.Context, m Membership) error
	Delete(ctx context.Context, userID string) error
}
