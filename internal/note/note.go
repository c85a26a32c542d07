// Package note manages calendar notes: short pinned or unpinned texts
// shared by calendar members.
package note

import (
	"context"
	"time"

	"xitem.org/internal/calendar"
	"xitem.org/internal/store"
)

// Color bounds of an ARGB note color.
const (
	MinColor     int64 = 0xFF000000
	MaxColor     int64 = 0xFFFFFFFF
	DefaultColor int64 = 0xFFFFC107
)

// MinTitleLength is the shortest accepted title.
const MinTitleLength = 3

var ErrNotFound = store.ErrNotFound

// Note belongs to one calendar. OwnerID is empty once the author's account
// is deleted.
type Note struct {
	ID         string
	CalendarID string
	OwnerID    string
	Title      string
	Content    string
	Color      int64
	Pinned     bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Store persists notes. Get, Update and Delete return ErrNotFound when the
// note does not exist in the given calendar. List orders pinned notes
// first, then by creation time.
type Store interface {
	Create(ctx context.Context, n *Note) error
	Get(ctx context.Context, calendarID, noteID string) (*Note, error)
	List(ctx context.Context, calendarID string) ([]Note, error)
	Update(ctx context.Context, n *Note) error
	Delete(ctx context.Context, calendarID, noteID string) error
}

// Members looks up calendar memberships.
type Members interface {
	Member(ctx context.Context, calendarID, userID string) (*calendar.Membership, error)
}

// Less orders a before b the way Store.List does.
func Less(a, b Note) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
