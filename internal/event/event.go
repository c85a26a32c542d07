// Package event manages calendar events. Access follows the caller's
// calendar membership flags.
package event

import (
	"context"
	"time"

	"xitem.org/internal/calendar"
	"xitem.org/internal/store"
)

// Color bounds of an ARGB event color. Alpha is always opaque.
const (
	MinColor     int64 = 0xFF000000
	MaxColor     int64 = 0xFFFFFFFF
	DefaultColor int64 = 0xFFFFC107
)

// MinTitleLength is the shortest accepted title.
const MinTitleLength = 3

// Earliest is the earliest accepted begin date.
var Earliest = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrNotFound = store.ErrNotFound
)

// Event is one calendar entry. CreatedBy is empty once the creator's
// account is deleted.
type Event struct {
	ID          string
	CalendarID  string
	CreatedBy   string
	Title       string
	Description string
	Begin       time.Time
	End         time.Time
	Daylong     bool
	Color       int64
	CreatedAt   time.Time
}

// Window filters List to events overlapping [Begin, End]. Nil bounds are
// open.
type Window struct {
	Begin *time.Time
	End   *time.Time
}

// Overlaps reports whether e intersects w.
func (w Window) Overlaps(e Event) bool {
	if w.Begin != nil && e.End.Before(*w.Begin) {
		return false
	}
	if w.End != nil && e.Begin.After(*w.End) {
		return false
	}
	return true
}

// Store persists events. Get, Update and Delete return ErrNotFound when the
// event does not exist in the given calendar.
type Store interface {
	Create(ctx context.Context, e *Event) error
	Get(ctx context.Context, calendarID, eventID string) (*Event, error)
	List(ctx context.Context, calendarID string, w Window) ([]Event, error)
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, calendarID, eventID string) error
}

// Members looks up calendar memberships.
type Members interface {
	Member(ctx context.Context, calendarID, userID string) (*calendar.Membership, error)
}
