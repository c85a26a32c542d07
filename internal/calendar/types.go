package calendar

import (
	"strings"
	"time"
)

// Default layout of a new membership.
const (
	DefaultColor = 13
	DefaultIcon  = 0
	MaxColor     = 50
)

// Calendar is a shared calendar. Name is "title#NNNN" and unique.
type Calendar struct {
	ID             string
	Name           string
	PasswordHash   string
	CanJoin        bool
	RawColorLegend string
	CreatedAt      time.Time
}

// Title returns the name without its numeric suffix.
func (c Calendar) Title() string {
	title, _ := SplitName(c.Name)
	return title
}

// Membership associates a user with a calendar.
type Membership struct {
	CalendarID      string
	UserID          string
	IsOwner         bool
	CanCreateEvents bool
	CanEditEvents   bool
	Color           int
	Icon            int
}

// Associated is a calendar seen through one user's membership.
type Associated struct {
	Calendar   Calendar
	Membership Membership
}

// PermissionPatch lists optional membership flag changes.
type PermissionPatch struct {
	IsOwner         *bool
	CanCreateEvents *bool
	CanEditEvents   *bool
}

// Apply sets the changed flags on m and returns how many changed.
func (p PermissionPatch) Apply(m *Membership) int {
	changes := 0
	set := func(dst *bool, src *bool) {
		if src != nil && *dst != *src {
			*dst = *src
			changes++
		}
	}
	set(&m.IsOwner, p.IsOwner)
	set(&m.CanCreateEvents, p.CanCreateEvents)
	set(&m.CanEditEvents, p.CanEditEvents)
	return changes
}

// SplitName separates "title#NNNN" into its parts. A name without '#'
// returns an empty suffix.
func SplitName(name string) (title, suffix string) {
	i := strings.LastIndexByte(name, '#')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}
