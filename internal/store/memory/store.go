// Package memory implements every store interface in process memory. It is
// used when no PostgreSQL DSN is configured and as the fake in service tests.
package memory

import (
	"context"
	"sync"

	"xitem.org/internal/auth"
	"xitem.org/internal/calendar"
	"xitem.org/internal/event"
	"xitem.org/internal/note"
	"xitem.org/internal/voting"
)

// Store keeps users, roles, calendars, memberships, events, notes and
// votings behind one RWMutex. Membership read-check-write sequences
// additionally take a per-calendar lock through Calendars().Locked.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*auth.User
	roles     map[string]auth.Role
	calendars map[string]*calendar.Calendar
	members   map[string]map[string]calendar.Membership // calendar id -> user id
	events    map[string]*event.Event
	notes     map[string]*note.Note
	votings   map[string]*voting.Voting

	calLocks keyedMutex
}

// New returns an empty store seeded with auth.DefaultRoles.
func New() *Store {
	s := &Store{
		users:     make(map[string]*auth.User),
		roles:     make(map[string]auth.Role, len(auth.DefaultRoles)),
		calendars: make(map[string]*calendar.Calendar),
		members:   make(map[string]map[string]calendar.Membership),
		events:    make(map[string]*event.Event),
		notes:     make(map[string]*note.Note),
		votings:   make(map[string]*voting.Voting),
		calLocks:  keyedMutex{locks: make(map[string]*keyLock)},
	}
	for _, r := range auth.DefaultRoles {
		s.roles[r.Name] = r
	}
	return s
}

// Users returns the user store view.
func (s *Store) Users(context.Context) auth.UserStore { return userStore{s} }

// Roles returns the role store view.
func (s *Store) Roles(context.Context) auth.RoleStore { return roleStore{s} }

// Calendars returns the calendar store view.
func (s *Store) Calendars() calendar.Store { return calendarStore{s} }

// Events returns the event store view.
func (s *Store) Events() event.Store { return eventStore{s} }

// Notes returns the note store view.
func (s *Store) Notes() note.Store { return noteStore{s} }

// Votings returns the voting store view.
func (s *Store) Votings() voting.Store { return votingStore{s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
