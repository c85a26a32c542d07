package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"xitem.org/internal/calendar"
)

type calendarStore struct{ s *Store }

func (st calendarStore) nameTaken(name, exceptID string) bool {
	for id, c := range st.s.calendars {
		if id != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (st calendarStore) Create(_ context.Context, cal *calendar.Calendar, owner calendar.Membership) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[cal.ID]; ok || st.nameTaken(cal.Name, "") {
		return calendar.ErrConflict
	}
	cp := *cal
	s.calendars[cal.ID] = &cp
	owner.CalendarID = cal.ID
	s.members[cal.ID] = map[string]calendar.Membership{owner.UserID: owner}
	return nil
}

func (st calendarStore) Get(_ context.Context, id string) (*calendar.Calendar, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calendars[id]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (st calendarStore) GetByName(_ context.Context, name string) (*calendar.Calendar, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.calendars {
		if strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, calendar.ErrNotFound
}

func (st calendarStore) MaxSuffix(_ context.Context, title string) (int, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	highest := 0
	for _, c := range s.calendars {
		t, suffix := calendar.SplitName(c.Name)
		if !strings.EqualFold(t, title) {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (st calendarStore) Update(_ context.Context, cal *calendar.Calendar) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[cal.ID]; !ok {
		return calendar.ErrNotFound
	}
	if st.nameTaken(cal.Name, cal.ID) {
		return calendar.ErrConflict
	}
	cp := *cal
	s.calendars[cal.ID] = &cp
	return nil
}

// Delete removes the calendar with its memberships, events, notes and
// votings.
func (st calendarStore) Delete(_ context.Context, id string) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[id]; !ok {
		return calendar.ErrNotFound
	}
	delete(s.calendars, id)
	delete(s.members, id)
	for eid, e := range s.events {
		if e.CalendarID == id {
			delete(s.events, eid)
		}
	}
	for nid, n := range s.notes {
		if n.CalendarID == id {
			delete(s.notes, nid)
		}
	}
	for vid, v := range s.votings {
		if v.CalendarID == id {
			delete(s.votings, vid)
		}
	}
	return nil
}

func (st calendarStore) ListForUser(_ context.Context, userID string) ([]calendar.Associated, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []calendar.Associated
	for id, set := range s.members {
		m, ok := set[userID]
		if !ok {
			continue
		}
		c, ok := s.calendars[id]
		if !ok {
			continue
		}
		out = append(out, calendar.Associated{Calendar: *c, Membership: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Calendar.Name < out[j].Calendar.Name })
	return out, nil
}

func (st calendarStore) Member(_ context.Context, calendarID, userID string) (*calendar.Membership, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[calendarID][userID]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	return &m, nil
}

func (st calendarStore) Members(_ context.Context, calendarID string) ([]calendar.Membership, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMembers(s.members[calendarID]), nil
}

func sortedMembers(set map[string]calendar.Membership) []calendar.Membership {
	out := make([]calendar.Membership, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Locked serializes fn with every other Locked call for the same calendar.
// Writes are staged and committed only when fn returns nil.
func (st calendarStore) Locked(ctx context.Context, calendarID string, fn func(context.Context, calendar.MemberTx) error) error {
	s := st.s
	unlock := s.calLocks.lock(calendarID)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	c, ok := s.calendars[calendarID]
	if !ok {
		s.mu.RUnlock()
		return calendar.ErrNotFound
	}
	tx := &memberTx{cal: *c, staged: make(map[string]calendar.Membership, len(s.members[calendarID]))}
	for id, m := range s.members[calendarID] {
		tx.staged[id] = m
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[calendarID]
	if _, exists := s.calendars[calendarID]; !exists || !ok {
		return calendar.ErrNotFound
	}
	for _, op := range tx.ops {
		switch op.kind {
		case opInsert:
			set[op.m.UserID] = op.m
		case opUpdate:
			// A row cascaded away by a concurrent user deletion stays gone.
			if _, ok := set[op.m.UserID]; ok {
				set[op.m.UserID] = op.m
			}
		case opDelete:
			delete(set, op.m.UserID)
		}
	}
	return nil
}

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

type memberOp struct {
	kind opKind
	m    calendar.Membership
}

type memberTx struct {
	cal    calendar.Calendar
	staged map[string]calendar.Membership
	ops    []memberOp
}

func (tx *memberTx) Calendar() *calendar.Calendar {
	cp := tx.cal
	return &cp
}

func (tx *memberTx) List(context.Context) ([]calendar.Membership, error) {
	return sortedMembers(tx.staged), nil
}

func (tx *memberTx) Get(_ context.Context, userID string) (*calendar.Membership, error) {
	m, ok := tx.staged[userID]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	return &m, nil
}

func (tx *memberTx) Insert(_ context.Context, m calendar.Membership) error {
	if _, ok := tx.staged[m.UserID]; ok {
		return calendar.ErrConflict
	}
	m.CalendarID = tx.cal.ID
	tx.staged[m.UserID] = m
	tx.ops = append(tx.ops, memberOp{kind: opInsert, m: m})
	return nil
}

func (tx *memberTx) Update(_ context.Context, m calendar.Membership) error {
	if _, ok := tx.staged[m.UserID]; !ok {
		return calendar.ErrNotFound
	}
	m.CalendarID = tx.cal.ID
	tx.staged[m.UserID] = m
	tx.ops = append(tx.ops, memberOp{kind: opUpdate, m: m})
	return nil
}

func (tx *memberTx) Delete(_ context.Context, userID string) error {
	if _, ok := tx.staged[userID]; !ok {
		return calendar.ErrNotFound
	}
	delete(tx.staged, userID)
	tx.ops = append(tx.ops, memberOp{kind: opDelete, m: calendar.Membership{UserID: userID}})
	return nil
}
