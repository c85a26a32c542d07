package memory

import (
	"context"
	"sort"

	"xitem.org/internal/calendar"
	"xitem.org/internal/note"
)

type noteStore struct{ s *Store }

func (st noteStore) Create(_ context.Context, n *note.Note) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[n.CalendarID]; !ok {
		return calendar.ErrNotFound
	}
	if _, ok := s.notes[n.ID]; ok {
		return calendar.ErrConflict
	}
	cp := *n
	s.notes[n.ID] = &cp
	return nil
}

func (st noteStore) Get(_ context.Context, calendarID, noteID string) (*note.Note, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[noteID]
	if !ok || n.CalendarID != calendarID {
		return nil, note.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (st noteStore) List(_ context.Context, calendarID string) ([]note.Note, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []note.Note
	for _, n := range s.notes {
		if n.CalendarID == calendarID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return note.Less(out[i], out[j]) })
	return out, nil
}

func (st noteStore) Update(_ context.Context, n *note.Note) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.notes[n.ID]
	if !ok || existing.CalendarID != n.CalendarID {
		return note.ErrNotFound
	}
	cp := *n
	s.notes[n.ID] = &cp
	return nil
}

func (st noteStore) Delete(_ context.Context, calendarID, noteID string) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[noteID]
	if !ok || n.CalendarID != calendarID {
		return note.ErrNotFound
	}
	delete(s.notes, noteID)
	return nil
}
