package memory

import (
	"context"
	"sort"

	"xitem.org/internal/calendar"
	"xitem.org/internal/event"
)

type eventStore struct{ s *Store }

func (st eventStore) Create(_ context.Context, e *event.Event) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[e.CalendarID]; !ok {
		return calendar.ErrNotFound
	}
	if _, ok := s.events[e.ID]; ok {
		return calendar.ErrConflict
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (st eventStore) Get(_ context.Context, calendarID, eventID string) (*event.Event, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok || e.CalendarID != calendarID {
		return nil, event.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (st eventStore) List(_ context.Context, calendarID string, w event.Window) ([]event.Event, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []event.Event
	for _, e := range s.events {
		if e.CalendarID == calendarID && w.Overlaps(*e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Begin.Equal(out[j].Begin) {
			return out[i].Begin.Before(out[j].Begin)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st eventStore) Update(_ context.Context, e *event.Event) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.events[e.ID]
	if !ok || existing.CalendarID != e.CalendarID {
		return event.ErrNotFound
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (st eventStore) Delete(_ context.Context, calendarID, eventID string) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok || e.CalendarID != calendarID {
		return event.ErrNotFound
	}
	delete(s.events, eventID)
	return nil
}
