package memory

import (
	"context"
	"slices"
	"sort"

	"xitem.org/internal/calendar"
	"xitem.org/internal/voting"
)

type votingStore struct{ s *Store }

func cloneVoting(v *voting.Voting) *voting.Voting {
	cp := *v
	cp.Choices = make([]voting.Choice, len(v.Choices))
	for i, c := range v.Choices {
		if c.Date != nil {
			d := *c.Date
			c.Date = &d
		}
		c.Voters = slices.Clone(c.Voters)
		cp.Choices[i] = c
	}
	return &cp
}

func without(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}

func (st votingStore) Create(_ context.Context, v *voting.Voting) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[v.CalendarID]; !ok {
		return calendar.ErrNotFound
	}
	if _, ok := s.votings[v.ID]; ok {
		return voting.ErrConflict
	}
	s.votings[v.ID] = cloneVoting(v)
	return nil
}

func (st votingStore) Get(_ context.Context, calendarID, votingID string) (*voting.Voting, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votings[votingID]
	if !ok || v.CalendarID != calendarID {
		return nil, voting.ErrNotFound
	}
	return cloneVoting(v), nil
}

func (st votingStore) List(_ context.Context, calendarID string) ([]voting.Voting, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []voting.Voting
	for _, v := range s.votings {
		if v.CalendarID == calendarID {
			out = append(out, *cloneVoting(v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st votingStore) Delete(_ context.Context, calendarID, votingID string) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votings[votingID]
	if !ok || v.CalendarID != calendarID {
		return voting.ErrNotFound
	}
	delete(s.votings, votingID)
	return nil
}

// Vote holds the write lock across check and insert, so concurrent votes by
// one user serialize.
func (st votingStore) Vote(_ context.Context, calendarID, votingID, userID string, choiceIDs []string, check func(*voting.Voting) error) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votings[votingID]
	if !ok || v.CalendarID != calendarID {
		return voting.ErrNotFound
	}
	if err := check(cloneVoting(v)); err != nil {
		return err
	}
	if v.Voted(userID) {
		return voting.ErrConflict
	}
	for _, id := range choiceIDs {
		if _, ok := v.Choice(id); !ok {
			return voting.ErrNotFound
		}
	}
	for _, id := range choiceIDs {
		c, _ := v.Choice(id)
		c.Voters = append(c.Voters, userID)
	}
	return nil
}
