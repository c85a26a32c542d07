package memory

import (
	"context"
	"strings"

	"xitem.org/internal/auth"
)

type userStore struct{ s *Store }

func cloneUser(u *auth.User) *auth.User {
	cp := *u
	if u.Birthday != nil {
		b := *u.Birthday
		cp.Birthday = &b
	}
	return &cp
}

func (st userStore) Create(_ context.Context, u *auth.User) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return auth.ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (st userStore) Find(_ context.Context, id string) (*auth.User, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(u), nil
}

func (st userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (st userStore) CountByRole(_ context.Context, role string) (int, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (st userStore) Update(_ context.Context, u *auth.User) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

// Delete removes the user, their memberships and their votes. Events, notes
// and votings they created keep existing with an empty owner.
func (st userStore) Delete(_ context.Context, id string) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	for _, set := range s.members {
		delete(set, id)
	}
	for _, e := range s.events {
		if e.CreatedBy == id {
			e.CreatedBy = ""
		}
	}
	for _, n := range s.notes {
		if n.OwnerID == id {
			n.OwnerID = ""
		}
	}
	for _, v := range s.votings {
		if v.OwnerID == id {
			v.OwnerID = ""
		}
		for i := range v.Choices {
			v.Choices[i].Voters = without(v.Choices[i].Voters, id)
		}
	}
	return nil
}

type roleStore struct{ s *Store }

func (st roleStore) Find(_ context.Context, name string) (*auth.Role, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &r, nil
}

func (st roleStore) List(_ context.Context) ([]auth.Role, error) {
	s := st.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range auth.DefaultRoles {
		if stored, ok := s.roles[r.Name]; ok {
			out = append(out, stored)
		}
	}
	return out, nil
}
