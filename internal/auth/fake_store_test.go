package auth

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	passwordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*User
	roles     map[string]Role
	roleReads atomic.Int32
	roleDelay time.Duration
	honorCtx  bool // role reads fail on a done context
}

func newFakeStore() *fakeStore {
	s := &fakeStore{users: make(map[string]*User), roles: make(map[string]Role)}
	for _, r := range DefaultRoles {
		s.roles[r.Name] = r
	}
	return s
}

func (s *fakeStore) Users(context.Context) UserStore { return fakeUsers{s} }
func (s *fakeStore) Roles(context.Context) RoleStore { return fakeRoles{s} }

func (s *fakeStore) add(u User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
	return &cp
}

func (s *fakeStore) get(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

type fakeUsers struct{ s *fakeStore }

func (f fakeUsers) Create(_ context.Context, u *User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	cp := *u
	f.s.users[u.ID] = &cp
	return nil
}

func (f fakeUsers) Find(_ context.Context, id string) (*User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	u, ok := f.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f fakeUsers) CountByRole(_ context.Context, role string) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	n := 0
	for _, u := range f.s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (f fakeUsers) Update(_ context.Context, u *User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	f.s.users[u.ID] = &cp
	return nil
}

func (f fakeUsers) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.users[id]; !ok {
		return ErrNotFound
	}
	delete(f.s.users, id)
	return nil
}

type fakeRoles struct{ s *fakeStore }

func (f fakeRoles) Find(ctx context.Context, name string) (*Role, error) {
	f.s.roleReads.Add(1)
	if f.s.honorCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.s.roleDelay > 0 {
		time.Sleep(f.s.roleDelay)
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.roles[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (f fakeRoles) List(context.Context) ([]Role, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]Role, 0, len(f.s.roles))
	for _, r := range f.s.roles {
		out = append(out, r)
	}
	return out, nil
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTokens(t *testing.T, c *clock) *Tokens {
	t.Helper()
	tokens, err := NewTokens(
		WithSecret(KindAuth, "auth-secret"),
		WithSecret(KindRefresh, "refresh-secret"),
		WithSecret(KindSecurity, "security-secret"),
		WithSecret(KindEmail, "email-secret"),
		WithSecret(KindRecovery, "recovery-secret"),
		WithSecret(KindDeletion, "deletion-secret"),
		WithSecret(KindInvitation, "invitation-secret"),
		WithClock(c.Now),
	)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	return tokens
}

const testUserID = "6f1c3c9e-3b7a-4a5e-9b7e-1d2f3a4b5c6d"

func seedUser(t *testing.T, s *fakeStore, c *clock, password string) *User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return s.add(User{
		ID:                testUserID,
		Name:              "Alice",
		Email:             "alice@example.com",
		PasswordHash:      hash,
		Active:            true,
		PasswordChangedAt: c.Now().Add(-time.Hour),
		Role:              RoleVerified,
		RegisteredAt:      c.Now().Add(-time.Hour),
	})
}
