package note

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"xitem.org/internal/apperr"
	"xitem.org/internal/auth"
	"xitem.org/internal/calendar"
)

// Input carries note fields. Create requires Title, Content and Pinned;
// Edit applies only the non-nil fields.
type Input struct {
	Title   *string
	Content *string
	Color   *int64
	Pinned  *bool
}

// Service implements note operations.
type Service struct {
	notes   Store
	members Members
	now     func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(notes Store, members Members, opts ...Option) *Service {
	s := &Service{notes: notes, members: members, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a note. The caller needs can_create_events.
func (s *Service) Create(ctx context.Context, caller auth.Identity, calendarID string, in Input) (*Note, error) {
	if in.Title == nil || in.Content == nil || in.Pinned == nil {
		return nil, apperr.MissingArgument
	}
	m, err := s.membership(ctx, calendarID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !m.CanCreateEvents {
		return nil, apperr.InsufficientPermissions
	}
	now := s.now().UTC()
	n := &Note{
		ID:         uuid.NewString(),
		CalendarID: calendarID,
		OwnerID:    caller.UserID,
		Color:      DefaultColor,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if _, err := apply(n, in); err != nil {
		return nil, err
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return n, nil
}

// Get returns one note. Members only.
func (s *Service) Get(ctx context.Context, caller auth.Identity, calendarID, noteID string) (*Note, error) {
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	return s.find(ctx, calendarID, noteID)
}

// List returns every note of the calendar. Members only.
func (s *Service) List(ctx context.Context, caller auth.Identity, calendarID string) ([]Note, error) {
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	list, err := s.notes.List(ctx, calendarID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return list, nil
}

// Edit applies in and returns the number of changed fields. The author may
// always edit; others need can_edit_events.
func (s *Service) Edit(ctx context.Context, caller auth.Identity, calendarID, noteID string, in Input) (int, error) {
	n, err := s.editable(ctx, caller, calendarID, noteID)
	if err != nil {
		return 0, err
	}
	changes, err := apply(n, in)
	if err != nil {
		return 0, err
	}
	if changes == 0 {
		return 0, nil
	}
	n.ModifiedAt = s.now().UTC()
	if err := s.notes.Update(ctx, n); err != nil {
		return 0, s.storeErr(err)
	}
	return changes, nil
}

// Delete removes a note under the same rule as Edit.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, calendarID, noteID string) error {
	if _, err := s.editable(ctx, caller, calendarID, noteID); err != nil {
		return err
	}
	if err := s.notes.Delete(ctx, calendarID, noteID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

func (s *Service) editable(ctx context.Context, caller auth.Identity, calendarID, noteID string) (*Note, error) {
	m, err := s.membership(ctx, calendarID, caller.UserID)
	if err != nil {
		return nil, err
	}
	n, err := s.find(ctx, calendarID, noteID)
	if err != nil {
		return nil, err
	}
	if n.OwnerID != caller.UserID && !m.CanEditEvents {
		return nil, apperr.InsufficientPermissions
	}
	return n, nil
}

func (s *Service) membership(ctx context.Context, calendarID, userID string) (*calendar.Membership, error) {
	if _, err := uuid.Parse(calendarID); err != nil {
		return nil, apperr.AccessForbidden
	}
	m, err := s.members.Member(ctx, calendarID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.AccessForbidden
		}
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return m, nil
}

func (s *Service) find(ctx context.Context, calendarID, noteID string) (*Note, error) {
	if _, err := uuid.Parse(noteID); err != nil {
		return nil, apperr.NoteNotFound
	}
	n, err := s.notes.Get(ctx, calendarID, noteID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return n, nil
}

func (s *Service) storeErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NoteNotFound
	}
	return apperr.Wrap(apperr.Internal, err)
}

// apply validates in and copies the changed fields into n. n is untouched
// on error.
func apply(n *Note, in Input) (int, error) {
	next := *n
	changes := 0
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if len(title) < MinTitleLength {
			return 0, apperr.InvalidTitle
		}
		if title != next.Title {
			next.Title = title
			changes++
		}
	}
	if in.Content != nil && *in.Content != next.Content {
		next.Content = *in.Content
		changes++
	}
	if in.Color != nil {
		if *in.Color < MinColor || *in.Color > MaxColor {
			return 0, apperr.InvalidColor
		}
		if *in.Color != next.Color {
			next.Color = *in.Color
			changes++
		}
	}
	if in.Pinned != nil && *in.Pinned != next.Pinned {
		next.Pinned = *in.Pinned
		changes++
	}
	*n = next
	return changes, nil
}
