package event

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

// Input carries event fields. Create requires Title, Begin, End and
// Daylong; Edit applies only the non-nil fields.
type Input struct {
	Title       *string
	Description *string
	Begin       *time.Time
	End         *time.Time
	Daylong     *bool
	Color       *int64
}

// Service implements event operations.
type Service struct {
	events  Store
	members Members
	now     func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the event service.
func NewService(events Store, members Members, opts ...Option) *Service {
	s := &Service{events: events, members: members, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds an event. The caller needs can_create_events.
func (s *Service) Create(ctx context.Context, caller auth.Identity, calendarID string, in Input) (*Event, error) {
	if in.Title == nil || in.Begin == nil || in.End == nil || in.Daylong == nil {
		return nil, apperr.MissingArgument
	}
	m, err := s.membership(ctx, calendarID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !m.CanCreateEvents {
		return nil, apperr.InsufficientPermissions
	}
	e := &Event{
		ID:         uuid.NewString(),
		CalendarID: calendarID,
		CreatedBy:  caller.UserID,
		Color:      DefaultColor,
		CreatedAt:  s.now().UTC(),
	}
	if _, err := apply(e, in); err != nil {
		return nil, err
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return e, nil
}

// Get returns one event. Members only.
func (s *Service) Get(ctx context.Context, caller auth.Identity, calendarID, eventID string) (*Event, error) {
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	return s.find(ctx, calendarID, eventID)
}

// List returns the calendar's events overlapping w. Members only.
func (s *Service) List(ctx context.Context, caller auth.Identity, calendarID string, w Window) ([]Event, error) {
	if w.Begin != nil && w.End != nil && w.End.Before(*w.Begin) {
		return nil, apperr.EndBeforeStart
	}
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	list, err := s.events.List(ctx, calendarID, w)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return list, nil
}

// Edit applies in and returns the number of changed fields. The creator
// may always edit; others need can_edit_events.
func (s *Service) Edit(ctx context.Context, caller auth.Identity, calendarID, eventID string, in Input) (int, error) {
	e, err := s.editable(ctx, caller, calendarID, eventID)
	if err != nil {
		return 0, err
	}
	changes, err := apply(e, in)
	if err != nil {
		return 0, err
	}
	if changes == 0 {
		return 0, nil
	}
	if err := s.events.Update(ctx, e); err != nil {
		return 0, s.storeErr(err)
	}
	return changes, nil
}

// Delete removes an event under the same rule as Edit.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, calendarID, eventID string) error {
	if _, err := s.editable(ctx, caller, calendarID, eventID); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, calendarID, eventID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

func (s *Service) editable(ctx context.Context, caller auth.Identity, calendarID, eventID string) (*Event, error) {
	m, err := s.membership(ctx, calendarID, caller.UserID)
	if err != nil {
		return nil, err
	}
	e, err := s.find(ctx, calendarID, eventID)
	if err != nil {
		return nil, err
	}
	if e.CreatedBy != caller.UserID && !m.CanEditEvents {
		return nil, apperr.InsufficientPermissions
	}
	return e, nil
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

func (s *Service) find(ctx context.Context, calendarID, eventID string) (*Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, apperr.EventNotFound
	}
	e, err := s.events.Get(ctx, calendarID, eventID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return e, nil
}

func (s *Service) storeErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.EventNotFound
	}
	return apperr.Wrap(apperr.Internal, err)
}

// apply validates in against e and copies the changed fields. Nothing is
// written to e when validation fails.
func apply(e *Event, in Input) (int, error) {
	next := *e
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
	if in.Description != nil && *in.Description != next.Description {
		next.Description = *in.Description
		changes++
	}
	if in.Begin != nil && !in.Begin.Equal(next.Begin) {
		next.Begin = in.Begin.UTC()
		changes++
	}
	if in.End != nil && !in.End.Equal(next.End) {
		next.End = in.End.UTC()
		changes++
	}
	if in.Daylong != nil && *in.Daylong != next.Daylong {
		next.Daylong = *in.Daylong
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
	if next.Begin.Before(Earliest) {
		return 0, apperr.StartAfter1900
	}
	if next.End.Before(next.Begin) {
		return 0, apperr.EndBeforeStart
	}
	*e = next
	return changes, nil
}
