package voting

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

// ChoiceInput is one proposed date with an optional comment.
type ChoiceInput struct {
	Date    *time.Time
	Comment string
}

// Input describes a new voting. Title, AbstentionAllowed, MultipleChoice
// and at least MinChoices choices are required.
type Input struct {
	Title             *string
	AbstentionAllowed *bool
	MultipleChoice    *bool
	Choices           []ChoiceInput
}

// Service implements voting operations.
type Service struct {
	votings Store
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

func NewService(votings Store, members Members, opts ...Option) *Service {
	s := &Service{votings: votings, members: members, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a voting. Only calendar owners who may edit events can do
// so. An abstention choice is appended when abstention is allowed.
func (s *Service) Create(ctx context.Context, caller auth.Identity, calendarID string, in Input) (*Voting, error) {
	if in.Title == nil || in.AbstentionAllowed == nil || in.MultipleChoice == nil || len(in.Choices) < MinChoices {
		return nil, apperr.MissingArgument
	}
	title := strings.TrimSpace(*in.Title)
	if len(title) < MinTitleLength {
		return nil, apperr.InvalidTitle
	}
	for _, c := range in.Choices {
		if c.Date == nil {
			return nil, apperr.MissingArgument
		}
		if c.Date.Before(Earliest) {
			return nil, apperr.StartAfter1900
		}
	}
	m, err := s.membership(ctx, calendarID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !m.IsOwner || !m.CanEditEvents {
		return nil, apperr.InsufficientPermissions
	}

	v := &Voting{
		ID:                uuid.NewString(),
		CalendarID:        calendarID,
		OwnerID:           caller.UserID,
		Title:             title,
		AbstentionAllowed: *in.AbstentionAllowed,
		MultipleChoice:    *in.MultipleChoice,
		CreatedAt:         s.now().UTC(),
	}
	for _, c := range in.Choices {
		d := c.Date.UTC()
		v.Choices = append(v.Choices, Choice{ID: uuid.NewString(), Date: &d, Comment: strings.TrimSpace(c.Comment)})
	}
	if v.AbstentionAllowed {
		v.Choices = append(v.Choices, Choice{ID: uuid.NewString(), Comment: AbstentionComment})
	}
	if err := s.votings.Create(ctx, v); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return v, nil
}

// Get returns one voting with its votes. Members only.
func (s *Service) Get(ctx context.Context, caller auth.Identity, calendarID, votingID string) (*Voting, error) {
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	return s.find(ctx, calendarID, votingID)
}

// List returns every voting of the calendar. Members only.
func (s *Service) List(ctx context.Context, caller auth.Identity, calendarID string) ([]Voting, error) {
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	list, err := s.votings.List(ctx, calendarID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return list, nil
}

// Delete removes a voting. Its creator and calendar owners may do so.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, calendarID, votingID string) error {
	m, err := s.membership(ctx, calendarID, caller.UserID)
	if err != nil {
		return err
	}
	v, err := s.find(ctx, calendarID, votingID)
	if err != nil {
		return err
	}
	if v.OwnerID != caller.UserID && !m.IsOwner {
		return apperr.InsufficientPermissions
	}
	if err := s.votings.Delete(ctx, calendarID, votingID); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// Vote records the caller's picks. A user votes once per voting; more than
// one pick needs a multiple choice voting.
func (s *Service) Vote(ctx context.Context, caller auth.Identity, calendarID, votingID string, choiceIDs []string) error {
	picks := dedupe(choiceIDs)
	if len(picks) == 0 {
		return apperr.MissingArgument
	}
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return err
	}
	if _, err := uuid.Parse(votingID); err != nil {
		return apperr.VotingNotFound
	}
	err := s.votings.Vote(ctx, calendarID, votingID, caller.UserID, picks, func(v *Voting) error {
		if v.Voted(caller.UserID) {
			return apperr.AlreadyVoted
		}
		if !v.MultipleChoice && len(picks) > 1 {
			return apperr.NoMultipleChoice
		}
		for _, id := range picks {
			if _, ok := v.Choice(id); !ok {
				return apperr.ChoiceNotFound
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case apperr.IsExpected(err):
		return err
	case errors.Is(err, ErrConflict):
		return apperr.AlreadyVoted
	}
	return s.storeErr(err)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
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

func (s *Service) find(ctx context.Context, calendarID, votingID string) (*Voting, error) {
	if _, err := uuid.Parse(votingID); err != nil {
		return nil, apperr.VotingNotFound
	}
	v, err := s.votings.Get(ctx, calendarID, votingID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return v, nil
}

func (s *Service) storeErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.VotingNotFound
	}
	return apperr.Wrap(apperr.Internal, err)
}
