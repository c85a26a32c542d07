package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"xitem.org/internal/apperr"
	"xitem.org/internal/audit"
	"xitem.org/internal/auth"
	"xitem.org/internal/obs"
)

const (
	MinPasswordLength = 6
	MinTitleLength    = 1
	MaxTitleLength    = 100
	maxSuffix         = 9999
	defaultAttempts   = 5
)

// Service implements calendar management, membership and invitations.
type Service struct {
	store    Store
	tokens   *auth.Tokens
	attempts int
}

// Option configures Service.
type Option func(*Service)

// WithNameAttempts bounds retries when a generated name collides.
func WithNameAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// NewService constructs a calendar service.
func NewService(store Store, tokens *auth.Tokens, opts ...Option) *Service {
	s := &Service{store: store, tokens: tokens, attempts: defaultAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is the input of Create.
type CreateInput struct {
	Title    string
	Password string
	CanJoin  *bool
	Color    *int
	Icon     *int
}

// EditInput lists optional calendar changes.
type EditInput struct {
	Title          *string
	Password       *string
	CanJoin        *bool
	RawColorLegend *string
}

// Layout is the caller's presentation of a calendar.
type Layout struct {
	Color *int
	Icon  *int
}

// InvitationInput is the payload of an invitation token.
type InvitationInput struct {
	CanCreateEvents *bool
	CanEditEvents   *bool
	ExpireMinutes   int
}

// Create makes a calendar owned by the caller.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*Associated, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperr.ShortPassword
	}
	if in.CanJoin == nil {
		return nil, apperr.MissingArgument
	}
	layout, err := newLayout(in.Color, in.Icon)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	cal := &Calendar{
		ID:             uuid.NewString(),
		PasswordHash:   hash,
		CanJoin:        *in.CanJoin,
		RawColorLegend: "{}",
		CreatedAt:      s.tokens.Now().UTC(),
	}
	owner := Membership{
		CalendarID:      cal.ID,
		UserID:          caller.UserID,
		IsOwner:         true,
		CanCreateEvents: true,
		CanEditEvents:   true,
		Color:           layout.color,
		Icon:            layout.icon,
	}
	err = s.withFreshName(ctx, title, func(name string) error {
		cal.Name = name
		return s.store.Create(ctx, cal, owner)
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "calendar.created", map[string]any{"calendar_id": cal.ID, "calendar_name": cal.Name})
	return &Associated{Calendar: *cal, Membership: owner}, nil
}

// Get returns the calendar with the caller's membership.
func (s *Service) Get(ctx context.Context, caller auth.Identity, calendarID string) (*Associated, error) {
	m, err := s.membership(ctx, calendarID, caller.UserID)
	if err != nil {
		return nil, err
	}
	cal, err := s.store.Get(ctx, calendarID)
	if err != nil {
		return nil, s.calendarErr(err)
	}
	return &Associated{Calendar: *cal, Membership: *m}, nil
}

// Edit changes calendar attributes. Owner only.
func (s *Service) Edit(ctx context.Context, caller auth.Identity, calendarID string, in EditInput) error {
	if err := s.requireOwner(ctx, calendarID, caller.UserID); err != nil {
		return err
	}
	cal, err := s.store.Get(ctx, calendarID)
	if err != nil {
		return s.calendarErr(err)
	}
	if in.RawColorLegend != nil {
		if !json.Valid([]byte(*in.RawColorLegend)) {
			return apperr.InvalidJSON
		}
		cal.RawColorLegend = *in.RawColorLegend
	}
	if in.CanJoin != nil {
		cal.CanJoin = *in.CanJoin
	}
	if in.Password != nil {
		if len(*in.Password) < MinPasswordLength {
			return apperr.ShortPassword
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return apperr.Wrap(apperr.Internal, err)
		}
		cal.PasswordHash = hash
	}
	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return err
		}
		switch current := cal.Title(); {
		case title == current:
		case strings.EqualFold(title, current):
			// same title in another case keeps its suffix
			_, suffix := SplitName(cal.Name)
			cal.Name = title + "#" + suffix
		default:
			return s.withFreshName(ctx, title, func(name string) error {
				cal.Name = name
				return s.store.Update(ctx, cal)
			})
		}
	}
	if err := s.store.Update(ctx, cal); err != nil {
		return s.calendarErr(err)
	}
	return nil
}

// Delete removes a calendar with its memberships and events. Owner only.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, calendarID string) error {
	if err := s.requireOwner(ctx, calendarID, caller.UserID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, calendarID); err != nil {
		return s.calendarErr(err)
	}
	s.audit(ctx, "calendar.deleted", map[string]any{"calendar_id": calendarID})
	return nil
}

// ForUser lists the calendars userID belongs to. Callers may only list
// their own.
func (s *Service) ForUser(ctx context.Context, caller auth.Identity, userID string) ([]Associated, error) {
	if caller.UserID != userID {
		return nil, apperr.InsufficientPermissions
	}
	list, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return list, nil
}

// Members lists the membership set. Members only.
func (s *Service) Members(ctx context.Context, caller auth.Identity, calendarID string) ([]Membership, error) {
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	members, err := s.store.Members(ctx, calendarID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return members, nil
}

// Member returns one membership. Members only.
func (s *Service) Member(ctx context.Context, caller auth.Identity, calendarID, userID string) (*Membership, error) {
	if _, err := s.membership(ctx, calendarID, caller.UserID); err != nil {
		return nil, err
	}
	m, err := s.store.Member(ctx, calendarID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.MemberNotFound
		}
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return m, nil
}

// PatchMember changes another member's flags. Owner only. Demoting the last
// owner is rejected before any field is applied.
func (s *Service) PatchMember(ctx context.Context, caller auth.Identity, calendarID, userID string, patch PermissionPatch) (int, error) {
	var changes int
	err := s.locked(ctx, calendarID, func(ctx context.Context, tx MemberTx) error {
		members, err := tx.List(ctx)
		if err != nil {
			return err
		}
		self, ok := find(members, caller.UserID)
		if !ok {
			return apperr.AccessForbidden
		}
		if !self.IsOwner {
			return apperr.InsufficientPermissions
		}
		target, ok := find(members, userID)
		if !ok {
			return apperr.MemberNotFound
		}
		if err := CheckDemotion(members, target, patch); err != nil {
			return err
		}
		changes = patch.Apply(&target)
		if changes == 0 {
			return nil
		}
		return tx.Update(ctx, target)
	}, apperr.AccessForbidden)
	if err != nil {
		return 0, err
	}
	if changes > 0 {
		s.audit(ctx, "calendar.member_patched", map[string]any{"calendar_id": calendarID, "member_id": userID, "changes": changes})
	}
	return changes, nil
}

// PatchLayout sets the caller's own color and icon.
func (s *Service) PatchLayout(ctx context.Context, caller auth.Identity, calendarID string, in Layout) error {
	if in.Color == nil || in.Icon == nil {
		return apperr.MissingArgument
	}
	layout, err := newLayout(in.Color, in.Icon)
	if err != nil {
		return err
	}
	return s.locked(ctx, calendarID, func(ctx context.Context, tx MemberTx) error {
		m, err := tx.Get(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperr.AccessForbidden
			}
			return err
		}
		m.Color, m.Icon = layout.color, layout.icon
		return tx.Update(ctx, *m)
	}, apperr.AccessForbidden)
}

// RemoveMember removes userID from the calendar. Owners may remove anyone;
// other members may remove only themselves.
func (s *Service) RemoveMember(ctx context.Context, caller auth.Identity, calendarID, userID string) error {
	err := s.locked(ctx, calendarID, func(ctx context.Context, tx MemberTx) error {
		members, err := tx.List(ctx)
		if err != nil {
			return err
		}
		self, ok := find(members, caller.UserID)
		if !ok {
			return apperr.AccessForbidden
		}
		if !self.IsOwner && caller.UserID != userID {
			return apperr.InsufficientPermissions
		}
		if err := CheckRemove(members, userID); err != nil {
			return err
		}
		return tx.Delete(ctx, userID)
	}, apperr.AccessForbidden)
	if err != nil {
		return err
	}
	s.audit(ctx, "calendar.member_removed", map[string]any{"calendar_id": calendarID, "member_id": userID})
	return nil
}

// Join adds the caller to the calendar named name after checking the
// calendar password.
func (s *Service) Join(ctx context.Context, caller auth.Identity, name, password string, in Layout) (*Calendar, error) {
	if strings.TrimSpace(password) == "" {
		return nil, apperr.MissingArgument
	}
	layout, err := newLayout(in.Color, in.Icon)
	if err != nil {
		return nil, err
	}
	cal, err := s.store.GetByName(ctx, name)
	if err != nil {
		return nil, s.calendarErr(err)
	}
	m := Membership{
		CalendarID:      cal.ID,
		UserID:          caller.UserID,
		CanCreateEvents: true,
		Color:           layout.color,
		Icon:            layout.icon,
	}
	joined, err := s.join(ctx, m, func(cal *Calendar) error {
		if !auth.PasswordMatches(cal.PasswordHash, password) {
			return apperr.WrongPassword
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "calendar.member_joined", map[string]any{"calendar_id": cal.ID, "via": "password"})
	return joined, nil
}

// Invite issues an invitation token for the calendar. Owner only.
func (s *Service) Invite(ctx context.Context, caller auth.Identity, calendarID string, in InvitationInput) (string, error) {
	if in.CanCreateEvents == nil || in.CanEditEvents == nil {
		return "", apperr.MissingArgument
	}
	ttl := time.Duration(in.ExpireMinutes) * time.Minute
	if ttl < auth.MinInvitationTTL || ttl > auth.MaxInvitationTTL {
		return "", apperr.InvalidNumber
	}
	if err := s.requireOwner(ctx, calendarID, caller.UserID); err != nil {
		return "", err
	}
	token, err := s.tokens.Issue(auth.KindInvitation, auth.Claims{
		CalendarID:      calendarID,
		CanCreateEvents: *in.CanCreateEvents,
		CanEditEvents:   *in.CanEditEvents,
	}, ttl)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err)
	}
	s.audit(ctx, "calendar.invitation_issued", map[string]any{"calendar_id": calendarID, "expire_minutes": in.ExpireMinutes})
	return token, nil
}

// AcceptInvitation adds the caller with exactly the permissions carried by
// the token. Only color and icon come from the caller.
func (s *Service) AcceptInvitation(ctx context.Context, caller auth.Identity, token string, in Layout) (*Calendar, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.MissingArgument
	}
	layout, err := newLayout(in.Color, in.Icon)
	if err != nil {
		return nil, err
	}
	claims, err := s.tokens.Verify(auth.KindInvitation, token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperr.ExpiredToken
		}
		return nil, apperr.InvalidToken
	}
	if _, err := uuid.Parse(claims.CalendarID); err != nil {
		return nil, apperr.InvalidToken
	}
	m := Membership{
		CalendarID:      claims.CalendarID,
		UserID:          caller.UserID,
		CanCreateEvents: claims.CanCreateEvents,
		CanEditEvents:   claims.CanEditEvents,
		Color:           layout.color,
		Icon:            layout.icon,
	}
	cal, err := s.join(ctx, m, nil)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, "calendar.member_joined", map[string]any{"calendar_id": cal.ID, "via": "invitation"})
	return cal, nil
}

// join inserts m under the calendar lock after the join checks and the
// path-specific check pass.
func (s *Service) join(ctx context.Context, m Membership, check func(*Calendar) error) (*Calendar, error) {
	var cal Calendar
	err := s.locked(ctx, m.CalendarID, func(ctx context.Context, tx MemberTx) error {
		cal = *tx.Calendar()
		existing, err := tx.Get(ctx, m.UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := CheckJoin(&cal, existing); err != nil {
			return err
		}
		if check != nil {
			if err := check(&cal); err != nil {
				return err
			}
		}
		m.IsOwner = false
		if err := tx.Insert(ctx, m); err != nil {
			if errors.Is(err, ErrConflict) {
				return apperr.AlreadyExists
			}
			return err
		}
		return nil
	}, apperr.CalendarNotFound)
	if err != nil {
		return nil, err
	}
	return &cal, nil
}

// locked runs fn under the calendar lock. missing is returned when the
// calendar does not exist; store failures become Internal.
func (s *Service) locked(ctx context.Context, calendarID string, fn func(context.Context, MemberTx) error, missing apperr.Code) error {
	if _, err := uuid.Parse(calendarID); err != nil {
		return missing
	}
	err := s.store.Locked(ctx, calendarID, fn)
	switch {
	case err == nil:
		return nil
	case apperr.IsExpected(err):
		return err
	case errors.Is(err, ErrNotFound):
		return missing
	default:
		return apperr.Wrap(apperr.Internal, err)
	}
}

func (s *Service) membership(ctx context.Context, calendarID, userID string) (*Membership, error) {
	if _, err := uuid.Parse(calendarID); err != nil {
		return nil, apperr.AccessForbidden
	}
	m, err := s.store.Member(ctx, calendarID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.AccessForbidden
		}
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	return m, nil
}

func (s *Service) requireOwner(ctx context.Context, calendarID, userID string) error {
	m, err := s.membership(ctx, calendarID, userID)
	if err != nil {
		return err
	}
	if !m.IsOwner {
		return apperr.InsufficientPermissions
	}
	return nil
}

// withFreshName calls save with "title#NNNN" names until one does not
// collide.
func (s *Service) withFreshName(ctx context.Context, title string, save func(name string) error) error {
	for attempt := 0; attempt < s.attempts; attempt++ {
		highest, err := s.store.MaxSuffix(ctx, title)
		if err != nil {
			return apperr.Wrap(apperr.Internal, err)
		}
		if highest >= maxSuffix {
			return apperr.InvalidTitle
		}
		err = save(FormatName(title, highest+1))
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return s.calendarErr(err)
		}
		obs.Warn("calendar name collision", map[string]any{"title": title, "attempt": attempt + 1})
	}
	return apperr.Wrap(apperr.Internal, fmt.Errorf("no free name for %q after %d attempts", title, s.attempts))
}

// FormatName renders "title#NNNN".
func FormatName(title string, suffix int) string {
	return fmt.Sprintf("%s#%04d", title, suffix)
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if len(title) < MinTitleLength || len(title) > MaxTitleLength || strings.ContainsRune(title, '#') {
		return "", apperr.InvalidTitle
	}
	return title, nil
}

type layout struct{ color, icon int }

func newLayout(color, icon *int) (layout, error) {
	l := layout{color: DefaultColor, icon: DefaultIcon}
	if color != nil {
		if *color < 0 || *color > MaxColor {
			return layout{}, apperr.InvalidColor
		}
		l.color = *color
	}
	if icon != nil {
		l.icon = *icon
	}
	return l, nil
}

func (s *Service) calendarErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.CalendarNotFound
	}
	if apperr.IsExpected(err) {
		return err
	}
	return apperr.Wrap(apperr.Internal, err)
}

func (s *Service) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Warn("audit log failed", map[string]any{"event": event, "error": err})
	}
}
