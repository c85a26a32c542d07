package event_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"xitem.org/internal/apperr"
	"xitem.org/internal/auth"
	"xitem.org/internal/calendar"
	"xitem.org/internal/event"
	"xitem.org/internal/store/memory"
)

const calID = "11111111-1111-4111-8111-111111111111"

var (
	owner   = auth.Identity{UserID: "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"}
	editor  = auth.Identity{UserID: "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"}
	viewer  = auth.Identity{UserID: "cccccccc-cccc-4ccc-8ccc-cccccccccccc"}
	outside = auth.Identity{UserID: "dddddddd-dddd-4ddd-8ddd-dddddddddddd"}
)

func ptr[T any](v T) *T { return &v }

func newService(t *testing.T) *event.Service {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	cals := st.Calendars()
	err := cals.Create(ctx, &calendar.Calendar{ID: calID, Name: "Team#0001", CanJoin: true},
		calendar.Membership{UserID: owner.UserID, IsOwner: true, CanCreateEvents: true, CanEditEvents: true})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	err = cals.Locked(ctx, calID, func(ctx context.Context, tx calendar.MemberTx) error {
		if err := tx.Insert(ctx, calendar.Membership{UserID: editor.UserID, CanCreateEvents: true, CanEditEvents: true}); err != nil {
			return err
		}
		return tx.Insert(ctx, calendar.Membership{UserID: viewer.UserID, CanCreateEvents: true})
	})
	if err != nil {
		t.Fatalf("seed members: %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return event.NewService(st.Events(), cals, event.WithClock(func() time.Time { return now }))
}

func input(title string, begin time.Time, d time.Duration) event.Input {
	end := begin.Add(d)
	return event.Input{Title: ptr(title), Begin: &begin, End: &end, Daylong: ptr(false)}
}

func TestCreateValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	begin := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   event.Input
		want error
	}{
		{"short title", input("ab", begin, time.Hour), apperr.InvalidTitle},
		{"end before start", input("Meeting", begin, -time.Hour), apperr.EndBeforeStart},
		{"before 1900", input("Ancient", time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC), time.Hour), apperr.StartAfter1900},
		{"missing daylong", event.Input{Title: ptr("Meeting"), Begin: &begin, End: &begin}, apperr.MissingArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, owner, calID, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	bad := input("Colorful", begin, time.Hour)
	bad.Color = ptr(int64(0x00FFFFFF))
	if _, err := svc.Create(ctx, owner, calID, bad); !errors.Is(err, apperr.InvalidColor) {
		t.Fatalf("expected invalid color, got %v", err)
	}
}

func TestCreateRequiresMembership(t *testing.T) {
	svc := newService(t)
	begin := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if _, err := svc.Create(context.Background(), outside, calID, input("Meeting", begin, time.Hour)); !errors.Is(err, apperr.AccessForbidden) {
		t.Fatalf("expected access forbidden, got %v", err)
	}
	e, err := svc.Create(context.Background(), viewer, calID, input("Meeting", begin, time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.CreatedBy != viewer.UserID || e.Color != event.DefaultColor {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestEditPermissions(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	begin := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	e, err := svc.Create(ctx, owner, calID, input("Planning", begin, time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rename := event.Input{Title: ptr("Planning v2")}
	if _, err := svc.Edit(ctx, viewer, calID, e.ID, rename); !errors.Is(err, apperr.InsufficientPermissions) {
		t.Fatalf("viewer edit: %v", err)
	}
	n, err := svc.Edit(ctx, editor, calID, e.ID, rename)
	if err != nil || n != 1 {
		t.Fatalf("editor edit: %d %v", n, err)
	}
	n, err = svc.Edit(ctx, editor, calID, e.ID, rename)
	if err != nil || n != 0 {
		t.Fatalf("unchanged edit: %d %v", n, err)
	}

	mine, err := svc.Create(ctx, viewer, calID, input("Mine", begin, time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Edit(ctx, viewer, calID, mine.ID, event.Input{Daylong: ptr(true)}); err != nil {
		t.Fatalf("creator edit: %v", err)
	}
	earlier := begin.Add(-2 * time.Hour)
	if _, err := svc.Edit(ctx, viewer, calID, mine.ID, event.Input{End: &earlier}); !errors.Is(err, apperr.EndBeforeStart) {
		t.Fatalf("expected end before start, got %v", err)
	}
	got, err := svc.Get(ctx, owner, calID, mine.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Daylong || !got.End.Equal(begin.Add(time.Hour)) {
		t.Fatalf("failed edit must not persist: %+v", got)
	}
}

func TestDeleteAndList(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	begin := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	e, err := svc.Create(ctx, owner, calID, input("Planning", begin, time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, viewer, calID, e.ID); !errors.Is(err, apperr.InsufficientPermissions) {
		t.Fatalf("viewer delete: %v", err)
	}
	list, err := svc.List(ctx, viewer, calID, event.Window{})
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v %v", list, err)
	}
	if err := svc.Delete(ctx, editor, calID, e.ID); err != nil {
		t.Fatalf("editor delete: %v", err)
	}
	if _, err := svc.Get(ctx, owner, calID, e.ID); !errors.Is(err, apperr.EventNotFound) {
		t.Fatalf("expected event not found, got %v", err)
	}
	if _, err := svc.List(ctx, outside, calID, event.Window{}); !errors.Is(err, apperr.AccessForbidden) {
		t.Fatalf("expected access forbidden, got %v", err)
	}
	from, to := begin, begin.Add(-time.Hour)
	if _, err := svc.List(ctx, owner, calID, event.Window{Begin: &from, End: &to}); !errors.Is(err, apperr.EndBeforeStart) {
		t.Fatalf("expected end before start, got %v", err)
	}
}
