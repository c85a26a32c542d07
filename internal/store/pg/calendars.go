package pg

import (
	"context"
	"database/sql"

	"xitem.org/internal/calendar"
)

const (
	calendarColumns = `calendar_id, calendar_name, password_hash, can_join, raw_color_legend, creation_date`
	memberColumns   = `calendar_id, user_id, is_owner, can_create_events, can_edit_events, color, icon`
)

type calendarStore struct{ db *sql.DB }

func scanCalendar(row rowScanner) (*calendar.Calendar, error) {
	var (
		c      calendar.Calendar
		legend sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.PasswordHash, &c.CanJoin, &legend, &c.CreatedAt); err != nil {
		return nil, translate(err)
	}
	c.RawColorLegend = legend.String
	return &c, nil
}

func scanMember(row rowScanner) (calendar.Membership, error) {
	var m calendar.Membership
	err := row.Scan(&m.CalendarID, &m.UserID, &m.IsOwner, &m.CanCreateEvents, &m.CanEditEvents, &m.Color, &m.Icon)
	return m, err
}

func collectMembers(rows *sql.Rows, err error) ([]calendar.Membership, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.Membership
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertMember(ctx context.Context, q queryer, m calendar.Membership) error {
	_, err := q.ExecContext(ctx, `
		insert into calendar_members (`+memberColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, m.CalendarID, m.UserID, m.IsOwner, m.CanCreateEvents, m.CanEditEvents, m.Color, m.Icon)
	return translate(err)
}

// Create inserts the calendar together with its owner's membership.
func (st calendarStore) Create(ctx context.Context, cal *calendar.Calendar, owner calendar.Membership) (err error) {
	if st.db == nil {
		return errNoDB
	}
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		insert into calendars (`+calendarColumns+`)
		values ($1, $2, $3, $4, $5, $6)
	`, cal.ID, cal.Name, cal.PasswordHash, cal.CanJoin, cal.RawColorLegend, cal.CreatedAt); err != nil {
		return translate(err)
	}
	owner.CalendarID = cal.ID
	if err = insertMember(ctx, tx, owner); err != nil {
		return err
	}
	return tx.Commit()
}

func (st calendarStore) Get(ctx context.Context, id string) (*calendar.Calendar, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return scanCalendar(st.db.QueryRowContext(ctx, `select `+calendarColumns+` from calendars where calendar_id = $1`, id))
}

func (st calendarStore) GetByName(ctx context.Context, name string) (*calendar.Calendar, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return scanCalendar(st.db.QueryRowContext(ctx, `select `+calendarColumns+` from calendars where lower(calendar_name) = lower($1)`, name))
}

// MaxSuffix reads the highest "#NNNN" suffix for title. Names whose suffix
// is not numeric are skipped.
func (st calendarStore) MaxSuffix(ctx context.Context, title string) (int, error) {
	if st.db == nil {
		return 0, errNoDB
	}
	var highest int
	err := st.db.QueryRowContext(ctx, `
		select coalesce(max(split_part(calendar_name, '#', 2)::int), 0)
		from calendars
		where lower(split_part(calendar_name, '#', 1)) = lower($1)
		  and split_part(calendar_name, '#', 2) ~ '^[0-9]+$'
	`, title).Scan(&highest)
	if err != nil {
		return 0, err
	}
	return highest, nil
}

func (st calendarStore) Update(ctx context.Context, cal *calendar.Calendar) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `
		update calendars
		set calendar_name = $2, password_hash = $3, can_join = $4, raw_color_legend = $5
		where calendar_id = $1
	`, cal.ID, cal.Name, cal.PasswordHash, cal.CanJoin, cal.RawColorLegend))
}

// Delete removes the calendar; memberships and events cascade.
func (st calendarStore) Delete(ctx context.Context, id string) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `delete from calendars where calendar_id = $1`, id))
}

func (st calendarStore) ListForUser(ctx context.Context, userID string) ([]calendar.Associated, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	rows, err := st.db.QueryContext(ctx, `
		select c.calendar_id, c.calendar_name, c.password_hash, c.can_join, c.raw_color_legend, c.creation_date,
		       m.calendar_id, m.user_id, m.is_owner, m.can_create_events, m.can_edit_events, m.color, m.icon
		from calendar_members m
		join calendars c on c.calendar_id = m.calendar_id
		where m.user_id = $1
		order by c.calendar_name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.Associated
	for rows.Next() {
		var (
			a      calendar.Associated
			legend sql.NullString
		)
		if err := rows.Scan(
			&a.Calendar.ID, &a.Calendar.Name, &a.Calendar.PasswordHash, &a.Calendar.CanJoin, &legend, &a.Calendar.CreatedAt,
			&a.Membership.CalendarID, &a.Membership.UserID, &a.Membership.IsOwner,
			&a.Membership.CanCreateEvents, &a.Membership.CanEditEvents, &a.Membership.Color, &a.Membership.Icon,
		); err != nil {
			return nil, err
		}
		a.Calendar.RawColorLegend = legend.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (st calendarStore) Member(ctx context.Context, calendarID, userID string) (*calendar.Membership, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return getMember(ctx, st.db, calendarID, userID)
}

func (st calendarStore) Members(ctx context.Context, calendarID string) ([]calendar.Membership, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return listMembers(ctx, st.db, calendarID)
}

func getMember(ctx context.Context, q queryer, calendarID, userID string) (*calendar.Membership, error) {
	m, err := scanMember(q.QueryRowContext(ctx, `
		select `+memberColumns+`
		from calendar_members
		where calendar_id = $1 and user_id = $2
	`, calendarID, userID))
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func listMembers(ctx context.Context, q queryer, calendarID string) ([]calendar.Membership, error) {
	return collectMembers(q.QueryContext(ctx, `
		select `+memberColumns+`
		from calendar_members
		where calendar_id = $1
		order by user_id
	`, calendarID))
}

// Locked holds a row lock on the calendar for the length of one
// transaction. Concurrent membership changes on the same calendar queue on
// that lock.
func (st calendarStore) Locked(ctx context.Context, calendarID string, fn func(ctx context.Context, tx calendar.MemberTx) error) (err error) {
	if st.db == nil {
		return errNoDB
	}
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cal, err := scanCalendar(tx.QueryRowContext(ctx, `
		select `+calendarColumns+`
		from calendars
		where calendar_id = $1
		for update
	`, calendarID))
	if err != nil {
		return err
	}
	if err = fn(ctx, &memberTx{tx: tx, cal: cal}); err != nil {
		return err
	}
	return tx.Commit()
}

type memberTx struct {
	tx  *sql.Tx
	cal *calendar.Calendar
}

func (m *memberTx) Calendar() *calendar.Calendar {
	cp := *m.cal
	return &cp
}

func (m *memberTx) List(ctx context.Context) ([]calendar.Membership, error) {
	return listMembers(ctx, m.tx, m.cal.ID)
}

func (m *memberTx) Get(ctx context.Context, userID string) (*calendar.Membership, error) {
	return getMember(ctx, m.tx, m.cal.ID, userID)
}

func (m *memberTx) Insert(ctx context.Context, mem calendar.Membership) error {
	mem.CalendarID = m.cal.ID
	return insertMember(ctx, m.tx, mem)
}

func (m *memberTx) Update(ctx context.Context, mem calendar.Membership) error {
	return affected(m.tx.ExecContext(ctx, `
		update calendar_members
		set is_owner = $3, can_create_events = $4, can_edit_events = $5, color = $6, icon = $7
		where calendar_id = $1 and user_id = $2
	`, m.cal.ID, mem.UserID, mem.IsOwner, mem.CanCreateEvents, mem.CanEditEvents, mem.Color, mem.Icon))
}

func (m *memberTx) Delete(ctx context.Context, userID string) error {
	return affected(m.tx.ExecContext(ctx, `
		delete from calendar_members
		where calendar_id = $1 and user_id = $2
	`, m.cal.ID, userID))
}
