package pg

import (
	"context"
	"database/sql"

	"xitem.org/internal/event"
)

const eventColumns = `event_id, calendar_id, created_by_user, title, description, begin_date, end_date, daylong, color, creation_date`

type eventStore struct{ db *sql.DB }

func scanEvent(row rowScanner) (*event.Event, error) {
	var (
		e         event.Event
		createdBy sql.NullString
		desc      sql.NullString
	)
	if err := row.Scan(&e.ID, &e.CalendarID, &createdBy, &e.Title, &desc, &e.Begin, &e.End, &e.Daylong, &e.Color, &e.CreatedAt); err != nil {
		return nil, translate(err)
	}
	e.CreatedBy = createdBy.String
	e.Description = desc.String
	return &e, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (st eventStore) Create(ctx context.Context, e *event.Event) error {
	if st.db == nil {
		return errNoDB
	}
	_, err := st.db.ExecContext(ctx, `
		insert into events (`+eventColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.CalendarID, nullIfEmpty(e.CreatedBy), e.Title, e.Description, e.Begin, e.End, e.Daylong, e.Color, e.CreatedAt)
	return translate(err)
}

func (st eventStore) Get(ctx context.Context, calendarID, eventID string) (*event.Event, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return scanEvent(st.db.QueryRowContext(ctx, `
		select `+eventColumns+`
		from events
		where calendar_id = $1 and event_id = $2
	`, calendarID, eventID))
}

// List returns events overlapping w ordered by begin date. Nil bounds are
// passed as null and match everything.
func (st eventStore) List(ctx context.Context, calendarID string, w event.Window) ([]event.Event, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	var begin, end sql.NullTime
	if w.Begin != nil {
		begin = sql.NullTime{Time: *w.Begin, Valid: true}
	}
	if w.End != nil {
		end = sql.NullTime{Time: *w.End, Valid: true}
	}
	rows, err := st.db.QueryContext(ctx, `
		select `+eventColumns+`
		from events
		where calendar_id = $1
		  and ($2::timestamptz is null or end_date >= $2)
		  and ($3::timestamptz is null or begin_date <= $3)
		order by begin_date, event_id
	`, calendarID, begin, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (st eventStore) Update(ctx context.Context, e *event.Event) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `
		update events
		set title = $3, description = $4, begin_date = $5, end_date = $6, daylong = $7, color = $8
		where calendar_id = $1 and event_id = $2
	`, e.CalendarID, e.ID, e.Title, e.Description, e.Begin, e.End, e.Daylong, e.Color))
}

func (st eventStore) Delete(ctx context.Context, calendarID, eventID string) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `
		delete from events
		where calendar_id = $1 and event_id = $2
	`, calendarID, eventID))
}
