package pg

import (
	"context"
	"database/sql"

	"xitem.org/internal/note"
)

const noteColumns = `note_id, calendar_id, owner_id, title, content, color, pinned, creation_date, modification_date`

type noteStore struct{ db *sql.DB }

func scanNote(row rowScanner) (*note.Note, error) {
	var (
		n     note.Note
		owner sql.NullString
	)
	if err := row.Scan(&n.ID, &n.CalendarID, &owner, &n.Title, &n.Content, &n.Color, &n.Pinned, &n.CreatedAt, &n.ModifiedAt); err != nil {
		return nil, translate(err)
	}
	n.OwnerID = owner.String
	return &n, nil
}

func (st noteStore) Create(ctx context.Context, n *note.Note) error {
	if st.db == nil {
		return errNoDB
	}
	_, err := st.db.ExecContext(ctx, `
		insert into notes (`+noteColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.CalendarID, nullIfEmpty(n.OwnerID), n.Title, n.Content, n.Color, n.Pinned, n.CreatedAt, n.ModifiedAt)
	return translate(err)
}

func (st noteStore) Get(ctx context.Context, calendarID, noteID string) (*note.Note, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return scanNote(st.db.QueryRowContext(ctx, `
		select `+noteColumns+`
		from notes
		where calendar_id = $1 and note_id = $2
	`, calendarID, noteID))
}

func (st noteStore) List(ctx context.Context, calendarID string) ([]note.Note, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	rows, err := st.db.QueryContext(ctx, `
		select `+noteColumns+`
		from notes
		where calendar_id = $1
		order by pinned desc, creation_date, note_id
	`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []note.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (st noteStore) Update(ctx context.Context, n *note.Note) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `
		update notes
		set title = $3, content = $4, color = $5, pinned = $6, modification_date = $7
		where calendar_id = $1 and note_id = $2
	`, n.CalendarID, n.ID, n.Title, n.Content, n.Color, n.Pinned, n.ModifiedAt))
}

func (st noteStore) Delete(ctx context.Context, calendarID, noteID string) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `
		delete from notes
		where calendar_id = $1 and note_id = $2
	`, calendarID, noteID))
}
