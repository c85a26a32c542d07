package pg

import (
	"context"
	"database/sql"

	"xitem.org/internal/voting"
)

const votingColumns = `v.voting_id, v.calendar_id, v.owner_id, v.title, v.abstention_allowed, v.multiple_choice, v.creation_date`

type votingStore struct{ db *sql.DB }

func (st votingStore) Create(ctx context.Context, v *voting.Voting) (err error) {
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
		insert into votings (voting_id, calendar_id, owner_id, title, abstention_allowed, multiple_choice, creation_date)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.CalendarID, nullIfEmpty(v.OwnerID), v.Title, v.AbstentionAllowed, v.MultipleChoice, v.CreatedAt); err != nil {
		return translate(err)
	}
	for i, c := range v.Choices {
		var date sql.NullTime
		if c.Date != nil {
			date = sql.NullTime{Time: *c.Date, Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			insert into voting_choices (choice_id, voting_id, position, choice_date, comment)
			values ($1, $2, $3, $4, $5)
		`, c.ID, v.ID, i, date, c.Comment); err != nil {
			return translate(err)
		}
	}
	return tx.Commit()
}

func (st votingStore) Get(ctx context.Context, calendarID, votingID string) (*voting.Voting, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	list, err := loadVotings(ctx, st.db, `v.calendar_id = $1 and v.voting_id = $2`, calendarID, votingID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, voting.ErrNotFound
	}
	return &list[0], nil
}

func (st votingStore) List(ctx context.Context, calendarID string) ([]voting.Voting, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return loadVotings(ctx, st.db, `v.calendar_id = $1`, calendarID)
}

func (st votingStore) Delete(ctx context.Context, calendarID, votingID string) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `
		delete from votings
		where calendar_id = $1 and voting_id = $2
	`, calendarID, votingID))
}

// Vote locks the voting row so the check and the insert see no concurrent
// vote. The (choice_id, user_id) key rejects what slips past check.
func (st votingStore) Vote(ctx context.Context, calendarID, votingID, userID string, choiceIDs []string, check func(*voting.Voting) error) (err error) {
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

	var id string
	if err = tx.QueryRowContext(ctx, `
		select voting_id
		from votings
		where calendar_id = $1 and voting_id = $2
		for update
	`, calendarID, votingID).Scan(&id); err != nil {
		return translate(err)
	}
	list, err := loadVotings(ctx, tx, `v.voting_id = $1`, votingID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return voting.ErrNotFound
	}
	v := &list[0]
	if err = check(v); err != nil {
		return err
	}
	if v.Voted(userID) {
		return voting.ErrConflict
	}
	for _, choiceID := range choiceIDs {
		if _, ok := v.Choice(choiceID); !ok {
			return voting.ErrNotFound
		}
		if _, err = tx.ExecContext(ctx, `
			insert into voting_votes (choice_id, user_id)
			values ($1, $2)
		`, choiceID, userID); err != nil {
			return translate(err)
		}
	}
	return tx.Commit()
}

// loadVotings reads votings matching filter with their choices and votes in
// three queries. filter is written against alias v of votings.
func loadVotings(ctx context.Context, q queryer, filter string, args ...any) ([]voting.Voting, error) {
	rows, err := q.QueryContext(ctx, `
		select `+votingColumns+`
		from votings v
		where `+filter+`
		order by v.creation_date, v.voting_id
	`, args...)
	if err != nil {
		return nil, err
	}
	var (
		out   []voting.Voting
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			v     voting.Voting
			owner sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.CalendarID, &owner, &v.Title, &v.AbstentionAllowed, &v.MultipleChoice, &v.CreatedAt); err != nil {
			rows.Close()
			return nil, translate(err)
		}
		v.OwnerID = owner.String
		index[v.ID] = len(out)
		out = append(out, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	rows, err = q.QueryContext(ctx, `
		select c.choice_id, c.voting_id, c.choice_date, c.comment
		from voting_choices c
		join votings v on v.voting_id = c.voting_id
		where `+filter+`
		order by c.voting_id, c.position
	`, args...)
	if err != nil {
		return nil, err
	}
	choiceOf := make(map[string][2]int)
	for rows.Next() {
		var (
			c        voting.Choice
			votingID string
			date     sql.NullTime
		)
		if err := rows.Scan(&c.ID, &votingID, &date, &c.Comment); err != nil {
			rows.Close()
			return nil, translate(err)
		}
		if date.Valid {
			d := date.Time.UTC()
			c.Date = &d
		}
		i, ok := index[votingID]
		if !ok {
			continue
		}
		choiceOf[c.ID] = [2]int{i, len(out[i].Choices)}
		out[i].Choices = append(out[i].Choices, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `
		select l.choice_id, l.user_id
		from voting_votes l
		join voting_choices c on c.choice_id = l.choice_id
		join votings v on v.voting_id = c.voting_id
		where `+filter+`
		order by l.user_id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var choiceID, userID string
		if err := rows.Scan(&choiceID, &userID); err != nil {
			return nil, translate(err)
		}
		at, ok := choiceOf[choiceID]
		if !ok {
			continue
		}
		c := &out[at[0]].Choices[at[1]]
		c.Voters = append(c.Voters, userID)
	}
	return out, rows.Err()
}
