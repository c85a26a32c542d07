package pg

import (
	"context"
	"database/sql"
	"strings"

	"xitem.org/internal/auth"
)

const userColumns = `user_id, name, email, password_hash, active, password_changed_at, role, birthday, registration_date`

type userStore struct{ db *sql.DB }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u        auth.User
		birthday sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Active, &u.PasswordChangedAt, &u.Role, &birthday, &u.RegisteredAt); err != nil {
		return nil, translate(err)
	}
	if birthday.Valid {
		b := birthday.Time
		u.Birthday = &b
	}
	return &u, nil
}

func birthdayArg(u *auth.User) sql.NullTime {
	if u.Birthday == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *u.Birthday, Valid: true}
}

func (st userStore) Create(ctx context.Context, u *auth.User) error {
	if st.db == nil {
		return errNoDB
	}
	_, err := st.db.ExecContext(ctx, `
		insert into users (`+userColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, u.Active, u.PasswordChangedAt, u.Role, birthdayArg(u), u.RegisteredAt)
	return translate(err)
}

func (st userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return scanUser(st.db.QueryRowContext(ctx, `select `+userColumns+` from users where user_id = $1`, id))
}

func (st userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	return scanUser(st.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, strings.ToLower(email)))
}

func (st userStore) CountByRole(ctx context.Context, role string) (int, error) {
	if st.db == nil {
		return 0, errNoDB
	}
	var n int
	if err := st.db.QueryRowContext(ctx, `select count(*) from users where role = $1`, role).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (st userStore) Update(ctx context.Context, u *auth.User) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `
		update users
		set name = $2, email = $3, password_hash = $4, active = $5,
		    password_changed_at = $6, role = $7, birthday = $8
		where user_id = $1
	`, u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, u.Active, u.PasswordChangedAt, u.Role, birthdayArg(u)))
}

// Delete removes the user; memberships cascade and authored events keep a
// null creator.
func (st userStore) Delete(ctx context.Context, id string) error {
	if st.db == nil {
		return errNoDB
	}
	return affected(st.db.ExecContext(ctx, `delete from users where user_id = $1`, id))
}

type roleStore struct{ db *sql.DB }

func (st roleStore) Find(ctx context.Context, name string) (*auth.Role, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	var (
		r    auth.Role
		desc sql.NullString
	)
	err := st.db.QueryRowContext(ctx, `
		select role, full_name, description, hierarchy_level
		from user_roles
		where role = $1
	`, name).Scan(&r.Name, &r.FullName, &desc, &r.Level)
	if err != nil {
		return nil, translate(err)
	}
	r.Description = desc.String
	return &r, nil
}

func (st roleStore) List(ctx context.Context) ([]auth.Role, error) {
	if st.db == nil {
		return nil, errNoDB
	}
	rows, err := st.db.QueryContext(ctx, `
		select role, full_name, description, hierarchy_level
		from user_roles
		order by hierarchy_level desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		var (
			r    auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&r.Name, &r.FullName, &desc, &r.Level); err != nil {
			return nil, err
		}
		r.Description = desc.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
