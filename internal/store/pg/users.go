package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lawdesk.org/internal/auth"
)

const userColumns = `id, dni, coalesce(email, ''), password_hash, role, name, surname, phone, specialty, license_number, created_at, updated_at`

type userStore struct{ s *Store }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.DNI, &u.Email, &u.PasswordHash, &u.Role, &u.Name, &u.Surname,
		&u.Phone, &u.Specialty, &u.LicenseNumber, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// userConflict maps a unique violation on users to the matching auth error.
func userConflict(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	if constraint == "users_email_key" {
		return auth.ErrEmailTaken
	}
	return auth.ErrDNITaken
}

func (st userStore) Create(ctx context.Context, u *auth.User) error {
	_, err := st.s.db.ExecContext(ctx, `
		insert into users (id, dni, email, password_hash, role, name, surname, phone, specialty, license_number, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, u.ID, u.DNI, nullIfEmpty(u.Email), u.PasswordHash, u.Role, u.Name, u.Surname,
		u.Phone, u.Specialty, u.LicenseNumber, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return userConflict(err)
	}
	return nil
}

func (st userStore) findOne(ctx context.Context, cond string, arg any) (auth.User, error) {
	u, err := scanUser(st.s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, err
}

func (st userStore) Find(ctx context.Context, id string) (auth.User, error) {
	return st.findOne(ctx, `id = $1`, id)
}

func (st userStore) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	return st.findOne(ctx, `lower(email) = lower($1)`, email)
}

func (st userStore) FindByDNI(ctx context.Context, dni string) (auth.User, error) {
	return st.findOne(ctx, `dni = $1`, dni)
}

// Update writes profile fields. Password, role and created_at are untouched.
func (st userStore) Update(ctx context.Context, u auth.User) error {
	res, err := st.s.db.ExecContext(ctx, `
		update users
		set dni = $2, email = $3, name = $4, surname = $5, phone = $6,
		    specialty = $7, license_number = $8, updated_at = $9
		where id = $1
	`, u.ID, u.DNI, nullIfEmpty(u.Email), u.Name, u.Surname, u.Phone, u.Specialty, u.LicenseNumber, u.UpdatedAt)
	if err != nil {
		return userConflict(err)
	}
	return affected(res, auth.ErrUserNotFound)
}

func (st userStore) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	res, err := st.s.db.ExecContext(ctx, `update users set password_hash = $2, updated_at = $3 where id = $1`,
		userID, passwordHash, at)
	if err != nil {
		return err
	}
	return affected(res, auth.ErrUserNotFound)
}

func (st userStore) Delete(ctx context.Context, id string) error {
	res, err := st.s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("user %s is still referenced: %w", id, err)
		}
		return err
	}
	return affected(res, auth.ErrUserNotFound)
}

func (st userStore) List(ctx context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	var w where
	if q.Role.Valid() {
		w.add("role = %s", q.Role)
	}
	w.search(q.Search, "name", "surname", "email", "dni", "specialty")

	var total int
	if err := st.s.db.QueryRowContext(ctx, `select count(*) from users`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	tail, args := w.window(q.Offset, q.Limit)
	rows, err := st.s.db.QueryContext(ctx,
		`select `+userColumns+` from users`+w.String()+` order by surname, name, id`+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

type refreshStore struct{ s *Store }

func (st refreshStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := st.s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked)
		values ($1, $2, $3, $4, $5, $6)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt, tok.Revoked)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrUserNotFound
	}
	return err
}

func (st refreshStore) Find(ctx context.Context, id string) (auth.RefreshToken, error) {
	var t auth.RefreshToken
	err := st.s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, created_at, revoked
		from refresh_tokens where id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	return t, err
}

func (st refreshStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := st.s.db.ExecContext(ctx, `update refresh_tokens set revoked = true where id = $1`, id)
	if err != nil {
		return err
	}
	return affected(res, auth.ErrNotFound)
}

func (st refreshStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	_, err := st.s.db.ExecContext(ctx, `update refresh_tokens set revoked = true where user_id = $1 and not revoked`, userID)
	return err
}

// resetStore keeps reset tokens in Postgres when Redis is not configured.
type resetStore struct{ s *Store }

func (st resetStore) Save(ctx context.Context, tok auth.ResetToken) error {
	_, err := st.s.db.ExecContext(ctx, `
		insert into password_resets (id, user_id, token_hash, expires_at)
		values ($1, $2, $3, $4)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt)
	return err
}

func (st resetStore) Find(ctx context.Context, id string) (auth.ResetToken, error) {
	var t auth.ResetToken
	err := st.s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at from password_resets where id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ResetToken{}, auth.ErrNotFound
	}
	return t, err
}

// Consume deletes and returns the row in one statement, so concurrent
// consumers cannot both receive it.
func (st resetStore) Consume(ctx context.Context, id string) (auth.ResetToken, error) {
	var t auth.ResetToken
	err := st.s.db.QueryRowContext(ctx, `
		delete from password_resets where id = $1
		returning id, user_id, token_hash, expires_at
	`, id).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ResetToken{}, auth.ErrNotFound
	}
	return t, err
}
