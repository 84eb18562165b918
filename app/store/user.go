package store

import (
	"context"
	"database/sql"

	"github.com/carljohntruya-art/taskflow-auth/app/models"
)

type UsersStore struct {
	db *sql.DB
}

const userColumns = `id, name, email, avatar, role, salt, password_hash,
	is_verified, verification_code, failed_attempts, lock_until, created_at`

func (s *UsersStore) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var code sql.NullString
	var lockUntil sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Avatar,
		&user.Role,
		&user.Salt,
		&user.PasswordHash,
		&user.IsVerified,
		&code,
		&user.FailedAttempts,
		&lockUntil,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if code.Valid {
		user.VerificationCode = code.String
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		user.LockUntil = &t
	}
	return &user, nil
}

func (s *UsersStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *UsersStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *UsersStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *UsersStore) Create(ctx context.Context, user *models.User) error {
	query := `
	INSERT INTO users (name, email, avatar, role, salt, password_hash, is_verified, verification_code)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at
	`

	code := sql.NullString{String: user.VerificationCode, Valid: user.VerificationCode != ""}

	return s.db.QueryRowContext(ctx, query,
		user.Name,
		user.Email,
		user.Avatar,
		user.Role,
		user.Salt,
		user.PasswordHash,
		user.IsVerified,
		code,
	).Scan(&user.ID, &user.CreatedAt)
}

// Update persists every mutable field in one statement, so a concurrent
// reader never observes a partially applied mutation.
func (s *UsersStore) Update(ctx context.Context, user *models.User) error {
	query := `UPDATE users
	SET name = $1, avatar = $2, role = $3, salt = $4, password_hash = $5,
		is_verified = $6, verification_code = $7, failed_attempts = $8, lock_until = $9
	WHERE id = $10`

	code := sql.NullString{String: user.VerificationCode, Valid: user.VerificationCode != ""}
	var lockUntil sql.NullTime
	if user.LockUntil != nil {
		lockUntil = sql.NullTime{Time: *user.LockUntil, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		user.Name,
		user.Avatar,
		user.Role,
		user.Salt,
		user.PasswordHash,
		user.IsVerified,
		code,
		user.FailedAttempts,
		lockUntil,
		user.ID,
	)
	return err
}
