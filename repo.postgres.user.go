package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const userColumns = `id, firstname, lastname, email, password_hash, COALESCE(verification_code, ''), is_verified, created_at, updated_at`

type postgresUserStorage struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewPostgresUserStorage provides an instance of postgres-based user storage.
func NewPostgresUserStorage(logger *zap.Logger, db *sql.DB) UserStorage {
	return &postgresUserStorage{
		logger: logger,
		db:     db,
	}
}

func scanUser(row rowScanner, user *User) error {
	return row.Scan(
		&user.ID,
		&user.Firstname,
		&user.Lastname,
		&user.Email,
		&user.PasswordHash,
		&user.VerificationCode,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

// Create inserts a new user. An already registered email yields ErrEmailTaken.
func (us *postgresUserStorage) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (firstname, lastname, email, password_hash, verification_code, is_verified)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING ` + userColumns

	row := us.db.QueryRowContext(ctx, query,
		user.Firstname, user.Lastname, user.Email, user.PasswordHash, user.VerificationCode, user.IsVerified)
	err := scanUser(row, user)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByEmail retrieves a user by its lower-cased email.
func (us *postgresUserStorage) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := scanUser(us.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email), &user)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// SetVerificationCode replaces the pending verification code of a user.
func (us *postgresUserStorage) SetVerificationCode(ctx context.Context, id int64, code string) error {
	return us.exec(ctx, "set verification code",
		`UPDATE users SET verification_code = $2, updated_at = now() WHERE id = $1`, id, code)
}

// MarkVerified flags the user email as verified and clears the pending code.
func (us *postgresUserStorage) MarkVerified(ctx context.Context, id int64) error {
	return us.exec(ctx, "mark verified",
		`UPDATE users SET is_verified = TRUE, verification_code = NULL, updated_at = now() WHERE id = $1`, id)
}

func (us *postgresUserStorage) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := us.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
