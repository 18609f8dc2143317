package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering with an email already in use.
var ErrDuplicateEmail = errors.New("email already registered")

// User is an account row. PasswordHash never leaves the storage and auth layers.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Age          int
	Gender       string
	CreatedAt    time.Time
}

// CreateUser inserts a new account and returns its generated ID.
func (db *DB) CreateUser(ctx context.Context, u User) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, age, gender)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, u.Username, u.Email, u.PasswordHash, u.Age, u.Gender)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, ErrDuplicateEmail
		}
		return uuid.Nil, fmt.Errorf("inserting user: %w", err)
	}
	return id, nil
}

// GetUserByEmail looks up an account for login.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return db.getUser(ctx, `WHERE email = $1`, email)
}

// GetUserByID looks up an account by its ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	return db.getUser(ctx, `WHERE id = $1`, id)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := db.Pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, age, gender, created_at
		FROM users `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Age, &u.Gender, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// UpdateProfile updates the mutable profile fields of an account.
func (db *DB) UpdateProfile(ctx context.Context, id string, username string, age int, gender string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users SET username = $2, age = $3, gender = $4
		WHERE id = $1`, id, username, age, gender)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword replaces an account's password hash.
func (db *DB) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
