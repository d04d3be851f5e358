package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/erazemk/oder/internal/model"
)

var (
	// ErrUserNotFound is returned by updates of a missing or deleted account.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when an active account already has the name.
	ErrUsernameTaken = errors.New("username already exists")
)

const userColumns = `id, username, password_hash, role, created_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new account. Names of deleted accounts may be reused.
func CreateUser(ctx context.Context, db DBTX, username, passwordHash, role string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role,
	)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, or nil if there is none.
func GetUser(ctx context.Context, db DBTX, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the account with the given name. The active
// account wins over deleted ones; a deleted one is still returned so login
// can tell it apart from an unknown name.
func GetUserByUsername(ctx context.Context, db DBTX, username string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?
		 ORDER BY deleted_at IS NOT NULL, id DESC LIMIT 1`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db DBTX) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// updateActiveUser runs an UPDATE on one active account and maps "no rows"
// to ErrUserNotFound.
func updateActiveUser(ctx context.Context, db DBTX, what, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUser changes a user's role.
func UpdateUser(ctx context.Context, db DBTX, id int64, role string) error {
	return updateActiveUser(ctx, db, "updating user",
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`, role, id)
}

// UpdateUserPassword replaces a user's password hash.
func UpdateUserPassword(ctx context.Context, db DBTX, id int64, passwordHash string) error {
	return updateActiveUser(ctx, db, "updating user password",
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`, passwordHash, id)
}

// DeleteUser soft-deletes a user. Orders keep no reference to accounts, so
// nothing else changes.
func DeleteUser(ctx context.Context, db DBTX, id int64) error {
	return updateActiveUser(ctx, db, "deleting user",
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
}
