// ABOUTME: User registry and personnel mirror methods on SQLiteStore
// ABOUTME: Backs both local-only accounts and the cached copy of remote personnel

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scpnet/scpnet-client/internal/clearance"
)

// CreateUser inserts a new personnel record.
// Returns ErrDuplicateEmail if the email is already registered.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, name, clearance, super_admin, approved,
			title, department, site, avatar_url, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.Name,
		int(user.Clearance),
		boolInt(user.SuperAdmin),
		boolInt(user.Approved),
		nullString(user.Title),
		nullString(user.Department),
		nullString(user.Site),
		nullString(user.AvatarURL),
		nullString(user.PasswordHash),
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "email", user.Email)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email (case-insensitive).
// Returns ErrNotFound if no account exists for the email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, userSelect+` WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

// UpdateUser updates an existing user record.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET email = ?, name = ?, clearance = ?, super_admin = ?, approved = ?,
			title = ?, department = ?, site = ?, avatar_url = ?, password_hash = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		strings.ToLower(user.Email),
		user.Name,
		int(user.Clearance),
		boolInt(user.SuperAdmin),
		boolInt(user.Approved),
		nullString(user.Title),
		nullString(user.Department),
		nullString(user.Site),
		nullString(user.AvatarURL),
		nullString(user.PasswordHash),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated user", "id", user.ID)
	return nil
}

// ListUsers returns all personnel ordered by clearance (highest first),
// then name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, userSelect+` ORDER BY clearance DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

// DeleteUser removes a personnel record ("termination").
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted user", "id", id)
	return nil
}

// ReplaceUsers replaces the mirrored personnel set with the given remote
// result set. Local-registry rows (those carrying a password hash) are kept
// so a degraded login remains possible.
func (s *SQLiteStore) ReplaceUsers(ctx context.Context, users []*User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE password_hash IS NULL`); err != nil {
		return fmt.Errorf("clearing mirrored users: %w", err)
	}

	insert := `
		INSERT OR REPLACE INTO users (id, email, name, clearance, super_admin, approved,
			title, department, site, avatar_url, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`
	for _, user := range users {
		_, err := tx.ExecContext(ctx, insert,
			user.ID,
			strings.ToLower(user.Email),
			user.Name,
			int(user.Clearance),
			boolInt(user.SuperAdmin),
			boolInt(user.Approved),
			nullString(user.Title),
			nullString(user.Department),
			nullString(user.Site),
			nullString(user.AvatarURL),
			user.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting mirrored user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user mirror: %w", err)
	}

	s.logger.Debug("replaced user mirror", "count", len(users))
	return nil
}

const userSelect = `
	SELECT id, email, name, clearance, super_admin, approved,
		title, department, site, avatar_url, password_hash, created_at
	FROM users
`

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row *sql.Row) (*User, error) {
	user, err := scanUserFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return user, err
}

func scanUserRows(rows *sql.Rows) (*User, error) {
	user, err := scanUserFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning user row: %w", err)
	}
	return user, nil
}

func scanUserFrom(r rowScanner) (*User, error) {
	var user User
	var level, superAdmin, approved int
	var title, department, site, avatarURL, passwordHash sql.NullString
	var createdAt string

	err := r.Scan(&user.ID, &user.Email, &user.Name, &level, &superAdmin, &approved,
		&title, &department, &site, &avatarURL, &passwordHash, &createdAt)
	if err != nil {
		return nil, err
	}

	user.Clearance = clearance.Level(level)
	user.SuperAdmin = superAdmin != 0
	user.Approved = approved != 0
	user.Title = title.String
	user.Department = department.String
	user.Site = site.String
	user.AvatarURL = avatarURL.String
	user.PasswordHash = passwordHash.String
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &user, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
