package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/model"
)

const userColumns = `u.id, u.username, u.password_hash, u.name, u.bio, u.rating, u.role,
	u.two_factor_enabled, u.totp_secret, u.recovery_hash, u.created_at, u.deleted_at,
	CASE WHEN u.avatar IS NULL THEN '' ELSE '/users/' || u.id || '/avatar' END AS avatar_url,
	(SELECT COUNT(*) FROM items i WHERE i.owner_id = u.id) AS items_shared`

// CreateUser creates a new user.
func CreateUser(ctx context.Context, db *sqlx.DB, username, name, passwordHash, role string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, name, passwordHash, role, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sqlx.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := db.GetContext(ctx, u, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db *sqlx.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := db.GetContext(ctx, u,
		`SELECT `+userColumns+` FROM users u WHERE u.username = ? AND u.deleted_at IS NULL`, username,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// CountUsers returns the number of active users.
func CountUsers(ctx context.Context, db *sqlx.DB) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// UpdateUserProfile updates a user's display name and bio.
func UpdateUserProfile(ctx context.Context, db *sqlx.DB, id int64, name, bio string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET name = ?, bio = ? WHERE id = ? AND deleted_at IS NULL`,
		name, bio, id,
	)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	return nil
}

// SetUserRating sets a user's rating, clamped to the valid range.
func SetUserRating(ctx context.Context, db *sqlx.DB, id int64, rating float64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET rating = ? WHERE id = ?`, model.ClampRating(rating), id,
	)
	if err != nil {
		return fmt.Errorf("setting user rating: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sqlx.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// SetUserAvatar sets a user's avatar image.
func SetUserAvatar(ctx context.Context, db *sqlx.DB, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET avatar = ?, avatar_mime = ? WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting user avatar: %w", err)
	}
	return nil
}

// GetUserAvatar returns a user's avatar data and MIME type.
func GetUserAvatar(ctx context.Context, db *sqlx.DB, id int64) ([]byte, string, error) {
	var row struct {
		Avatar []byte         `db:"avatar"`
		Mime   sql.NullString `db:"avatar_mime"`
	}
	err := db.GetContext(ctx, &row, `SELECT avatar, avatar_mime FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting user avatar: %w", err)
	}
	return row.Avatar, row.Mime.String, nil
}

// SetPendingTwoFactor stores a TOTP secret and recovery code hash without
// enabling two-factor authentication.
func SetPendingTwoFactor(ctx context.Context, db *sqlx.DB, id int64, secret, recoveryHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET totp_secret = ?, recovery_hash = ?, two_factor_enabled = 0
		 WHERE id = ? AND deleted_at IS NULL`,
		secret, recoveryHash, id,
	)
	if err != nil {
		return fmt.Errorf("storing pending two-factor secret: %w", err)
	}
	return nil
}

// EnableTwoFactor turns on two-factor authentication for a user with a
// pending secret.
func EnableTwoFactor(ctx context.Context, db *sqlx.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = 1 WHERE id = ? AND totp_secret <> ''`, id,
	)
	if err != nil {
		return fmt.Errorf("enabling two-factor: %w", err)
	}
	return nil
}

// ConsumeRecoveryCode clears the recovery code hash after it has been used.
func ConsumeRecoveryCode(ctx context.Context, db *sqlx.DB, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET recovery_hash = '' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("consuming recovery code: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user. Their items drop out of listings.
func DeleteUser(ctx context.Context, db *sqlx.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
