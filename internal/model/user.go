package model

import (
	"fmt"
	"time"
)

// User represents a community member.
type User struct {
	ID               int64      `db:"id" json:"id"`
	Username         string     `db:"username" json:"username"`
	Name             string     `db:"name" json:"name"`
	Bio              string     `db:"bio" json:"bio,omitempty"`
	AvatarURL        string     `db:"avatar_url" json:"avatar_url,omitempty"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	Role             string     `db:"role" json:"role"`
	Rating           float64    `db:"rating" json:"rating"`
	ItemsShared      int        `db:"items_shared" json:"items_shared"`
	TwoFactorEnabled bool       `db:"two_factor_enabled" json:"two_factor_enabled"`
	TOTPSecret       string     `db:"totp_secret" json:"-"`
	RecoveryHash     string     `db:"recovery_hash" json:"-"`
	JoinedAt         time.Time  `db:"created_at" json:"joined_at"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// UserRef is the public summary of a user embedded in items, requests and
// conversations.
type UserRef struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	AvatarURL string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Initial returns the first letter of the name, used as an avatar fallback.
func (u UserRef) Initial() string {
	for _, r := range u.Name {
		return string(r)
	}
	return "?"
}

// Ref returns the public summary of the user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// Roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Rating bounds.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Password length bounds in bytes. bcrypt only hashes the first 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:  2,
		RoleMember: 1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidatePassword checks the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// ClampRating keeps a rating inside the displayable range.
func ClampRating(r float64) float64 {
	if r < MinRating {
		return MinRating
	}
	if r > MaxRating {
		return MaxRating
	}
	return r
}
