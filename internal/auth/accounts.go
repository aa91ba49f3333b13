package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCodeRequired       = errors.New("two-factor code required")
	ErrInvalidCode        = errors.New("invalid two-factor code")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters without spaces")
	ErrTwoFactorEnabled   = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotSetUp  = errors.New("two-factor authentication has not been set up")
	ErrUserNotFound       = errors.New("user not found")
)

// Accounts handles registration, sessions and two-factor authentication.
type Accounts struct {
	DB        *sqlx.DB
	JWTSecret string
}

// Session is the result of a successful login.
type Session struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// ValidateUsername checks the login handle rules.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if unicode.IsSpace(r) {
			return ErrInvalidUsername
		}
	}
	return nil
}

// Register creates a member account. An empty name defaults to the username.
func (a *Accounts) Register(ctx context.Context, username, name, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if name == "" {
		name = username
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, err
	}

	existing, err := store.GetUserByUsername(ctx, a.DB, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := store.CreateUser(ctx, a.DB, username, name, hash, model.RoleMember)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", "user", user.Username, "id", user.ID)
	return user, nil
}

// Login checks the password and, when enabled, the second factor. code may
// be a TOTP code or the one-time recovery code.
func (a *Accounts) Login(ctx context.Context, username, password, code string) (*Session, error) {
	user, err := store.GetUserByUsername(ctx, a.DB, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		slog.Warn("login failed", "username", username)
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		if err := a.checkSecondFactor(ctx, user, code); err != nil {
			slog.Warn("two-factor check failed", "user", user.Username, "err", err)
			return nil, err
		}
	}

	token, err := GenerateToken(a.JWTSecret, user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", "user", user.Username, "role", user.Role)
	return &Session{Token: token, User: user}, nil
}

func (a *Accounts) checkSecondFactor(ctx context.Context, user *model.User, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCodeRequired
	}
	if ValidateCode(user.TOTPSecret, code) {
		return nil
	}
	if user.RecoveryHash != "" && CheckPassword(user.RecoveryHash, NormalizeRecoveryCode(code)) {
		if err := store.ConsumeRecoveryCode(ctx, a.DB, user.ID); err != nil {
			return err
		}
		slog.Warn("recovery code used", "user", user.Username)
		return nil
	}
	return ErrInvalidCode
}

// Authenticate validates a session token and rejects revoked ones.
func (a *Accounts) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := ValidateToken(a.JWTSecret, token)
	if err != nil {
		return nil, err
	}
	revoked, err := store.IsTokenRevoked(ctx, a.DB, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Logout revokes the session's token.
func (a *Accounts) Logout(ctx context.Context, claims *Claims) error {
	expires := time.Now().Add(TokenExpiry)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := store.RevokeToken(ctx, a.DB, claims.ID, expires); err != nil {
		return err
	}
	slog.Info("user logged out", "user", claims.Username)
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (a *Accounts) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := a.user(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	if err := model.ValidatePassword(next); err != nil {
		return err
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := store.UpdateUserPassword(ctx, a.DB, userID, hash); err != nil {
		return err
	}

	slog.Info("user changed own password", "user", user.Username)
	return nil
}

// SetupTwoFactor generates and stores a pending second factor. It stays
// disabled until VerifyTwoFactor succeeds.
func (a *Accounts) SetupTwoFactor(ctx context.Context, userID int64) (*TwoFactorSetup, error) {
	user, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}

	setup, err := NewTOTP(user.Username)
	if err != nil {
		return nil, err
	}
	recoveryHash, err := HashPassword(setup.RecoveryCode)
	if err != nil {
		return nil, err
	}
	if err := store.SetPendingTwoFactor(ctx, a.DB, userID, setup.Secret, recoveryHash); err != nil {
		return nil, err
	}
	return setup, nil
}

// VerifyTwoFactor enables the pending second factor if code is valid.
func (a *Accounts) VerifyTwoFactor(ctx context.Context, userID int64, code string) error {
	user, err := a.user(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}
	if user.TOTPSecret == "" {
		return ErrTwoFactorNotSetUp
	}
	if !ValidateCode(user.TOTPSecret, code) {
		return ErrInvalidCode
	}
	if err := store.EnableTwoFactor(ctx, a.DB, userID); err != nil {
		return err
	}

	slog.Info("two-factor enabled", "user", user.Username)
	return nil
}

func (a *Accounts) user(ctx context.Context, id int64) (*model.User, error) {
	user, err := store.GetUser(ctx, a.DB, id)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil || user.DeletedAt != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
