package web

import (
	"encoding/base64"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/imaging"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/store"
)

const qrCodeSize = 200

type settingsPage struct {
	PageData
	Account *model.User
}

type setupTwoFactorPage struct {
	PageData
	Enabled bool
	Pending bool
	Setup   *auth.TwoFactorSetup
	QRCode  template.URL
}

// SettingsPage handles GET /settings.
func (s *Server) SettingsPage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	user, err := store.GetUser(r.Context(), s.DB, claims.UserID)
	if err != nil || user == nil {
		s.serverError(w, r, "get user", err)
		return
	}

	s.Templates.Render(w, "settings.html", &settingsPage{
		PageData: s.page(w, r, "Settings"),
		Account:  user,
	})
}

// SettingsProfileSubmit handles POST /settings/profile (name and bio).
func (s *Server) SettingsProfileSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	name := strings.TrimSpace(r.FormValue("name"))
	bio := strings.TrimSpace(r.FormValue("bio"))

	if name == "" {
		redirectWithFlash(w, r, "/settings", flashError, "Name cannot be empty.")
		return
	}

	if err := store.UpdateUserProfile(r.Context(), s.DB, claims.UserID, name, bio); err != nil {
		slog.Error("failed to update profile", "error", err)
		redirectWithFlash(w, r, "/settings", flashError, "Could not save your profile. Please try again.")
		return
	}

	slog.Info("profile updated", "user", claims.Username)
	redirectWithFlash(w, r, "/settings", flashSuccess, "Profile saved.")
}

// SettingsAvatarSubmit handles POST /settings/avatar.
func (s *Server) SettingsAvatarSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		redirectWithFlash(w, r, "/settings", flashError, "The image is too large.")
		return
	}

	file, _, err := r.FormFile("avatar")
	if err != nil {
		redirectWithFlash(w, r, "/settings", flashError, "Choose an image to upload.")
		return
	}
	defer file.Close()

	result, err := imaging.ProcessAvatar(file)
	if err != nil {
		redirectWithFlash(w, r, "/settings", flashError, "Upload a JPEG or PNG image up to 10 MB.")
		return
	}

	if err := store.SetUserAvatar(r.Context(), s.DB, claims.UserID, result.Data, result.MIME); err != nil {
		slog.Error("failed to save avatar", "error", err)
		redirectWithFlash(w, r, "/settings", flashError, "Could not save the image. Please try again.")
		return
	}

	slog.Info("avatar updated", "user", claims.Username)
	redirectWithFlash(w, r, "/settings", flashSuccess, "Photo updated.")
}

// SettingsPasswordSubmit handles POST /settings/password (change own password).
func (s *Server) SettingsPasswordSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	currentPassword := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")

	if currentPassword == "" || newPassword == "" {
		redirectWithFlash(w, r, "/settings", flashError, "Enter your current and new password.")
		return
	}
	if err := model.ValidatePassword(newPassword); err != nil {
		redirectWithFlash(w, r, "/settings", flashError, "The new password must be 8 to 72 characters long.")
		return
	}

	err := s.Accounts.ChangePassword(r.Context(), claims.UserID, currentPassword, newPassword)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		redirectWithFlash(w, r, "/settings", flashError, "Current password is incorrect.")
		return
	}
	if err != nil {
		slog.Error("failed to change password", "error", err)
		redirectWithFlash(w, r, "/settings", flashError, "Could not change your password. Please try again.")
		return
	}

	redirectWithFlash(w, r, "/settings", flashSuccess, "Password changed.")
}

// SetupTwoFactorPage handles GET /setup-2fa.
func (s *Server) SetupTwoFactorPage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	user, err := store.GetUser(r.Context(), s.DB, claims.UserID)
	if err != nil || user == nil {
		s.serverError(w, r, "get user", err)
		return
	}

	s.Templates.Render(w, "setup_2fa.html", &setupTwoFactorPage{
		PageData: s.page(w, r, "Two-factor authentication"),
		Enabled:  user.TwoFactorEnabled,
		Pending:  !user.TwoFactorEnabled && user.TOTPSecret != "",
	})
}

// SetupTwoFactorStart handles POST /setup-2fa/start. It generates a new
// secret and recovery code and shows them once.
func (s *Server) SetupTwoFactorStart(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	setup, err := s.Accounts.SetupTwoFactor(r.Context(), claims.UserID)
	if errors.Is(err, auth.ErrTwoFactorEnabled) {
		redirectWithFlash(w, r, "/setup-2fa", flashError, "Two-factor authentication is already enabled.")
		return
	}
	if err != nil {
		s.serverError(w, r, "set up two-factor authentication", err)
		return
	}

	data := &setupTwoFactorPage{
		PageData: s.page(w, r, "Two-factor authentication"),
		Pending:  true,
		Setup:    setup,
	}
	if png, err := setup.QRCode(qrCodeSize); err == nil {
		data.QRCode = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	} else {
		slog.Warn("failed to render qr code", "error", err)
	}

	s.Templates.Render(w, "setup_2fa.html", data)
}

// SetupTwoFactorSubmit handles POST /setup-2fa (verify the first code).
func (s *Server) SetupTwoFactorSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	err := s.Accounts.VerifyTwoFactor(r.Context(), claims.UserID, r.FormValue("code"))
	switch {
	case errors.Is(err, auth.ErrInvalidCode):
		redirectWithFlash(w, r, "/setup-2fa", flashError, "Please enter a valid 6-digit code.")
		return
	case errors.Is(err, auth.ErrTwoFactorNotSetUp):
		redirectWithFlash(w, r, "/setup-2fa", flashError, "Start the setup first.")
		return
	case errors.Is(err, auth.ErrTwoFactorEnabled):
		redirectWithFlash(w, r, "/settings", flashSuccess, "Two-factor authentication is already enabled.")
		return
	case err != nil:
		s.serverError(w, r, "verify two-factor code", err)
		return
	}

	redirectWithFlash(w, r, "/settings", flashSuccess, "Two-factor authentication enabled.")
}
