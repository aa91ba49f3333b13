package api

import (
	"errors"
	"net/http"

	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	Accounts *auth.Accounts
}

type registerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := auth.ValidateUsername(req.Username); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Accounts.Register(r.Context(), req.Username, req.Name, req.Password)
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		jsonError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, auth.ErrInvalidUsername):
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		serviceError(w, err, "register")
		return
	}

	metrics.IncEvent(metrics.EventUserRegistered)
	jsonResponse(w, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	session, err := h.Accounts.Login(r.Context(), req.Username, req.Password, req.Code)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrCodeRequired),
		errors.Is(err, auth.ErrInvalidCode):
		metrics.IncEvent(metrics.EventLoginFailed)
		jsonError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		serviceError(w, err, "log in")
		return
	}

	jsonResponse(w, http.StatusOK, session)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.Accounts.Logout(r.Context(), claims); err != nil {
		serviceError(w, err, "log out")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.Accounts.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	case errors.Is(err, auth.ErrUserNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		serviceError(w, err, "update password")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// SetupTwoFactor handles POST /api/auth/2fa/setup.
func (h *AuthHandler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	setup, err := h.Accounts.SetupTwoFactor(r.Context(), claims.UserID)
	switch {
	case errors.Is(err, auth.ErrTwoFactorEnabled):
		jsonError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, auth.ErrUserNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		serviceError(w, err, "set up two-factor authentication")
		return
	}

	jsonResponse(w, http.StatusOK, setup)
}

// VerifyTwoFactor handles POST /api/auth/2fa/verify.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.Accounts.VerifyTwoFactor(r.Context(), claims.UserID, req.Code)
	switch {
	case errors.Is(err, auth.ErrInvalidCode), errors.Is(err, auth.ErrTwoFactorNotSetUp):
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, auth.ErrTwoFactorEnabled):
		jsonError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		serviceError(w, err, "verify two-factor code")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "two-factor authentication enabled"})
}
