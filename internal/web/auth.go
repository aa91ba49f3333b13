package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
)

type loginPage struct {
	PageData
	Username string
	Next     string
	NeedCode bool
}

type registerPage struct {
	PageData
	Username string
	Name     string
}

// LoginPage handles GET /login.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	next := localPath(r.URL.Query().Get("next"), "/")
	if GetWebClaims(r.Context()) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	s.Templates.Render(w, "login.html", &loginPage{PageData: s.page(w, r, "Log in"), Next: next})
}

// LoginSubmit handles POST /login.
func (s *Server) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	data := &loginPage{
		PageData: PageData{Title: "Log in"},
		Username: username,
		Next:     localPath(r.FormValue("next"), "/"),
	}

	if username == "" || password == "" {
		data.Error = "Enter your username and password."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "login.html", data)
		return
	}

	session, err := s.Accounts.Login(r.Context(), username, password, r.FormValue("code"))
	switch {
	case errors.Is(err, auth.ErrCodeRequired):
		data.NeedCode = true
		data.Error = "Enter the code from your authenticator app or your recovery code."
		s.Templates.RenderStatus(w, http.StatusUnauthorized, "login.html", data)
		return
	case errors.Is(err, auth.ErrInvalidCode):
		metrics.IncEvent(metrics.EventLoginFailed)
		data.NeedCode = true
		data.Error = "That code is not valid."
		s.Templates.RenderStatus(w, http.StatusUnauthorized, "login.html", data)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		metrics.IncEvent(metrics.EventLoginFailed)
		data.Error = "Wrong username or password."
		s.Templates.RenderStatus(w, http.StatusUnauthorized, "login.html", data)
		return
	case err != nil:
		slog.Error("login failed", "error", err)
		data.Error = "Could not log you in. Please try again."
		s.Templates.RenderStatus(w, http.StatusInternalServerError, "login.html", data)
		return
	}

	s.setAuthCookie(w, session.Token)
	http.Redirect(w, r, data.Next, http.StatusSeeOther)
}

// RegisterPage handles GET /register.
func (s *Server) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if GetWebClaims(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.Templates.Render(w, "register.html", &registerPage{PageData: s.page(w, r, "Sign up")})
}

// RegisterSubmit handles POST /register. New members are logged in and
// offered two-factor setup.
func (s *Server) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	data := &registerPage{
		PageData: PageData{Title: "Sign up"},
		Username: username,
		Name:     r.FormValue("name"),
	}

	if err := auth.ValidateUsername(username); err != nil {
		data.Error = "Username must be 3 to 32 characters without spaces."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "register.html", data)
		return
	}
	if err := model.ValidatePassword(password); err != nil {
		data.Error = "Password must be 8 to 72 characters long."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "register.html", data)
		return
	}
	if password != r.FormValue("confirm_password") {
		data.Error = "Passwords do not match."
		s.Templates.RenderStatus(w, http.StatusBadRequest, "register.html", data)
		return
	}

	_, err := s.Accounts.Register(r.Context(), username, data.Name, password)
	if errors.Is(err, auth.ErrUsernameTaken) {
		data.Error = "That username is already taken."
		s.Templates.RenderStatus(w, http.StatusConflict, "register.html", data)
		return
	}
	if err != nil {
		slog.Error("registration failed", "error", err)
		data.Error = "Could not create your account. Please try again."
		s.Templates.RenderStatus(w, http.StatusInternalServerError, "register.html", data)
		return
	}
	metrics.IncEvent(metrics.EventUserRegistered)

	session, err := s.Accounts.Login(r.Context(), username, password, "")
	if err != nil {
		redirectWithFlash(w, r, "/login", flashSuccess, "Account created. Please log in.")
		return
	}
	s.setAuthCookie(w, session.Token)
	http.Redirect(w, r, "/setup-2fa", http.StatusSeeOther)
}

// Logout handles POST /logout. The session token is revoked so it cannot be
// reused.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if claims := cookieClaims(w, r, s.Accounts); claims != nil {
		if err := s.Accounts.Logout(r.Context(), claims); err != nil {
			slog.Error("failed to revoke token", "error", err)
		}
	}
	clearAuthCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
