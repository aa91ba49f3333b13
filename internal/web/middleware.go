package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/erazemk/sosed/internal/auth"
)

type webContextKey string

const webClaimsKey webContextKey = "webclaims"

const (
	tokenCookie = "token"
	flashCookie = "flash"
)

const (
	flashSuccess = "ok"
	flashError   = "err"
)

// CookieAuthMiddleware validates the session cookie, checks token revocation,
// and adds claims to context. Anonymous visitors are sent to the login page.
func CookieAuthMiddleware(accounts *auth.Accounts) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := cookieClaims(w, r, accounts)
			if claims == nil {
				http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), webClaimsKey, claims)))
		})
	}
}

// OptionalAuthMiddleware adds claims to context when a valid session cookie
// is present and lets anonymous visitors through.
func OptionalAuthMiddleware(accounts *auth.Accounts) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims := cookieClaims(w, r, accounts); claims != nil {
				r = r.WithContext(context.WithValue(r.Context(), webClaimsKey, claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cookieClaims returns the claims of a valid session cookie. Invalid or
// revoked cookies are cleared.
func cookieClaims(w http.ResponseWriter, r *http.Request, accounts *auth.Accounts) *auth.Claims {
	cookie, err := r.Cookie(tokenCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}

	claims, err := accounts.Authenticate(r.Context(), cookie.Value)
	if err != nil {
		clearAuthCookie(w)
		return nil
	}
	return claims
}

// setAuthCookie stores the session token for the lifetime of the token.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(auth.TokenExpiry.Seconds()),
	})
}

// clearAuthCookie clears the authentication cookie with consistent attributes.
func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// setFlash stores a one-time message shown on the next rendered page.
func setFlash(w http.ResponseWriter, kind, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + ":" + msg),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns and clears the pending flash message.
func popFlash(w http.ResponseWriter, r *http.Request) (kind, msg string) {
	cookie, err := r.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return "", ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})

	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", ""
	}
	kind, msg, _ = strings.Cut(value, ":")
	return kind, msg
}

// redirectWithFlash sets a flash message and redirects to path.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, path, kind, msg string) {
	setFlash(w, kind, msg)
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// localPath returns next if it is a path on this site, otherwise fallback.
func localPath(next, fallback string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}

// GetWebClaims retrieves the JWT claims from web context.
func GetWebClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(webClaimsKey).(*auth.Claims)
	return claims
}
