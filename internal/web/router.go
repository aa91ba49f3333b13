package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/store"
	webembed "github.com/erazemk/sosed/web"
)

// NewRouter creates the web page router with all page routes registered.
// s.Templates is loaded when nil.
func NewRouter(s *Server) (http.Handler, error) {
	if s.Templates == nil {
		templates, err := LoadTemplates()
		if err != nil {
			return nil, err
		}
		s.Templates = templates
	}

	mux := http.NewServeMux()
	cookieAuth := CookieAuthMiddleware(s.Accounts)
	optionalAuth := OptionalAuthMiddleware(s.Accounts)

	// Static assets.
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	// Public routes.
	mux.Handle("GET /login", optionalAuth(http.HandlerFunc(s.LoginPage)))
	mux.HandleFunc("POST /login", s.LoginSubmit)
	mux.Handle("GET /register", optionalAuth(http.HandlerFunc(s.RegisterPage)))
	mux.HandleFunc("POST /register", s.RegisterSubmit)
	mux.HandleFunc("POST /logout", s.Logout)

	mux.Handle("GET /{$}", optionalAuth(http.HandlerFunc(s.Home)))
	mux.Handle("GET /items", optionalAuth(http.HandlerFunc(s.ItemsPage)))
	mux.Handle("GET /items/{id}", optionalAuth(http.HandlerFunc(s.ItemDetailPage)))
	mux.Handle("GET /items/{id}/image", optionalAuth(http.HandlerFunc(s.ItemImageGet)))
	mux.Handle("GET /users/{id}", optionalAuth(http.HandlerFunc(s.UserPage)))
	mux.HandleFunc("GET /users/{id}/avatar", s.AvatarGet)

	// Authenticated routes.
	mux.Handle("GET /items/new", cookieAuth(http.HandlerFunc(s.ItemNewPage)))
	mux.Handle("POST /items/new", cookieAuth(http.HandlerFunc(s.ItemCreateSubmit)))
	mux.Handle("POST /items/{id}/request", cookieAuth(http.HandlerFunc(s.ItemRequestSubmit)))
	mux.Handle("POST /items/{id}/message", cookieAuth(http.HandlerFunc(s.ItemMessageSubmit)))
	mux.Handle("POST /items/{id}/archive", cookieAuth(http.HandlerFunc(s.ItemArchiveSubmit)))
	mux.Handle("POST /items/{id}/image", cookieAuth(http.HandlerFunc(s.ItemImageSubmit)))
	mux.Handle("POST /users/{id}/message", cookieAuth(http.HandlerFunc(s.UserMessageSubmit)))

	mux.Handle("GET /profile", cookieAuth(http.HandlerFunc(s.ProfilePage)))
	mux.Handle("POST /profile/conversations/{id}", cookieAuth(http.HandlerFunc(s.ConversationSendSubmit)))
	mux.Handle("POST /requests/{id}/{action}", cookieAuth(http.HandlerFunc(s.RequestActionSubmit)))
	mux.Handle("GET /ws/conversations/{id}", cookieAuth(http.HandlerFunc(s.ConversationSocket)))

	mux.Handle("GET /settings", cookieAuth(http.HandlerFunc(s.SettingsPage)))
	mux.Handle("POST /settings/profile", cookieAuth(http.HandlerFunc(s.SettingsProfileSubmit)))
	mux.Handle("POST /settings/avatar", cookieAuth(http.HandlerFunc(s.SettingsAvatarSubmit)))
	mux.Handle("POST /settings/password", cookieAuth(http.HandlerFunc(s.SettingsPasswordSubmit)))
	mux.Handle("GET /setup-2fa", cookieAuth(http.HandlerFunc(s.SetupTwoFactorPage)))
	mux.Handle("POST /setup-2fa/start", cookieAuth(http.HandlerFunc(s.SetupTwoFactorStart)))
	mux.Handle("POST /setup-2fa", cookieAuth(http.HandlerFunc(s.SetupTwoFactorSubmit)))

	// Everything else gets the not-found page.
	mux.Handle("/", optionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.notFound(w, r, "Page")
	})))

	return mux, nil
}

// ItemImageGet handles GET /items/{id}/image.
func (s *Server) ItemImageGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	viewerID, viewerRole := webViewer(GetWebClaims(r.Context()))
	item, err := s.Catalog.Visible(r.Context(), id, viewerID, viewerRole)
	if errors.Is(err, catalog.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to get item", "item", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if item.IsArchived {
		w.Header().Set("Cache-Control", "private, no-store")
	}
	s.serveImage(w, r, "item", store.GetItemImage)
}

// webViewer returns the session user's id and role, or zero values when
// anonymous.
func webViewer(claims *auth.Claims) (int64, string) {
	if claims == nil {
		return 0, ""
	}
	return claims.UserID, claims.Role
}

// AvatarGet handles GET /users/{id}/avatar.
func (s *Server) AvatarGet(w http.ResponseWriter, r *http.Request) {
	s.serveImage(w, r, "avatar", store.GetUserAvatar)
}

type imageLoader func(ctx context.Context, db *sqlx.DB, id int64) ([]byte, string, error)

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request, kind string, load imageLoader) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	data, mime, err := load(r.Context(), s.DB, id)
	if err != nil {
		slog.Error("failed to get image", "kind", kind, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write image response", "error", err)
	}
}
