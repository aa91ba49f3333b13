package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/messaging"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/profile"
)

// Deps are the services the API is built on.
type Deps struct {
	DB        *sqlx.DB
	Accounts  *auth.Accounts
	Catalog   *catalog.Catalog
	Ledger    *ledger.Ledger
	Messaging *messaging.Service
	Profiles  *profile.Aggregator
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Accounts: d.Accounts}
	itemsHandler := &ItemsHandler{DB: d.DB, Catalog: d.Catalog}
	requestsHandler := &RequestsHandler{Catalog: d.Catalog, Ledger: d.Ledger}
	conversationsHandler := &ConversationsHandler{Messaging: d.Messaging}
	usersHandler := &UsersHandler{DB: d.DB, Profiles: d.Profiles}

	authMW := AuthMiddleware(d.Accounts)
	optionalAuth := OptionalAuthMiddleware(d.Accounts)
	requireAdmin := RequireRole(model.RoleAdmin)

	// Public: accounts and browsing.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/categories", itemsHandler.Categories)
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.HandleFunc("GET /api/items/recent", itemsHandler.Recent)
	mux.Handle("GET /api/items/{id}", optionalAuth(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("GET /api/items/{id}/image", optionalAuth(http.HandlerFunc(itemsHandler.GetImage)))

	// Session.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/2fa/setup", authMW(http.HandlerFunc(authHandler.SetupTwoFactor)))
	mux.Handle("POST /api/auth/2fa/verify", authMW(http.HandlerFunc(authHandler.VerifyTwoFactor)))

	// Items.
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("PUT /api/items/{id}/archive", authMW(http.HandlerFunc(itemsHandler.Archive)))
	mux.Handle("DELETE /api/items/{id}/archive", authMW(http.HandlerFunc(itemsHandler.Unarchive)))
	mux.Handle("PUT /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.UploadImage)))

	// Requests.
	mux.Handle("POST /api/requests", authMW(http.HandlerFunc(requestsHandler.Create)))
	mux.Handle("GET /api/requests", authMW(http.HandlerFunc(requestsHandler.List)))
	mux.Handle("POST /api/requests/{id}/{action}", authMW(http.HandlerFunc(requestsHandler.Act)))

	// Conversations.
	mux.Handle("GET /api/conversations", authMW(http.HandlerFunc(conversationsHandler.List)))
	mux.Handle("POST /api/conversations", authMW(http.HandlerFunc(conversationsHandler.Start)))
	mux.Handle("POST /api/conversations/{id}/messages", authMW(http.HandlerFunc(conversationsHandler.Append)))

	// Profiles.
	mux.Handle("GET /api/profile", authMW(http.HandlerFunc(usersHandler.Profile)))
	mux.Handle("PUT /api/profile", authMW(http.HandlerFunc(usersHandler.UpdateProfile)))
	mux.Handle("GET /api/users/{id}", authMW(http.HandlerFunc(usersHandler.Get)))

	// Moderation (admin only).
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))
	mux.Handle("PUT /api/users/{id}/rating", authMW(requireAdmin(http.HandlerFunc(usersHandler.SetRating))))

	return mux
}
