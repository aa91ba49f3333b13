package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/profile"
	"github.com/erazemk/sosed/internal/store"
)

// UsersHandler handles profile endpoints and admin moderation.
type UsersHandler struct {
	DB       *sqlx.DB
	Profiles *profile.Aggregator
}

type updateProfileRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

type setRatingRequest struct {
	Rating float64 `json:"rating"`
}

type profileResponse struct {
	User            *model.User          `json:"user"`
	ActiveItems     []model.Item         `json:"active_items"`
	ArchivedItems   []model.Item         `json:"archived_items"`
	Incoming        []model.Request      `json:"incoming_requests"`
	Outgoing        []model.Request      `json:"outgoing_requests"`
	PendingRequests int                  `json:"pending_requests"`
	Conversations   []model.Conversation `json:"conversations"`
}

type publicProfileResponse struct {
	User  *model.User  `json:"user"`
	Items []model.Item `json:"items"`
}

// Profile handles GET /api/profile.
func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	p, err := h.Profiles.Load(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err, "load profile")
		return
	}

	convs := p.Conversations
	if convs == nil {
		convs = []model.Conversation{}
	}
	jsonResponse(w, http.StatusOK, profileResponse{
		User:            p.User,
		ActiveItems:     p.Items.Active(),
		ArchivedItems:   p.Items.Archived(),
		Incoming:        p.Requests.Incoming(),
		Outgoing:        p.Requests.Outgoing(),
		PendingRequests: p.Requests.Pending(),
		Conversations:   convs,
	})
}

// UpdateProfile handles PUT /api/profile.
func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	if err := store.UpdateUserProfile(r.Context(), h.DB, claims.UserID, name, strings.TrimSpace(req.Bio)); err != nil {
		serviceError(w, err, "update profile")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		serviceError(w, err, "get user")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	p, err := h.Profiles.LoadPublic(r.Context(), id)
	if err != nil {
		serviceError(w, err, "get user")
		return
	}
	jsonResponse(w, http.StatusOK, publicProfileResponse{User: p.User, Items: p.Items})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		serviceError(w, err, "get user")
		return
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		serviceError(w, err, "delete user")
		return
	}

	slog.Info("user deleted", "user", user.Username, "by", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// SetRating handles PUT /api/users/{id}/rating.
func (h *UsersHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req setRatingRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		serviceError(w, err, "get user")
		return
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := store.SetUserRating(r.Context(), h.DB, id, req.Rating); err != nil {
		serviceError(w, err, "set rating")
		return
	}

	user, err = store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		serviceError(w, err, "get user")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}
