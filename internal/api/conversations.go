package api

import (
	"net/http"

	"github.com/erazemk/sosed/internal/messaging"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
)

// ConversationsHandler handles conversation endpoints.
type ConversationsHandler struct {
	Messaging *messaging.Service
}

type startConversationRequest struct {
	UserID int64  `json:"user_id"`
	ItemID *int64 `json:"item_id"`
}

type appendMessageRequest struct {
	Content string `json:"content"`
}

// List handles GET /api/conversations.
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	convs, err := h.Messaging.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err, "list conversations")
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	jsonResponse(w, http.StatusOK, convs)
}

// Start handles POST /api/conversations. An existing conversation between
// the same users about the same item is returned instead of a new one.
func (h *ConversationsHandler) Start(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req startConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.Messaging.Start(r.Context(), claims.UserID, req.UserID, req.ItemID)
	if err != nil {
		serviceError(w, err, "start conversation")
		return
	}
	jsonResponse(w, http.StatusOK, conv)
}

// Append handles POST /api/conversations/{id}/messages.
func (h *ConversationsHandler) Append(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req appendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.Messaging.Append(r.Context(), id, claims.UserID, req.Content)
	if err != nil {
		serviceError(w, err, "send message")
		return
	}

	metrics.IncEvent(metrics.EventMessageSent)
	jsonResponse(w, http.StatusCreated, msg)
}
