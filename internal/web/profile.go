package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/messaging"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/profile"
)

type profilePage struct {
	PageData
	Profile  *profile.Profile
	Tab      string
	Inbox    *messaging.Inbox
	ActiveID int64
}

type userPage struct {
	PageData
	Profile *profile.Public
	IsSelf  bool
}

var requestActionNotices = map[string]string{
	model.ActionAccept:   "Request accepted.",
	model.ActionDecline:  "Request declined.",
	model.ActionComplete: "Request marked as completed.",
}

var requestActionEvents = map[string]string{
	model.ActionAccept:   metrics.EventRequestAccepted,
	model.ActionDecline:  metrics.EventRequestDeclined,
	model.ActionComplete: metrics.EventRequestComplete,
}

// ProfilePage handles GET /profile?tab=items|requests|messages. On the
// messages tab, c selects the displayed conversation.
func (s *Server) ProfilePage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	tab := profile.ParseTab(r.URL.Query().Get("tab"))

	p, err := s.Profiles.Load(r.Context(), claims.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		clearAuthCookie(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.serverError(w, r, "load profile", err)
		return
	}

	data := &profilePage{PageData: s.page(w, r, p.User.Name), Profile: p, Tab: tab}

	if tab == profile.TabMessages {
		inbox := messaging.NewInbox(s.Messaging)
		if err := inbox.Load(r.Context(), claims.UserID); err != nil {
			s.serverError(w, r, "load conversations", err)
			return
		}
		if c, err := strconv.ParseInt(r.URL.Query().Get("c"), 10, 64); err == nil {
			inbox.Select(c)
		}
		data.Inbox = inbox
		if active := inbox.Active(); active != nil {
			data.ActiveID = active.ID
		}
	}

	s.Templates.Render(w, "profile.html", data)
}

// ConversationSendSubmit handles POST /profile/conversations/{id}.
func (s *Server) ConversationSendSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "Conversation")
		return
	}
	back := fmt.Sprintf("/profile?tab=%s&c=%d", profile.TabMessages, id)

	inbox := messaging.NewInbox(s.Messaging)
	if err := inbox.Load(r.Context(), claims.UserID); err != nil {
		s.serverError(w, r, "load conversations", err)
		return
	}
	if !inbox.Select(id) {
		s.notFound(w, r, "Conversation")
		return
	}

	_, err = inbox.Send(r.Context(), r.FormValue("message"))
	switch {
	case errors.Is(err, messaging.ErrEmptyMessage):
		redirectWithFlash(w, r, back, flashError, "Message cannot be empty.")
		return
	case err != nil:
		slog.Error("failed to send message", "error", err)
		redirectWithFlash(w, r, back, flashError, "Could not send your message. Please try again.")
		return
	}

	metrics.IncEvent(metrics.EventMessageSent)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// RequestActionSubmit handles POST /requests/{id}/{action}.
func (s *Server) RequestActionSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	back := "/profile?tab=" + profile.TabRequests

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "Request")
		return
	}
	action := r.PathValue("action")
	notice, ok := requestActionNotices[action]
	if !ok {
		s.notFound(w, r, "Page")
		return
	}

	_, err = s.Ledger.Act(r.Context(), claims.UserID, id, action)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		s.notFound(w, r, "Request")
		return
	case errors.Is(err, ledger.ErrForbidden):
		redirectWithFlash(w, r, back, flashError, "You cannot change this request.")
		return
	case errors.Is(err, model.ErrIllegalTransition):
		redirectWithFlash(w, r, back, flashError, "This request has already been answered.")
		return
	case err != nil:
		slog.Error("failed to update request", "error", err)
		redirectWithFlash(w, r, back, flashError, "Could not update the request. Please try again.")
		return
	}

	metrics.IncEvent(requestActionEvents[action])
	slog.Info("request updated", "user", claims.Username, "request", id, "action", action)
	redirectWithFlash(w, r, back, flashSuccess, notice)
}

// UserPage handles GET /users/{id}.
func (s *Server) UserPage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "User")
		return
	}

	p, err := s.Profiles.LoadPublic(r.Context(), id)
	if errors.Is(err, profile.ErrNotFound) {
		s.notFound(w, r, "User")
		return
	}
	if err != nil {
		s.serverError(w, r, "load user", err)
		return
	}

	s.Templates.Render(w, "user.html", &userPage{
		PageData: s.page(w, r, p.User.Name),
		Profile:  p,
		IsSelf:   claims != nil && claims.UserID == id,
	})
}

// UserMessageSubmit handles POST /users/{id}/message, a conversation that is
// not about any item.
func (s *Server) UserMessageSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "User")
		return
	}
	s.startConversation(w, r, id, nil, fmt.Sprintf("/users/%d", id))
}

// startConversation opens the conversation with otherID and posts the message
// form value to it, then shows it in the inbox.
func (s *Server) startConversation(w http.ResponseWriter, r *http.Request, otherID int64, itemID *int64, back string) {
	claims := GetWebClaims(r.Context())
	content := trimmedMessage(r)
	if content == "" {
		redirectWithFlash(w, r, back, flashError, "Message cannot be empty.")
		return
	}

	conv, err := s.Messaging.Start(r.Context(), claims.UserID, otherID, itemID)
	switch {
	case errors.Is(err, messaging.ErrSelfConversation):
		redirectWithFlash(w, r, back, flashError, "You cannot message yourself.")
		return
	case errors.Is(err, messaging.ErrUserNotFound):
		s.notFound(w, r, "User")
		return
	case errors.Is(err, messaging.ErrItemNotFound):
		s.notFound(w, r, "Item")
		return
	case errors.Is(err, messaging.ErrItemNotShared):
		redirectWithFlash(w, r, back, flashError, "That item is not part of this conversation.")
		return
	case err != nil:
		slog.Error("failed to start conversation", "error", err)
		redirectWithFlash(w, r, back, flashError, "Could not send your message. Please try again.")
		return
	}

	if _, err := s.Messaging.Append(r.Context(), conv.ID, claims.UserID, content); err != nil {
		slog.Error("failed to send message", "error", err)
		redirectWithFlash(w, r, back, flashError, "Could not send your message. Please try again.")
		return
	}

	metrics.IncEvent(metrics.EventMessageSent)
	http.Redirect(w, r, fmt.Sprintf("/profile?tab=%s&c=%d", profile.TabMessages, conv.ID), http.StatusSeeOther)
}

// ConversationSocket handles GET /ws/conversations/{id}. Only participants
// may subscribe.
func (s *Server) ConversationSocket(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	_, err = s.Messaging.Get(r.Context(), id, claims.UserID)
	switch {
	case errors.Is(err, messaging.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, messaging.ErrNotParticipant):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case err != nil:
		slog.Error("failed to get conversation", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.Hub.Serve(w, r, id)
}
