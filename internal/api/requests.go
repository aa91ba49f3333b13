package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
)

// RequestsHandler handles borrow request endpoints.
type RequestsHandler struct {
	Catalog *catalog.Catalog
	Ledger  *ledger.Ledger
}

type createRequestRequest struct {
	ItemID  int64  `json:"item_id"`
	Message string `json:"message"`
}

type requestsResponse struct {
	Incoming []model.Request `json:"incoming"`
	Outgoing []model.Request `json:"outgoing"`
	Pending  int             `json:"pending"`
}

var actionEvents = map[string]string{
	model.ActionAccept:   metrics.EventRequestAccepted,
	model.ActionDecline:  metrics.EventRequestDeclined,
	model.ActionComplete: metrics.EventRequestComplete,
}

// Create handles POST /api/requests. The recipient is the item's owner.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Catalog.GetByID(r.Context(), req.ItemID)
	if err != nil {
		serviceError(w, err, "create request")
		return
	}

	created, err := h.Ledger.Create(r.Context(), claims.UserID, item.Owner.ID, item.ID, req.Message)
	if err != nil {
		serviceError(w, err, "create request")
		return
	}

	metrics.IncEvent(metrics.EventRequestCreated)
	slog.Info("request created", "request", created.ID, "item", item.ID, "user", claims.Username)
	jsonResponse(w, http.StatusCreated, created)
}

// List handles GET /api/requests.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	reqs, err := h.Ledger.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err, "list requests")
		return
	}

	jsonResponse(w, http.StatusOK, requestsResponse{
		Incoming: reqs.Incoming(),
		Outgoing: reqs.Outgoing(),
		Pending:  reqs.Pending(),
	})
}

// Act handles POST /api/requests/{id}/{action}.
func (h *RequestsHandler) Act(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	action := r.PathValue("action")
	if _, ok := actionEvents[action]; !ok {
		jsonError(w, http.StatusBadRequest, model.ErrUnknownAction.Error())
		return
	}

	updated, err := h.Ledger.Act(r.Context(), claims.UserID, id, action)
	if err != nil {
		serviceError(w, err, "update request")
		return
	}

	metrics.IncEvent(actionEvents[action])
	slog.Info("request updated", "request", id, "status", updated.Status, "user", claims.Username)
	jsonResponse(w, http.StatusOK, updated)
}
