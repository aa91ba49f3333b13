package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/messaging"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/profile"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// serviceError maps a service error to a response. Unknown errors are logged
// and reported as "failed to <action>".
func serviceError(w http.ResponseWriter, err error, action string) {
	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		jsonResponse(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrItemNotFound),
		errors.Is(err, messaging.ErrNotFound),
		errors.Is(err, messaging.ErrUserNotFound),
		errors.Is(err, messaging.ErrItemNotFound),
		errors.Is(err, profile.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrForbidden),
		errors.Is(err, ledger.ErrForbidden),
		errors.Is(err, messaging.ErrNotParticipant):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrIllegalTransition):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrSelfRequest),
		errors.Is(err, ledger.ErrEmptyMessage),
		errors.Is(err, ledger.ErrNotOwner),
		errors.Is(err, model.ErrUnknownAction),
		errors.Is(err, messaging.ErrEmptyMessage),
		errors.Is(err, messaging.ErrSelfConversation),
		errors.Is(err, messaging.ErrItemNotShared):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
