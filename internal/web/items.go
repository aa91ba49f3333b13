package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/imaging"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/store"
)

// itemForm is the submission form as entered, kept for re-rendering.
type itemForm struct {
	Title          string
	Description    string
	Category       string
	Location       string
	AvailableUntil string
	Errors         map[string]string
}

type itemFormPage struct {
	PageData
	Form itemForm
}

type itemDetailPage struct {
	PageData
	Item       *model.Item
	Owner      *model.User
	IsOwner    bool
	CanRequest bool
}

// ItemNewPage handles GET /items/new.
func (s *Server) ItemNewPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "item_new.html", &itemFormPage{
		PageData: s.page(w, r, "Share an item"),
		Form:     itemForm{Errors: map[string]string{}},
	})
}

// ItemCreateSubmit handles POST /items/new. Invalid submissions re-render the
// form with the entered values and a message per field.
func (s *Server) ItemCreateSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	form := itemForm{
		Title:          r.FormValue("title"),
		Description:    r.FormValue("description"),
		Category:       r.FormValue("category"),
		Location:       r.FormValue("location"),
		AvailableUntil: r.FormValue("available_until"),
		Errors:         map[string]string{},
	}
	draft := catalog.Draft{
		Title:       form.Title,
		Description: form.Description,
		Category:    form.Category,
		Location:    form.Location,
	}

	until, err := catalog.ParseAvailableUntil(form.AvailableUntil, time.Local)
	if err != nil {
		form.Errors["available_until"] = "Choose a valid date"
	}
	draft.AvailableUntil = until

	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		img, err := imaging.Process(file)
		if err != nil {
			form.Errors["image"] = "Upload a JPEG or PNG image up to 10 MB"
		}
		draft.Image = img
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		form.Errors["image"] = "Could not read the uploaded image"
	}

	var id int64
	if len(form.Errors) > 0 {
		err = draft.Validate(time.Now())
	} else {
		id, err = s.Catalog.Submit(r.Context(), claims.UserID, draft)
	}

	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		for field, msg := range verr.Fields {
			if _, ok := form.Errors[field]; !ok {
				form.Errors[field] = msg
			}
		}
	} else if err != nil {
		slog.Error("failed to create item", "error", err)
		page := s.page(w, r, "Share an item")
		page.Error = "Failed to share item. Please try again."
		s.Templates.RenderStatus(w, http.StatusInternalServerError, "item_new.html", &itemFormPage{PageData: page, Form: form})
		return
	}

	if len(form.Errors) > 0 {
		s.Templates.RenderStatus(w, http.StatusUnprocessableEntity, "item_new.html", &itemFormPage{
			PageData: s.page(w, r, "Share an item"),
			Form:     form,
		})
		return
	}

	metrics.IncEvent(metrics.EventItemCreated)
	slog.Info("item created", "user", claims.Username, "item", id)
	redirectWithFlash(w, r, fmt.Sprintf("/items/%d", id), flashSuccess, "Item shared successfully!")
}

// ItemDetailPage handles GET /items/{id}. Archived items are shown to their
// owner only.
func (s *Server) ItemDetailPage(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "Item")
		return
	}

	viewerID, viewerRole := webViewer(claims)
	item, err := s.Catalog.Visible(r.Context(), id, viewerID, viewerRole)
	if errors.Is(err, catalog.ErrNotFound) {
		s.notFound(w, r, "Item")
		return
	}
	if err != nil {
		s.serverError(w, r, "get item", err)
		return
	}

	isOwner := viewerID != 0 && viewerID == item.Owner.ID

	owner, err := store.GetUser(r.Context(), s.DB, item.Owner.ID)
	if err != nil {
		s.serverError(w, r, "get item owner", err)
		return
	}

	s.Templates.Render(w, "item_detail.html", &itemDetailPage{
		PageData:   s.page(w, r, item.Title),
		Item:       item,
		Owner:      owner,
		IsOwner:    isOwner,
		CanRequest: claims != nil && !isOwner && !item.IsArchived,
	})
}

// ItemRequestSubmit handles POST /items/{id}/request.
func (s *Server) ItemRequestSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	item, ok := s.formItem(w, r)
	if !ok {
		return
	}
	back := fmt.Sprintf("/items/%d", item.ID)

	req, err := s.Ledger.Create(r.Context(), claims.UserID, item.Owner.ID, item.ID, r.FormValue("message"))
	switch {
	case errors.Is(err, ledger.ErrEmptyMessage):
		redirectWithFlash(w, r, back, flashError, "Write a short message with your request.")
		return
	case errors.Is(err, ledger.ErrSelfRequest):
		redirectWithFlash(w, r, back, flashError, "You cannot request your own item.")
		return
	case errors.Is(err, ledger.ErrItemNotFound), errors.Is(err, ledger.ErrNotOwner):
		redirectWithFlash(w, r, back, flashError, "This item is no longer available.")
		return
	case err != nil:
		slog.Error("failed to create request", "error", err)
		redirectWithFlash(w, r, back, flashError, "Could not send your request. Please try again.")
		return
	}

	metrics.IncEvent(metrics.EventRequestCreated)
	slog.Info("request created", "user", claims.Username, "item", item.ID, "request", req.ID)
	redirectWithFlash(w, r, back, flashSuccess, "Request sent to "+item.Owner.Name+".")
}

// ItemMessageSubmit handles POST /items/{id}/message. It opens (or reuses)
// the conversation with the owner about the item.
func (s *Server) ItemMessageSubmit(w http.ResponseWriter, r *http.Request) {
	item, ok := s.formItem(w, r)
	if !ok {
		return
	}
	itemID := item.ID
	s.startConversation(w, r, item.Owner.ID, &itemID, fmt.Sprintf("/items/%d", item.ID))
}

// ItemArchiveSubmit handles POST /items/{id}/archive. The archived form value
// selects archiving or restoring.
func (s *Server) ItemArchiveSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "Item")
		return
	}
	archived := r.FormValue("archived") == "true"
	back := localPath(r.FormValue("next"), fmt.Sprintf("/items/%d", id))

	err = s.Catalog.SetArchived(r.Context(), claims.UserID, claims.Role, id, archived)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.notFound(w, r, "Item")
		return
	case errors.Is(err, catalog.ErrForbidden):
		redirectWithFlash(w, r, back, flashError, "Only the owner can change this item.")
		return
	case err != nil:
		slog.Error("failed to archive item", "error", err)
		redirectWithFlash(w, r, back, flashError, "Could not update the item. Please try again.")
		return
	}

	if archived {
		metrics.IncEvent(metrics.EventItemArchived)
		slog.Info("item archived", "user", claims.Username, "item", id)
		redirectWithFlash(w, r, back, flashSuccess, "Item archived.")
		return
	}
	slog.Info("item restored", "user", claims.Username, "item", id)
	redirectWithFlash(w, r, back, flashSuccess, "Item restored.")
}

// ItemImageSubmit handles POST /items/{id}/image.
func (s *Server) ItemImageSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "Item")
		return
	}
	back := fmt.Sprintf("/items/%d", id)

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		redirectWithFlash(w, r, back, flashError, "The image is too large.")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		redirectWithFlash(w, r, back, flashError, "Choose an image to upload.")
		return
	}
	defer file.Close()

	// Process the image: validate format by sniffing bytes, downscale, compress.
	result, err := imaging.Process(file)
	if err != nil {
		redirectWithFlash(w, r, back, flashError, "Upload a JPEG or PNG image up to 10 MB.")
		return
	}

	err = s.Catalog.SetImage(r.Context(), claims.UserID, id, result.Data, result.MIME)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.notFound(w, r, "Item")
		return
	case errors.Is(err, catalog.ErrForbidden):
		redirectWithFlash(w, r, back, flashError, "Only the owner can change this item.")
		return
	case err != nil:
		slog.Error("failed to save image", "error", err)
		redirectWithFlash(w, r, back, flashError, "Could not save the image. Please try again.")
		return
	}

	slog.Info("item image uploaded", "user", claims.Username, "item", id)
	redirectWithFlash(w, r, back, flashSuccess, "Photo updated.")
}

// formItem loads the listed item named by the {id} path value, rendering the
// not-found page when there is none.
func (s *Server) formItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.notFound(w, r, "Item")
		return nil, false
	}

	item, err := s.Catalog.GetByID(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) || (err == nil && item.IsArchived) {
		s.notFound(w, r, "Item")
		return nil, false
	}
	if err != nil {
		s.serverError(w, r, "get item", err)
		return nil, false
	}
	return item, true
}

// trimmedMessage returns the message form value without surrounding space.
func trimmedMessage(r *http.Request) string {
	return strings.TrimSpace(r.FormValue("message"))
}
