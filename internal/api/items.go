package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/imaging"
	"github.com/erazemk/sosed/internal/metrics"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/store"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	DB      *sqlx.DB
	Catalog *catalog.Catalog
}

type createItemRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	Location       string `json:"location"`
	AvailableUntil string `json:"available_until"`
}

// Categories handles GET /api/categories.
func (h *ItemsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, model.Categories)
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.Catalog.Search(r.Context(), q.Get("q"), q.Get("category"))
	if err != nil {
		serviceError(w, err, "list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Recent handles GET /api/items/recent.
func (h *ItemsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.ListRecent(r.Context())
	if err != nil {
		serviceError(w, err, "list recent items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	until, err := catalog.ParseAvailableUntil(req.AvailableUntil, time.Local)
	if err != nil {
		serviceError(w, &catalog.ValidationError{Fields: map[string]string{
			"available_until": "Use the YYYY-MM-DD format",
		}}, "create item")
		return
	}

	id, err := h.Catalog.Submit(r.Context(), claims.UserID, catalog.Draft{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Location:       req.Location,
		AvailableUntil: until,
	})
	if err != nil {
		serviceError(w, err, "create item")
		return
	}
	metrics.IncEvent(metrics.EventItemCreated)

	item, err := h.Catalog.GetByID(r.Context(), id)
	if err != nil {
		serviceError(w, err, "get item")
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	viewerID, viewerRole := viewer(r)
	item, err := h.Catalog.Visible(r.Context(), id, viewerID, viewerRole)
	if err != nil {
		serviceError(w, err, "get item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// viewer returns the caller's id and role, or zero values when anonymous.
func viewer(r *http.Request) (int64, string) {
	claims := GetClaims(r.Context())
	if claims == nil {
		return 0, ""
	}
	return claims.UserID, claims.Role
}

// Archive handles PUT /api/items/{id}/archive.
func (h *ItemsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Unarchive handles DELETE /api/items/{id}/archive.
func (h *ItemsHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *ItemsHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := h.Catalog.SetArchived(r.Context(), claims.UserID, claims.Role, id, archived); err != nil {
		serviceError(w, err, "update item")
		return
	}
	if archived {
		metrics.IncEvent(metrics.EventItemArchived)
		slog.Info("item archived", "item", id, "user", claims.Username)
	}

	item, err := h.Catalog.GetByID(r.Context(), id)
	if err != nil {
		serviceError(w, err, "get item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	// Leave room for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	img, err := imaging.Process(file)
	if errors.Is(err, imaging.ErrTooLarge) {
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid image: "+err.Error())
		return
	}

	if err := h.Catalog.SetImage(r.Context(), claims.UserID, id, img.Data, img.MIME); err != nil {
		serviceError(w, err, "save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	viewerID, viewerRole := viewer(r)
	item, err := h.Catalog.Visible(r.Context(), id, viewerID, viewerRole)
	if err != nil {
		serviceError(w, err, "get image")
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, id)
	if err != nil {
		serviceError(w, err, "get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	cache := "public, max-age=3600"
	if item.IsArchived {
		cache = "private, no-store"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", cache)
	w.Write(data)
}
