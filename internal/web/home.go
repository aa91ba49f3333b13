package web

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/sosed/internal/model"
)

type listingPage struct {
	PageData
	Items    []model.Item
	Query    string
	Category string
}

// Home handles GET /.
func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	data := &listingPage{PageData: s.page(w, r, "Home"), Category: model.CategoryAll}

	items, err := s.Catalog.ListRecent(r.Context())
	if err != nil {
		slog.Error("failed to list recent items", "error", err)
		data.Error = "Could not load items. Please try again."
	}
	data.Items = items

	s.Templates.Render(w, "home.html", data)
}

// ItemsPage handles GET /items.
func (s *Server) ItemsPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := &listingPage{
		PageData: s.page(w, r, "Browse items"),
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}
	if data.Category == "" {
		data.Category = model.CategoryAll
	}

	items, err := s.Catalog.Search(r.Context(), data.Query, data.Category)
	if err != nil {
		slog.Error("failed to search items", "error", err)
		data.Error = "Could not load items. Please try again."
	}
	data.Items = items

	s.Templates.Render(w, "items.html", data)
}
