package web

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/live"
	"github.com/erazemk/sosed/internal/messaging"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/profile"
	webembed "github.com/erazemk/sosed/web"
)

// Templates holds parsed HTML templates.
type Templates struct {
	templates map[string]*template.Template
}

// FuncMap returns the template function map.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"categories": func() []string { return model.Categories },
		"timeAgo":    humanize.Time,
		"date": func(v any) string {
			switch t := v.(type) {
			case time.Time:
				return t.Local().Format("Jan 2, 2006")
			case *time.Time:
				if t == nil {
					return ""
				}
				return t.Local().Format("Jan 2, 2006")
			}
			return ""
		},
		"today": func() string { return time.Now().Format(catalog.DateLayout) },
		"rating": func(r float64) string {
			return fmt.Sprintf("%.1f", model.ClampRating(r))
		},
		"statusClass": func(status string) string {
			switch status {
			case model.RequestAccepted:
				return "badge-success"
			case model.RequestDeclined:
				return "badge-danger"
			case model.RequestCompleted:
				return "badge-default"
			default:
				return "badge-muted"
			}
		},
		"roleName": func(role string) string {
			switch role {
			case model.RoleAdmin:
				return "Administrator"
			case model.RoleMember:
				return "Member"
			default:
				return role
			}
		},
	}
}

// LoadTemplates parses all page templates with the layout.
func LoadTemplates() (*Templates, error) {
	tfs := webembed.TemplatesFS()

	// Read layout.
	layoutBytes, err := fs.ReadFile(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout template: %w", err)
	}

	pages := []string{
		"home.html",
		"items.html",
		"item_new.html",
		"item_detail.html",
		"profile.html",
		"user.html",
		"settings.html",
		"setup_2fa.html",
		"login.html",
		"register.html",
		"error.html",
	}

	ts := &Templates{templates: make(map[string]*template.Template)}

	for _, page := range pages {
		pageBytes, err := fs.ReadFile(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", page, err)
		}

		tmpl := template.New(page).Funcs(FuncMap())
		tmpl, err = tmpl.Parse(string(layoutBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", page, err)
		}
		tmpl, err = tmpl.Parse(string(pageBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}

		ts.templates[page] = tmpl
	}

	return ts, nil
}

// Render renders a template with the given data.
func (ts *Templates) Render(w http.ResponseWriter, name string, data any) {
	ts.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders a template with a non-200 status code.
func (ts *Templates) RenderStatus(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := ts.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
	}
}

// PageData is the base data passed to all templates.
type PageData struct {
	Title   string
	User    *auth.Claims
	Error   string
	Success string
}

// Server holds all dependencies for page handlers.
type Server struct {
	DB           *sqlx.DB
	Templates    *Templates
	Accounts     *auth.Accounts
	Catalog      *catalog.Catalog
	Ledger       *ledger.Ledger
	Messaging    *messaging.Service
	Profiles     *profile.Aggregator
	Hub          *live.Hub
	CookieSecure bool
}

// page returns the base data for a page and consumes the pending flash.
func (s *Server) page(w http.ResponseWriter, r *http.Request, title string) PageData {
	data := PageData{Title: title, User: GetWebClaims(r.Context())}
	switch kind, msg := popFlash(w, r); kind {
	case flashSuccess:
		data.Success = msg
	case flashError:
		data.Error = msg
	}
	return data
}

type errorPage struct {
	PageData
	Heading string
	Message string
}

// notFound renders the not-found page.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request, what string) {
	s.Templates.RenderStatus(w, http.StatusNotFound, "error.html", &errorPage{
		PageData: s.page(w, r, "Not found"),
		Heading:  what + " not found",
		Message:  "It may have been removed, or the link is wrong.",
	})
}

// serverError logs err and renders the error page.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, action string, err error) {
	slog.Error("failed to "+action, "path", r.URL.Path, "error", err)
	s.Templates.RenderStatus(w, http.StatusInternalServerError, "error.html", &errorPage{
		PageData: s.page(w, r, "Error"),
		Heading:  "Something went wrong",
		Message:  "Please try again in a moment.",
	})
}
