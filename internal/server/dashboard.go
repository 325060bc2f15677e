package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/headline-goat/launch-goat/internal/memo"
	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	layoutTmpl = template.Must(template.ParseFS(templateFS, "templates/layout.html"))
	listTmpl   = template.Must(template.ParseFS(templateFS, "templates/list.html"))
)

type layoutData struct {
	Title   string
	Content template.HTML
}

type listData struct {
	Experiments []experimentListItem
}

type experimentListItem struct {
	Name          string
	State         string
	VariantCount  int
	Users         int64
	Decision      string
	DecisionClass string
	Note          string
	CreatedAt     string
}

// analyzeLocal runs the full analysis over a locally tracked experiment.
func (s *Server) analyzeLocal(ctx context.Context, name string, skipBayesian bool) (*report.Report, provider.Result, error) {
	local := provider.NewLocal(s.store)
	res, err := local.FetchExperiment(ctx, name)
	if err != nil {
		return nil, res, err
	}
	if err := res.Validate(); err != nil {
		return nil, res, err
	}
	split, err := local.ExpectedSplit(ctx, name)
	if err != nil {
		return nil, res, err
	}
	rep, err := s.run(ctx, res.ToTable(), report.Options{Name: name, Split: split, SkipBayesian: skipBayesian})
	return rep, res, err
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	if s.store == nil {
		http.Error(w, "Event store not configured", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	exps, err := s.store.ListExperiments(ctx)
	if err != nil {
		s.log.Error("failed to list experiments", zap.Error(err))
		http.Error(w, "Failed to load experiments", http.StatusInternalServerError)
		return
	}

	items := make([]experimentListItem, len(exps))
	for i, e := range exps {
		item := experimentListItem{
			Name:         e.Name,
			State:        string(e.State),
			VariantCount: len(e.Variants),
			CreatedAt:    e.CreatedAt.Format("Jan 2, 2006"),
		}

		rep, res, err := s.analyzeLocal(ctx, e.Name, true)
		for _, v := range res.Variants {
			item.Users += v.Users
		}
		switch {
		case errors.Is(err, provider.ErrInvalid):
			item.Note = "no data"
		case err != nil:
			s.log.Warn("dashboard analysis failed", zap.String("experiment", e.Name), zap.Error(err))
			item.Note = "unavailable"
		default:
			item.Decision = string(rep.Decision.Decision)
			item.DecisionClass = strings.ToLower(item.Decision)
		}
		items[i] = item
	}

	var content bytes.Buffer
	if err := listTmpl.Execute(&content, listData{Experiments: items}); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
	s.renderPage(w, "Experiments", template.HTML(content.String()))
}

func (s *Server) handleDashboardExperiment(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Event store not configured", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(r, "name")

	rep, _, err := s.analyzeLocal(r.Context(), name, false)
	if errors.Is(err, provider.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	page, err := memo.HTML(memo.Markdown(rep, time.Now()))
	if err != nil {
		http.Error(w, "Failed to render memo", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func (s *Server) renderPage(w http.ResponseWriter, title string, content template.HTML) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := layoutTmpl.Execute(w, layoutData{Title: title, Content: content}); err != nil {
		s.log.Error("failed to render page", zap.Error(err))
	}
}
