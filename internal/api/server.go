package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"contentexpiry/internal/content"
	"contentexpiry/internal/domain"
	"contentexpiry/internal/executor"
	"contentexpiry/internal/scheduler"
	"contentexpiry/internal/settings"
	"contentexpiry/internal/store"
)

type Deps struct {
	Repo      store.Repository
	Items     content.Store
	Settings  *settings.Manager
	Scheduler *scheduler.Service
	Gate      *executor.Gate
	Metrics   http.Handler
	// Debug exposes storage error detail in responses and mounts pprof.
	Debug bool
}

type Server struct {
	r *chi.Mux
	Deps
}

func NewServer(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, Deps: d}

	r.Get("/health", s.health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/schedules", s.listSchedules)
		r.Post("/schedules", s.createSchedule)
		r.Get("/schedules/by-post/{post_id}", s.scheduleByPost)
		r.Get("/schedules/{id}", s.getSchedule)
		r.Put("/schedules/{id}", s.updateSchedule)
		r.Patch("/schedules/{id}", s.updateSchedule)
		r.Delete("/schedules/{id}", s.deleteSchedule)

		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.updateSettings)
		r.Patch("/settings", s.updateSettings)

		r.Post("/content", s.createContent)
		r.Get("/content/{id}", s.getContent)
	})

	// Ordinary content views: opportunistic sweep first, then the redirect gate.
	view := r.With()
	if d.Scheduler != nil {
		view = view.With(d.Scheduler.Middleware)
	}
	if d.Gate != nil {
		view = view.With(d.Gate.Middleware("id"))
	}
	view.Get("/content/{id}", s.viewContent)

	if d.Debug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type settingsResp struct {
	DefaultAction     string `json:"default_action"`
	CronEnabled       bool   `json:"cron_enabled"`
	NotificationEmail string `json:"notification_email"`
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResp(s.Settings.Current()))
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	next := s.Settings.Current()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		s.writeError(w, domain.NewValidationError("Invalid JSON body."))
		return
	}
	if err := s.Settings.Update(r.Context(), next); err != nil {
		s.writeError(w, err)
		return
	}
	if s.Scheduler != nil {
		if err := s.Scheduler.EnsureScheduled(r.Context()); err != nil {
			log.Error().Err(err).Msg("failed to reconcile periodic sweep")
		}
	}
	writeJSON(w, http.StatusOK, settingsResp(s.Settings.Current()))
}

type createContentReq struct {
	Title  string `json:"title"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (s *Server) createContent(w http.ResponseWriter, r *http.Request) {
	var req createContentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.NewValidationError("Invalid JSON body."))
		return
	}
	if req.Title == "" {
		s.writeError(w, domain.NewValidationError("title is required."))
		return
	}
	id, err := s.Items.Create(r.Context(), domain.ContentItem{Title: req.Title, Type: req.Type, Status: req.Status})
	if err != nil {
		s.writeError(w, &domain.StorageError{Op: "create content item", Err: err})
		return
	}
	item, err := s.Items.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, &domain.StorageError{Op: "get content item", Err: err})
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	s.writeItem(w, r)
}

// viewContent stands in for the host's page renderer.
func (s *Server) viewContent(w http.ResponseWriter, r *http.Request) {
	s.writeItem(w, r)
}

func (s *Server) writeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		notFound(w, domain.CodeNotFound)
		return
	}
	item, err := s.Items.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, &domain.StorageError{Op: "get content item", Err: err})
		return
	}
	if item == nil {
		s.writeError(w, &domain.NotFoundError{Resource: "content item", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type errorResp struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		nf   *domain.NotFoundError
		serr *domain.StorageError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResp{Code: verr.Code, Message: verr.Message})
	case errors.As(err, &nf):
		code := domain.CodeNotFound
		if nf.Resource == "schedule" {
			code = domain.CodeScheduleNotFound
		}
		notFound(w, code)
	case errors.As(err, &serr):
		log.Error().Err(err).Msg("storage failure")
		msg := "Internal error."
		if s.Debug {
			msg = serr.Error()
		}
		writeJSON(w, http.StatusInternalServerError, errorResp{Code: domain.CodeStorage, Message: msg})
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorResp{Code: "internal_error", Message: "Internal error."})
	}
}

func notFound(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusNotFound, errorResp{Code: code, Message: "Not found."})
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
