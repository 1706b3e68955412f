package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skimo-var/api/handlers"
	"skimo-var/config"
	"skimo-var/core/authz"
	"skimo-var/core/broadcast"
	"skimo-var/core/incidents"
	"skimo-var/core/reports"
	"skimo-var/core/roster"
	"skimo-var/core/utils"
)

// BackgroundWorker is anything started alongside the HTTP listener and
// stopped on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	ReportsSvc   *reports.Service
	IncidentsSvc *incidents.Service
	RosterLookup roster.Lookup
	Hub          *broadcast.Hub
	Keys         *Keyring
	Authz        authz.Authorizer
}

type Server struct {
	cfg    *config.AppConfig
	logger *utils.Logger

	reportsSvc   *reports.Service
	incidentsSvc *incidents.Service
	rosterLookup roster.Lookup
	hub          *broadcast.Hub
	keys         *Keyring
	authz        authz.Authorizer
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger,
		reportsSvc:   deps.ReportsSvc,
		incidentsSvc: deps.IncidentsSvc,
		rosterLookup: deps.RosterLookup,
		hub:          deps.Hub,
		keys:         deps.Keys,
		authz:        deps.Authz,
	}
}

type routeHandlers struct {
	reports   *handlers.ReportsHandler
	incidents *handlers.IncidentsHandler
	stream    *handlers.StreamHandler
	roster    *handlers.RosterHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		reports:   handlers.NewReportsHandler(s.reportsSvc, s.logger),
		incidents: handlers.NewIncidentsHandler(s.incidentsSvc, s.authz, s.logger),
		stream:    handlers.NewStreamHandler(s.hub, s.authz, s.logger),
		roster:    handlers.NewRosterHandler(s.rosterLookup, s.authz, s.logger),
	}
}

func (s *Server) Routes() http.Handler {
	h := s.newRouteHandlers()

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.MethodFunc(http.MethodGet, "/api/health", s.handleHealth)

	r.MethodFunc(http.MethodPost, "/api/reports", s.withActor(h.reports.Create))
	r.MethodFunc(http.MethodPost, "/api/reports/{id}/review", s.withActor(h.reports.Review))
	r.MethodFunc(http.MethodPost, "/api/reports/{id}/archive", s.withActor(h.reports.Archive))

	r.MethodFunc(http.MethodGet, "/api/incidents/{id}", s.withActor(h.incidents.Get))
	r.MethodFunc(http.MethodPost, "/api/incidents/{id}/merge", s.withActor(h.incidents.Merge))
	r.MethodFunc(http.MethodPost, "/api/incidents/{id}/officialize", s.withActor(h.incidents.Officialize))
	r.MethodFunc(http.MethodPost, "/api/incidents/{id}/decide", s.withActor(h.incidents.Decide))

	r.MethodFunc(http.MethodGet, "/api/races/{race_id}/incidents", s.withActor(h.incidents.ListByRace))
	r.MethodFunc(http.MethodGet, "/api/races/{race_id}/stream", s.withActor(h.stream.Subscribe))
	r.MethodFunc(http.MethodGet, "/api/races/{race_id}/roster/{bib}", s.withActor(h.roster.ResolveBib))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
