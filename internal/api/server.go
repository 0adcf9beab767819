// Package api exposes the engine over HTTP: ring-finder queries, session
// lifecycle control and the visited-system history, plus the hotspot store's
// admin debug routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/monitoring"
	"github.com/banshee-data/elitemining/internal/ringfinder"
	"github.com/banshee-data/elitemining/internal/session"
	"github.com/banshee-data/elitemining/internal/sessionlog"
)

// Locator reports where the player currently is. Satisfied by the journal
// dispatcher.
type Locator interface {
	CurrentSystem() (string, *hotspotdb.Coords)
}

// Server handles the HTTP interface for the mining engine.
type Server struct {
	address string
	finder  *ringfinder.Finder
	agg     *session.Aggregator
	log     *sessionlog.Writer
	store   *hotspotdb.DB
	locator Locator
	server  *http.Server
}

// Config contains the collaborators of the web server. Log and Locator may be
// nil; session persistence and location defaulting are then disabled.
type Config struct {
	Address string
	Finder  *ringfinder.Finder
	Session *session.Aggregator
	Log     *sessionlog.Writer
	Store   *hotspotdb.DB
	Locator Locator
}

// NewServer creates a web server with the provided configuration.
func NewServer(config Config) *Server {
	s := &Server{
		address: config.Address,
		finder:  config.Finder,
		agg:     config.Session,
		log:     config.Log,
		store:   config.Store,
		locator: config.Locator,
	}
	s.server = &http.Server{
		Addr:    s.address,
		Handler: s.setupRoutes(),
	}
	return s
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ringfinder", s.handleRingFinder)
	mux.HandleFunc("/api/session", s.handleSessionStatus)
	mux.HandleFunc("/api/session/start", s.handleSessionStart)
	mux.HandleFunc("/api/session/stop", s.handleSessionStop)
	mux.HandleFunc("/api/session/cancel", s.handleSessionCancel)
	mux.HandleFunc("/api/session/amend", s.handleSessionAmend)
	mux.HandleFunc("/api/visited", s.handleVisited)
	if s.store != nil {
		s.store.AttachAdminRoutes(mux)
	}
	return logRequests(mux)
}

// logRequests records every request with its duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		monitoring.Logf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("JSON encoding error: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleRingFinder serves GET /api/ringfinder. Query parameters: system
// (required), material, ring_type, max_distance, max_results, fuzzy.
func (s *Server) handleRingFinder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := ringfinder.Query{
		System:   r.URL.Query().Get("system"),
		RingType: r.URL.Query().Get("ring_type"),
		Material: r.URL.Query().Get("material"),
	}
	if q.System == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'system' parameter")
		return
	}
	if v := r.URL.Query().Get("max_distance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "bad 'max_distance' parameter")
			return
		}
		q.MaxDistance = d
	}
	if v := r.URL.Query().Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "bad 'max_results' parameter")
			return
		}
		q.MaxResults = n
	}
	q.FuzzyMaterial = r.URL.Query().Get("fuzzy") == "true"

	results, err := s.finder.Find(q)
	if err != nil {
		if errors.Is(err, ringfinder.ErrUnknownSystem) {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []ringfinder.Result{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.agg.Status())
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	system := r.FormValue("system")
	if system == "" && s.locator != nil {
		system, _ = s.locator.CurrentSystem()
	}
	id, err := s.agg.Start(system, r.FormValue("body"))
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// handleSessionStop ends the active session, persists the result and returns
// it together with the report path.
func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.agg.Stop(); err != nil {
		s.sessionError(w, err)
		return
	}
	res, err := s.agg.Persist()
	if err != nil {
		s.sessionError(w, err)
		return
	}

	var report string
	if s.log != nil {
		report, err = s.log.Write(res)
		if err != nil {
			// The session summary still goes back to the caller.
			monitoring.Logf("failed to persist session %s: %v", res.ID, err)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": res,
		"report": report,
	})
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.agg.Cancel(); err != nil {
		s.sessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"state": "idle"})
}

// handleSessionAmend merges late refinery material into an existing report.
// Body: {"report": "<path>", "materials": {"Platinum": 4}}.
func (s *Server) handleSessionAmend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.log == nil {
		s.writeJSONError(w, http.StatusNotImplemented, "session persistence disabled")
		return
	}
	var req struct {
		Report    string         `json:"report"`
		Materials map[string]int `json:"materials"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "bad amendment body")
		return
	}
	if req.Report == "" || len(req.Materials) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "amendment needs a report and materials")
		return
	}
	if err := s.log.Amend(req.Report, req.Materials); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"report": req.Report})
}

func (s *Server) handleVisited(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "bad 'limit' parameter")
			return
		}
		limit = n
	}
	visited, err := s.store.RecentVisitedSystems(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if visited == nil {
		visited = []hotspotdb.VisitedSystem{}
	}
	s.writeJSON(w, http.StatusOK, visited)
}

// sessionError maps aggregator precondition violations to 409; everything
// else is a server error.
func (s *Server) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, session.ErrNotEnding):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	default:
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("Starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
