// Package dashboard exposes the position book over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/navseries"
	"github.com/eddiefleurent/positionbook/internal/occ"
	"github.com/eddiefleurent/positionbook/internal/reconcile"
	"github.com/eddiefleurent/positionbook/internal/storage"
	"github.com/eddiefleurent/positionbook/internal/strategy"
	"github.com/eddiefleurent/positionbook/internal/util"
)

const defaultMaxUploadBytes = 32 << 20

// Server serves the import, position and series endpoints.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	service   *reconcile.Service
	series    *navseries.Store
	logger    logrus.FieldLogger
	authToken string
	port      int
	maxUpload int64
}

// Config holds the HTTP settings.
type Config struct {
	AuthToken      string
	Port           int
	MaxUploadBytes int64
}

// NewServer wires the handlers. storage is used for reads only; every write
// goes through service or series.
func NewServer(cfg Config, st storage.Interface, service *reconcile.Service, series *navseries.Store, logger logrus.FieldLogger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		router:    chi.NewRouter(),
		storage:   st,
		service:   service,
		series:    series,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
		maxUpload: cfg.MaxUploadBytes,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/import", s.handleImport)
		r.Post("/import/detect", s.handleDetect)
		r.Post("/nav-text", s.handleNavText)
		r.Post("/benchmark-text", s.handleBenchmarkText)

		r.Get("/positions", s.handleGetPositions)
		r.Put("/positions", s.handlePutPosition)
		r.Delete("/positions/{account}/{instrumentID}", s.handleDeletePosition)
		r.Post("/cash", s.handleSetCash)
		r.Post("/reset", s.handleReset)

		r.Get("/series", s.handleGetSeries)
		r.Delete("/series", s.handleClearSeries)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{"status": "ok"}
	if b, ok := s.storage.(interface{ State() gobreaker.State }); ok {
		resp["storage"] = b.State().String()
		if b.State() == gobreaker.StateOpen {
			resp["status"] = "degraded"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := s.service.Import(r.Context(), data, r.URL.Query().Get("account"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := s.service.Detect(data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]importer.Kind{"kind": kind})
}

// readUpload accepts either a multipart "file" field or the raw body.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return nil, fmt.Errorf("reading upload: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("multipart upload needs a file field: %w", err)
		}
		defer func() { _ = file.Close() }()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	return data, nil
}

type pasteRequest struct {
	Account string `json:"account"`
	Text    string `json:"text"`
	Append  bool   `json:"append"`
}

func (s *Server) handleNavText(w http.ResponseWriter, r *http.Request) {
	var req pasteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	report, err := s.series.ImportNavText(r.Context(), req.Account, req.Text, req.Append)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBenchmarkText(w http.ResponseWriter, r *http.Request) {
	var req pasteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	report, err := s.series.ImportBenchmarkText(r.Context(), req.Text, req.Append)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type positionsResponse struct {
	Account   string              `json:"account"`
	Positions []models.Position   `json:"positions,omitempty"`
	Rows      []strategy.Row      `json:"rows,omitempty"`
	Exposure  []strategy.Exposure `json:"exposure"`
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := q.Get("account")
	if account == "" {
		account = models.AllAccounts
	}

	positions, err := s.storage.Positions(r.Context(), account)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := positionsResponse{Account: account, Exposure: strategy.ExposureByUnderlying(positions)}
	if q.Get("netted") == "1" || q.Get("netted") == "true" {
		resp.Rows = strategy.Netted(positions, strategy.Options{Collapsed: strategy.ParseCollapsed(q.Get("collapsed"))})
	} else {
		resp.Positions = positions
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutPosition(w http.ResponseWriter, r *http.Request) {
	var pos models.Position
	if !s.decodeJSON(w, r, &pos) {
		return
	}
	if err := s.service.UpsertPosition(r.Context(), pos); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	instrumentID := chi.URLParam(r, "instrumentID")
	if err := s.service.DeletePosition(r.Context(), account, instrumentID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cashRequest struct {
	Cash    *float64 `json:"cash"`
	Account string   `json:"account"`
}

func (s *Server) handleSetCash(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Cash == nil {
		http.Error(w, "cash is required", http.StatusBadRequest)
		return
	}
	if err := s.service.SetCash(r.Context(), req.Account, *req.Cash); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequest struct {
	Account string `json:"account"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.service.ResetAccount(r.Context(), req.Account); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type seriesResponse struct {
	Account string            `json:"account"`
	Points  []models.NavPoint `json:"points"`
	Stats   navseries.Stats   `json:"stats"`
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := q.Get("account")
	if account == "" {
		account = models.AllAccounts
	}

	var rng navseries.Range
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		d, ok := util.ParseDate(raw)
		if !ok {
			http.Error(w, fmt.Sprintf("invalid %s date %q", p.name, raw), http.StatusBadRequest)
			return
		}
		*p.dst = d
	}

	points, err := s.series.SeriesFor(r.Context(), account, rng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if points == nil {
		points = []models.NavPoint{}
	}
	s.writeJSON(w, http.StatusOK, seriesResponse{Account: account, Points: points, Stats: navseries.ComputeStats(points)})
}

func (s *Server) handleClearSeries(w http.ResponseWriter, r *http.Request) {
	if err := s.series.ClearHistory(r.Context(), r.URL.Query().Get("account")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUpload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// rowsErrorResponse carries the rejected-row sample of a failed import.
type rowsErrorResponse struct {
	Error    string               `json:"error"`
	Account  string               `json:"account,omitempty"`
	Failures []*importer.RowError `json:"failures"`
	Rejected int                  `json:"rejected"`
}

// writeError maps domain errors onto status codes. Anything unexpected is
// logged and reported as a 500 without details.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		rowErr *importer.RowError
		noRows *importer.NoUsableRowsError
	)
	switch {
	case errors.As(err, &noRows):
		s.writeJSON(w, http.StatusBadRequest, rowsErrorResponse{
			Error:    err.Error(),
			Account:  noRows.Account,
			Failures: noRows.Failures,
			Rejected: noRows.Rejected,
		})
	case errors.Is(err, reconcile.ErrAmbiguousAccountScope),
		errors.Is(err, storage.ErrAggregateWrite),
		errors.Is(err, importer.ErrUnrecognizedFormat),
		errors.Is(err, importer.ErrNoUsableRows),
		errors.Is(err, navseries.ErrInvalidNAV),
		errors.Is(err, occ.ErrInvalidSymbol),
		errors.Is(err, occ.ErrInvalidInput),
		errors.As(err, &rowErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrAccountNotFound),
		errors.Is(err, storage.ErrPositionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		s.logger.WithError(err).Warn("Storage unavailable")
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.WithError(err).Error("Request failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
