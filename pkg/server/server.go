// Package server exposes quoting and optimization over HTTP. Public routes
// return client projections only; admin routes require a bearer token and
// return full cost detail.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/catalog"
	"github.com/pario-ai/pricer/pkg/markup"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/pricing"
	"github.com/pario-ai/pricer/pkg/quote"
	"github.com/pario-ai/pricer/pkg/views"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Options configures a Server.
type Options struct {
	Listen     string
	AdminToken string
	Metrics    http.Handler
	Logger     *slog.Logger
}

// Server is the pricer HTTP API.
type Server struct {
	svc    *quote.Service
	alerts *alerts.Manager
	models atomic.Pointer[[]models.ModelInfo]

	listen     string
	adminToken string
	logger     *slog.Logger
	mux        *http.ServeMux
}

// New creates a Server. infos is the provider catalog used for thermal
// factors and optimizer candidates; SetModels replaces it.
func New(svc *quote.Service, am *alerts.Manager, infos []models.ModelInfo, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:        svc,
		alerts:     am,
		listen:     opts.Listen,
		adminToken: opts.AdminToken,
		logger:     logger.With("component", "server"),
		mux:        http.NewServeMux(),
	}
	s.SetModels(infos)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics)
	}
	s.mux.HandleFunc("POST /v1/quote", s.handleQuote)
	s.mux.HandleFunc("POST /v1/optimize", s.handleOptimize)

	s.mux.HandleFunc("POST /v1/admin/quote", s.admin(s.handleAdminQuote))
	s.mux.HandleFunc("POST /v1/admin/optimize", s.admin(s.handleAdminOptimize))
	s.mux.HandleFunc("GET /v1/admin/alerts", s.admin(s.handleListAlerts))
	s.mux.HandleFunc("POST /v1/admin/alerts/{id}/{action}", s.admin(s.handleAlertAction))
	s.mux.HandleFunc("POST /v1/admin/catalog", s.admin(s.handleSync))
	s.mux.HandleFunc("POST /v1/admin/catalog/{model}/resync", s.admin(s.handleResync))
	return s
}

// SetModels swaps the provider catalog, e.g. after a config reload.
func (s *Server) SetModels(infos []models.ModelInfo) {
	cp := append([]models.ModelInfo(nil), infos...)
	s.models.Store(&cp)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down gracefully when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("pricer api listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// QuoteRequest is the body of /v1/quote. Thermal state always comes from
// the provider catalog.
type QuoteRequest struct {
	ModelID string              `json:"model_id"`
	Request models.PriceRequest `json:"request"`
}

// AdminQuoteRequest is the body of /v1/admin/quote. Thermal replaces the
// catalog's thermal state for a what-if price.
type AdminQuoteRequest struct {
	QuoteRequest
	Thermal models.ThermalState `json:"thermal_state,omitempty"`
}

// OptimizeRequest is the body of /v1/optimize.
type OptimizeRequest struct {
	Request     models.PriceRequest `json:"request"`
	Constraints optimizer.Request   `json:"constraints"`
}

// AdminOptimizeRequest is the body of /v1/admin/optimize.
type AdminOptimizeRequest struct {
	OptimizeRequest
	Thermal models.ThermalState `json:"thermal_state,omitempty"`
}

// AlertActionRequest is the body of alert transitions.
type AlertActionRequest struct {
	By   string            `json:"by"`
	Cost *models.BaseCosts `json:"cost,omitempty"`
}

// SyncResponse summarises a catalog sync.
type SyncResponse struct {
	Accepted  int      `json:"accepted"`
	Unchanged int      `json:"unchanged"`
	Rejected  []string `json:"rejected,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var body QuoteRequest
	if !decode(w, r, &body) {
		return
	}
	q, ok := s.quote(w, r, body, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, views.ToClientView(q.ViewInput()))
}

func (s *Server) handleAdminQuote(w http.ResponseWriter, r *http.Request) {
	var body AdminQuoteRequest
	if !decode(w, r, &body) {
		return
	}
	q, ok := s.quote(w, r, body.QuoteRequest, body.Thermal)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, views.ToAdminView(q.ViewInput()))
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request, body QuoteRequest, state models.ThermalState) (quote.Quote, bool) {
	if body.ModelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model_id is required")
		return quote.Quote{}, false
	}
	thermal := s.thermalFor(body.ModelID, state)
	q, err := s.svc.Quote(r.Context(), body.ModelID, body.Request, thermal)
	if err != nil {
		s.writeError(w, r, err)
		return quote.Quote{}, false
	}
	return q, true
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var body OptimizeRequest
	if !decode(w, r, &body) {
		return
	}
	d, ok := s.optimize(w, r, body, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, views.ToClientSelection(d))
}

func (s *Server) handleAdminOptimize(w http.ResponseWriter, r *http.Request) {
	var body AdminOptimizeRequest
	if !decode(w, r, &body) {
		return
	}
	d, ok := s.optimize(w, r, body.OptimizeRequest, body.Thermal)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) optimize(w http.ResponseWriter, r *http.Request, body OptimizeRequest, state models.ThermalState) (optimizer.Decision, bool) {
	infos := *s.models.Load()
	if state != "" {
		infos = append([]models.ModelInfo(nil), infos...)
		for i := range infos {
			infos[i].Thermal = withState(infos[i].Thermal, state)
		}
	}
	d, err := s.svc.Optimize(r.Context(), infos, body.Request, body.Constraints)
	if err != nil {
		s.writeError(w, r, err)
		return optimizer.Decision{}, false
	}
	return d, true
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	f := alerts.Filter{
		ModelID: r.URL.Query().Get("model"),
		Status:  models.AlertStatus(r.URL.Query().Get("status")),
	}
	writeJSON(w, http.StatusOK, s.alerts.List(f))
}

func (s *Server) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	var body AlertActionRequest
	if !decode(w, r, &body) {
		return
	}
	if body.By == "" {
		writeJSONError(w, http.StatusBadRequest, "by is required")
		return
	}

	id := r.PathValue("id")
	var (
		a   models.EstimatedCostAlert
		err error
	)
	switch r.PathValue("action") {
	case "ack":
		a, err = s.alerts.Acknowledge(r.Context(), id, body.By)
	case "adjust":
		if body.Cost == nil {
			writeJSONError(w, http.StatusBadRequest, "cost is required")
			return
		}
		a, err = s.svc.AdjustEstimate(r.Context(), id, body.By, *body.Cost)
	case "resolve":
		a, err = s.alerts.Resolve(r.Context(), id, body.By, alerts.SourceAdmin)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown alert action")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var recs []models.ModelCostRecord
	if !decode(w, r, &recs) {
		return
	}
	res := s.svc.Sync(r.Context(), recs)
	out := SyncResponse{Accepted: res.Accepted, Unchanged: res.Unchanged}
	for _, err := range res.Rejected {
		out.Rejected = append(out.Rejected, err.Error())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ForceResync(r.Context(), r.PathValue("model")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// admin guards h with the admin bearer token. Without a configured token the
// admin routes do not exist.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeJSONError(w, http.StatusNotFound, "admin api disabled")
			return
		}
		key := extractAPIKey(r)
		if key == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing API key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.adminToken)) != 1 {
			writeJSONError(w, http.StatusForbidden, "invalid API key")
			return
		}
		h(w, r)
	}
}

func (s *Server) thermalFor(modelID string, state models.ThermalState) *models.ThermalCostFactors {
	for _, info := range *s.models.Load() {
		if info.ModelID == modelID {
			return withState(info.Thermal, state)
		}
	}
	return nil
}

func withState(t *models.ThermalCostFactors, state models.ThermalState) *models.ThermalCostFactors {
	if t == nil || state == "" {
		return t
	}
	cp := *t
	cp.State = state
	return &cp
}

// writeError maps domain errors to status codes. Unexpected errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, alerts.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, pricing.ErrInvalidRequest),
		errors.Is(err, optimizer.ErrInvalidRequest),
		errors.Is(err, optimizer.ErrUnknownStrategy),
		errors.Is(err, alerts.ErrInvalidAdjustment),
		errors.Is(err, markup.ErrConfiguration):
		code = http.StatusBadRequest
	case errors.Is(err, quote.ErrCannotPrice), errors.Is(err, alerts.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, optimizer.ErrNoEligibleCandidate):
		code = http.StatusUnprocessableEntity
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSONError(w, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-api-key")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"pricer_error","code":%d}}`, message, code)
}
