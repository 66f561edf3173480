// Package api exposes the analysis engines over HTTP. Callers POST a
// usage-details export and get the reservation or coverage analysis
// back as JSON.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"azure-cost/analysis/coverage"
	"azure-cost/analysis/reservation"
	"azure-cost/analysis/usage"
	"azure-cost/db/clickhouse"
	"azure-cost/pkg/platform"
)

// Server is the HTTP API server
type Server struct {
	httpServer   *http.Server
	store        *clickhouse.Store
	policyEngine *reservation.Engine
	config       *Config
	logger       *slog.Logger
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
}

// DefaultConfig returns default server configuration, with the port and
// CORS origins overridable from the environment.
func DefaultConfig() *Config {
	return &Config{
		Port:           platform.GetEnvInt("AZCOST_PORT", 8080),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 50 * 1024 * 1024, // usage exports run large
		CORSOrigins:    strings.Split(platform.GetEnv("AZCOST_CORS_ORIGINS", "*"), ","),
	}
}

// NewServer creates a new API server. The store may be nil; persistence
// endpoints then report unavailable while analysis still works.
func NewServer(store *clickhouse.Store, config *Config, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		store:        store,
		policyEngine: reservation.NewEngine(),
		config:       config,
		logger:       logger,
	}
}

// Handler builds the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/api/v1/reservations", s.handleReservations)
	mux.HandleFunc("/api/v1/coverage", s.handleCoverage)
	mux.HandleFunc("/api/v1/runs", s.handleListRuns)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("API server starting", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains it on SIGINT
// or SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.jsonResponse(w, http.StatusOK, map[string]string{
			"status": "ready",
			"store":  "disabled",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// RESERVATION ENDPOINT
// =============================================================================

// AnalyzeRequest is the API request for both analysis endpoints: a raw
// usage-details export plus an optional date window.
type AnalyzeRequest struct {
	Export json.RawMessage `json:"export"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
	// Persist stores the run when a database is configured.
	Persist bool `json:"persist,omitempty"`
}

// ReservationResponse is the reservation analysis result.
type ReservationResponse struct {
	RunID          string                        `json:"run_id,omitempty"`
	Records        int                           `json:"records"`
	RecordsSkipped int                           `json:"records_skipped"`
	Reports        []reservationReport           `json:"reports"`
	Groups         []reservation.GroupEfficiency `json:"groups"`
	Policy         *reservation.EvaluationResult `json:"policy"`
	AnalyzedAt     string                        `json:"analyzed_at"`
}

type reservationReport struct {
	OrderID            string                      `json:"order_id"`
	Hidden             bool                        `json:"hidden"`
	Cost               string                      `json:"monthly_cost"`
	Product            string                      `json:"product"`
	Region             string                      `json:"region,omitempty"`
	ReservedCores      int                         `json:"reserved_cores"`
	CoresEstimated     bool                        `json:"cores_estimated"`
	CoresUsed          int                         `json:"cores_used"`
	TotalConsumedHours float64                     `json:"total_consumed_hours"`
	TotalConsumedCost  string                      `json:"total_consumed_cost"`
	Utilization        *float64                    `json:"utilization_pct"`
	Status             string                      `json:"status"`
	Resources          []reservation.ResourceUsage `json:"resources"`
}

func (s *Server) handleReservations(w http.ResponseWriter, r *http.Request) {
	records, skipped, req, ok := s.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	correlation := reservation.Correlate(records)
	reports := reservation.AnalyzeAll(correlation)
	groups := reservation.GroupBySKU(reports)
	policyResult := s.policyEngine.Evaluate(reports, groups)

	resp := ReservationResponse{
		Records:        len(records),
		RecordsSkipped: skipped,
		Groups:         groups,
		Policy:         policyResult,
		AnalyzedAt:     time.Now().Format(time.RFC3339),
	}
	for _, rep := range reports {
		cost := rep.Cost.StringFixed(2)
		if rep.Hidden {
			cost = "unknown"
		}
		resp.Reports = append(resp.Reports, reservationReport{
			OrderID:            rep.OrderID,
			Hidden:             rep.Hidden,
			Cost:               cost,
			Product:            rep.Product,
			Region:             rep.Region,
			ReservedCores:      rep.ReservedCores,
			CoresEstimated:     rep.CoresEstimated,
			CoresUsed:          rep.CoresUsed,
			TotalConsumedHours: rep.TotalConsumedHours,
			TotalConsumedCost:  rep.TotalConsumedCost.StringFixed(2),
			Utilization:        rep.Utilization,
			Status:             string(rep.Status),
			Resources:          rep.Resources,
		})
	}

	if req.Persist {
		resp.RunID = s.persistRun(r.Context(), "reservations", req, len(records), resp)
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// COVERAGE ENDPOINT
// =============================================================================

// CoverageResponse is the coverage analysis result.
type CoverageResponse struct {
	RunID          string               `json:"run_id,omitempty"`
	Records        int                  `json:"records"`
	RecordsSkipped int                  `json:"records_skipped"`
	PerVM          []vmCoverageResponse `json:"per_vm"`
	Aggregate      vmCoverageResponse   `json:"aggregate"`
	Savings        savingsResponse      `json:"savings"`
	AnalyzedAt     string               `json:"analyzed_at"`
}

type vmCoverageResponse struct {
	Name               string  `json:"name"`
	TotalHours         float64 `json:"total_hours"`
	ReservedHours      float64 `json:"reserved_hours"`
	CoveragePct        float64 `json:"coverage_pct"`
	TotalCost          string  `json:"total_cost"`
	ReservedCost       string  `json:"reserved_cost"`
	PaygEquivalentCost string  `json:"payg_equivalent_cost"`
}

type savingsResponse struct {
	Exact         *string `json:"exact,omitempty"`
	EstimatedLow  *string `json:"estimated_low,omitempty"`
	EstimatedHigh *string `json:"estimated_high,omitempty"`
	Estimated     bool    `json:"estimated"`
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	records, skipped, req, ok := s.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	correlation := reservation.Correlate(records)
	reservationCost := decimal.Decimal{}
	for _, res := range correlation.Visible {
		reservationCost = reservationCost.Add(res.Cost)
	}
	report := coverage.Compute(records, reservationCost)

	resp := CoverageResponse{
		Records:        len(records),
		RecordsSkipped: skipped,
		Aggregate:      toVMCoverageResponse(report.Aggregate),
		AnalyzedAt:     time.Now().Format(time.RFC3339),
	}
	for _, vm := range report.PerVM {
		resp.PerVM = append(resp.PerVM, toVMCoverageResponse(vm))
	}
	resp.Savings = toSavingsResponse(report.Savings)

	if req.Persist {
		resp.RunID = s.persistRun(r.Context(), "coverage", req, len(records), resp)
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

func toVMCoverageResponse(vm coverage.VMCoverage) vmCoverageResponse {
	return vmCoverageResponse{
		Name:               vm.Name,
		TotalHours:         vm.TotalHours,
		ReservedHours:      vm.ReservedHours,
		CoveragePct:        vm.CoveragePercent(),
		TotalCost:          vm.TotalCost.StringFixed(2),
		ReservedCost:       vm.ReservedCost.StringFixed(2),
		PaygEquivalentCost: vm.PaygEquivalentCost.StringFixed(2),
	}
}

func toSavingsResponse(s coverage.Savings) savingsResponse {
	out := savingsResponse{}
	if s.Exact != nil {
		v := s.Exact.StringFixed(2)
		out.Exact = &v
	}
	if s.EstimatedLow != nil {
		low := s.EstimatedLow.StringFixed(2)
		high := s.EstimatedHigh.StringFixed(2)
		out.EstimatedLow = &low
		out.EstimatedHigh = &high
		out.Estimated = true
	}
	return out
}

// =============================================================================
// RUN HISTORY ENDPOINT
// =============================================================================

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "run history requires a configured database")
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "reservations"
	}

	runs, err := s.store.ListRuns(r.Context(), kind, 50)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
		return
	}

	type runResponse struct {
		ID          string `json:"id"`
		Kind        string `json:"kind"`
		SourceFile  string `json:"source_file,omitempty"`
		Records     int    `json:"records"`
		Hash        string `json:"hash"`
		GeneratedAt string `json:"generated_at"`
	}
	resp := make([]runResponse, len(runs))
	for i, run := range runs {
		resp[i] = runResponse{
			ID:          run.ID.String(),
			Kind:        run.Kind,
			SourceFile:  run.SourceFile,
			Records:     run.Records,
			Hash:        run.Hash,
			GeneratedAt: run.GeneratedAt.Format(time.RFC3339),
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeAnalyzeRequest parses the shared request body, loads the export
// and applies the date window. A false return means a response was
// already written.
func (s *Server) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) ([]usage.Record, int, *AnalyzeRequest, bool) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, 0, nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return nil, 0, nil, false
	}
	if len(req.Export) == 0 {
		s.jsonError(w, http.StatusBadRequest, "export document is required")
		return nil, 0, nil, false
	}

	records, err := usage.Load(bytes.NewReader(req.Export))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid export: %v", err))
		return nil, 0, nil, false
	}

	from, to, err := parseWindow(req.From, req.To)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return nil, 0, nil, false
	}
	records, skipped := usage.FilterByWindow(records, from, to)
	return records, skipped, &req, true
}

func parseWindow(fromStr, toStr string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date %q: use YYYY-MM-DD", fromStr)
		}
		from = &t
	}
	if toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date %q: use YYYY-MM-DD", toStr)
		}
		to = &t
	}
	if err := usage.ValidateWindow(from, to); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// persistRun stores an analysis result. Persistence failures degrade to
// a log line; the analysis response is still served.
func (s *Server) persistRun(ctx context.Context, kind string, req *AnalyzeRequest, records int, payload any) string {
	if s.store == nil {
		s.logger.Warn("persist requested but no database configured")
		return ""
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode run payload", "error", err)
		return ""
	}
	run := &clickhouse.ReportRun{
		ID:      uuid.New(),
		Kind:    kind,
		Records: records,
		Hash:    clickhouse.HashInput(req.Export),
		Payload: string(encoded),
	}
	if err := s.store.CreateReportRun(ctx, run); err != nil {
		s.logger.Error("failed to persist run", "error", err)
		return ""
	}
	return run.ID.String()
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
