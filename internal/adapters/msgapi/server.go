// Package msgapi exposes the inbound message surface of the analysis core:
// the action envelope the provider monitors submit, plus health, stats and
// metrics endpoints.
package msgapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
	"github.com/phishguard/phishguard/internal/metrics"
)

// Inbound actions understood by the message endpoint.
const (
	actionAnalyzeEmail        = "analyzeEmail"
	actionUpdateStats         = "updateStats"
	actionEmailQuarantined    = "emailQuarantined"
	actionReportFalsePositive = "reportFalsePositive"
	actionSetSession          = "setSession"
	actionClearSession        = "clearSession"
)

// Server is the HTTP JSON message server.
type Server struct {
	orchestrator *core.Orchestrator
	stats        *core.StatisticsStore
	session      *core.SessionContext
	classifier   core.Classifier
	logger       *zap.Logger
	metrics      *metrics.Metrics

	listenAddr string
	server     *http.Server
}

// NewServer creates the message API server.
func NewServer(
	orchestrator *core.Orchestrator,
	stats *core.StatisticsStore,
	session *core.SessionContext,
	classifier core.Classifier,
	logger *zap.Logger,
	m *metrics.Metrics,
	listenAddr string,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		stats:        stats,
		session:      session,
		classifier:   classifier,
		logger:       logger,
		metrics:      m,
		listenAddr:   listenAddr,
	}
}

// envelope is the inbound message shape.
type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// response is the outbound message shape.
type response struct {
	Success bool                 `json:"success"`
	Result  *core.AnalysisResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	router := mux.NewRouter()
	router.HandleFunc("/api/message", s.handleMessage).Methods(http.MethodPost)
	router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:         s.listenAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("Message API starting", zap.String("address", s.listenAddr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Message API server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg envelope
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "invalid message envelope"})
		return
	}

	switch msg.Action {
	case actionAnalyzeEmail:
		s.handleAnalyzeEmail(w, r, msg.Data)
	case actionUpdateStats:
		s.handleUpdateStats(w, r, msg.Data)
	case actionEmailQuarantined:
		s.handleEmailQuarantined(w, r, msg.Data)
	case actionReportFalsePositive:
		s.handleReportFalsePositive(w, r, msg.Data)
	case actionSetSession:
		s.handleSetSession(w, r, msg.Data)
	case actionClearSession:
		s.session.Clear(r.Context())
		s.respond(w, http.StatusOK, response{Success: true})
	default:
		s.logger.Warn("Unknown message action", zap.String("action", msg.Action))
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "unknown action"})
	}
}

func (s *Server) handleAnalyzeEmail(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var record core.EmailRecord
	if err := json.Unmarshal(data, &record); err != nil {
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "invalid email record"})
		return
	}
	if record.Sender == "" && record.Subject == "" && record.BodyText == "" && record.BodyHTML == "" {
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "empty email record"})
		return
	}

	result, err := s.orchestrator.Analyze(r.Context(), &record)
	if err != nil {
		if errors.Is(err, core.ErrAuthExpired) {
			// The result is still a usable fallback classification; the
			// error tells the caller re-authentication is required.
			s.respond(w, http.StatusOK, response{Success: true, Result: result, Error: "auth_expired"})
			return
		}
		s.logger.Error("Analysis failed", zap.Error(err))
		s.respond(w, http.StatusOK, response{Success: false, Error: err.Error()})
		return
	}
	s.respond(w, http.StatusOK, response{Success: true, Result: result})
}

func (s *Server) handleUpdateStats(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var payload struct {
		IsThreat bool   `json:"isThreat"`
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "invalid stats update"})
		return
	}

	s.stats.RecordExternal(r.Context(), payload.IsThreat, payload.Provider)
	s.respond(w, http.StatusOK, response{Success: true})
}

func (s *Server) handleEmailQuarantined(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var payload struct {
		Provider string           `json:"provider"`
		Email    core.EmailRecord `json:"email"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "invalid quarantine report"})
		return
	}

	s.logger.Info("Monitor reported quarantine",
		zap.String("provider", payload.Provider),
		zap.String("sender", payload.Email.Sender))
	s.stats.RecordQuarantine(r.Context())
	s.respond(w, http.StatusOK, response{Success: true})
}

func (s *Server) handleReportFalsePositive(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var payload struct {
		EmailData core.EmailRecord     `json:"emailData"`
		Result    *core.AnalysisResult `json:"result"`
		Provider  string               `json:"provider"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "invalid false-positive report"})
		return
	}
	payload.EmailData.Provider = payload.Provider

	// Fire-and-forget toward the remote service.
	detached := context.WithoutCancel(r.Context())
	go func() {
		if err := s.classifier.ReportFalsePositive(detached, &payload.EmailData, payload.Result); err != nil {
			s.logger.Warn("False-positive report failed", zap.Error(err))
		}
	}()

	s.respond(w, http.StatusOK, response{Success: true})
}

func (s *Server) handleSetSession(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var creds core.Credentials
	if err := json.Unmarshal(data, &creds); err != nil || creds.Token == "" {
		s.respond(w, http.StatusBadRequest, response{Success: false, Error: "invalid credentials"})
		return
	}

	s.session.Set(r.Context(), &creds)
	s.respond(w, http.StatusOK, response{Success: true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scan_history":     s.stats.ScanHistory(),
		"analysis_history": s.stats.AnalysisHistory(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respond(w http.ResponseWriter, status int, resp response) {
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
