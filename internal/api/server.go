// Package api serves the orchestrator's HTTP and WebSocket surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"agent_orchestrator/internal/dispatch"
	"agent_orchestrator/internal/domain"
	"agent_orchestrator/internal/events"
	"agent_orchestrator/internal/history"
	"agent_orchestrator/internal/strategy"
)

const (
	maxRequestBodySize = 10 << 20
	statusRecentTasks  = 10
	metricsRecentTasks = 20
)

type Service interface {
	Dispatch(ctx context.Context, in dispatch.DispatchInput) (domain.TaskRecord, error)
	Collaborate(ctx context.Context, in dispatch.CollaborateInput) (domain.TaskRecord, error)
	SendMessage(ctx context.Context, agentID string, message string, taskContext map[string]any) (domain.CallOutcome, error)
	GetTask(ctx context.Context, taskID string) (domain.TaskRecord, error)
	RecentTasks(ctx context.Context, n int) ([]domain.TaskRecord, error)
	TaskCount(ctx context.Context) (int, error)
	Overview(ctx context.Context) (domain.HistoryOverview, error)
	AgentMetrics() map[string]domain.AgentMetrics
	Agents() []domain.Agent
	AgentStatus(ctx context.Context) ([]domain.AgentHealth, error)
}

type Subscriber interface {
	Subscribe() (string, <-chan events.Event)
	Unsubscribe(id string)
}

type Config struct {
	Version           string
	RequestsPerSecond float64
	Burst             int
	// OriginPatterns lists extra hosts allowed to open /ws from a browser.
	OriginPatterns []string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Version) == "" {
		c.Version = "1.0.0"
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	return c
}

// Metadata describes the orchestrator on /health and /api/status.
type Metadata struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
}

type Server struct {
	svc      Service
	events   Subscriber
	gatherer prometheus.Gatherer
	cfg      Config
	log      *zap.Logger
	meta     Metadata
	started  time.Time
}

// New builds the HTTP surface. bus and gatherer may be nil, in which case
// /ws and /metrics are not mounted.
func New(svc Service, bus Subscriber, gatherer prometheus.Gatherer, cfg Config, logger *zap.Logger) *Server {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:      svc,
		events:   bus,
		gatherer: gatherer,
		cfg:      cfg,
		log:      logger.With(zap.String("component", "api")),
		meta: Metadata{
			ID:           "orchestrator",
			Name:         "Multi-Agent Orchestrator",
			Version:      cfg.Version,
			Capabilities: []string{"agent-coordination", "task-distribution", "result-aggregation"},
			Status:       "online",
		},
		started: time.Now(),
	}
}

// Handler returns the routed and middleware-wrapped handler. ctx bounds the
// rate limiter's background cleanup.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/distribute", s.handleDistribute)
	mux.HandleFunc("POST /api/collaborate", s.handleCollaborate)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/agents/status", s.handleAgentStatus)
	mux.HandleFunc("POST /api/agents/{id}/message", s.handleAgentMessage)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.events != nil {
		mux.HandleFunc("GET /ws", s.handleStream)
	}

	return Chain(mux,
		Principal(),
		Recovery(s.log),
		RequestLogger(s.log),
		RateLimiter(ctx, s.cfg.RequestsPerSecond, s.cfg.Burst, s.log),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	processed, err := s.svc.TaskCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                    s.meta.ID,
		"name":                  s.meta.Name,
		"version":               s.meta.Version,
		"capabilities":          s.meta.Capabilities,
		"status":                s.meta.Status,
		"timestamp":             nowRFC3339(),
		"uptime_seconds":        time.Since(s.started).Seconds(),
		"connected_agents":      len(s.svc.Agents()),
		"total_tasks_processed": processed,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	recent, err := s.svc.RecentTasks(r.Context(), statusRecentTasks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orchestrator": s.meta,
		"agents":       s.svc.AgentMetrics(),
		"recent_tasks": recent,
		"timestamp":    nowRFC3339(),
	})
}

type distributeRequest struct {
	Task     string              `json:"task"`
	Strategy domain.StrategyName `json:"strategy"`
	Agents   []string            `json:"agents"`
	Context  map[string]any      `json:"context"`
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.svc.Dispatch(r.Context(), dispatch.DispatchInput{
		Task:     req.Task,
		Strategy: req.Strategy,
		Agents:   req.Agents,
		Context:  req.Context,
		User:     PrincipalFromContext(r.Context()),
	})
	if err != nil {
		s.writeTaskError(w, rec, err, "Failed to distribute task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":            rec.ID,
		"message":            "Task distributed successfully",
		"strategy":           rec.Strategy,
		"agents":             rec.Agents,
		"result":             rec.Result,
		"processing_time_ms": rec.ProcessingTimeMS,
		"timestamp":          nowRFC3339(),
	})
}

type collaborateRequest struct {
	Problem string   `json:"problem"`
	Agents  []string `json:"agents"`
}

func (s *Server) handleCollaborate(w http.ResponseWriter, r *http.Request) {
	var req collaborateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.svc.Collaborate(r.Context(), dispatch.CollaborateInput{
		Problem: req.Problem,
		Agents:  req.Agents,
		User:    PrincipalFromContext(r.Context()),
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrTaskRequired) {
			writeError(w, http.StatusBadRequest, errors.New("problem is required"))
			return
		}
		s.writeTaskError(w, rec, err, "Failed to collaborate")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":       rec.ID,
		"message":       "Collaboration completed successfully",
		"problem":       rec.Task,
		"agents":        rec.Agents,
		"collaboration": rec.Result,
		"timestamp":     nowRFC3339(),
	})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(r.PathValue("id"))
	if taskID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("task id is required"))
		return
	}
	rec, err := s.svc.GetTask(r.Context(), taskID)
	if errors.Is(err, history.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, errors.New("task not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Task found",
		"task":      rec,
		"timestamp": nowRFC3339(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	overview, err := s.svc.Overview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	recent, err := s.svc.RecentTasks(r.Context(), metricsRecentTasks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overview":        overview,
		"agents":          s.svc.AgentMetrics(),
		"recent_activity": recent,
		"timestamp":       nowRFC3339(),
	})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	agents, err := s.svc.AgentStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Agent status retrieved successfully",
		"agents":    agents,
		"timestamp": nowRFC3339(),
	})
}

type agentMessageRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

func (s *Server) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	var req agentMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	outcome, err := s.svc.SendMessage(r.Context(), agentID, req.Message, req.Context)
	switch {
	case errors.Is(err, dispatch.ErrTaskRequired):
		writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	case errors.Is(err, dispatch.ErrUnknownAgent):
		writeError(w, http.StatusNotFound, errors.New("agent not found"))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !outcome.Succeeded() {
		code := http.StatusServiceUnavailable
		if strings.Contains(outcome.Error, "timed out") {
			code = http.StatusRequestTimeout
		}
		writeJSON(w, code, map[string]any{
			"error":  "agent call failed",
			"agent":  agentID,
			"detail": outcome.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Message sent successfully",
		"agent":     agentID,
		"response":  outcome.Response,
		"timestamp": nowRFC3339(),
	})
}

// writeTaskError maps dispatch failures: caller mistakes are 400, the rest 500.
// A stored record's id is echoed so the failure can be looked up later.
func (s *Server) writeTaskError(w http.ResponseWriter, rec domain.TaskRecord, err error, summary string) {
	payload := map[string]any{"timestamp": nowRFC3339()}
	if rec.ID != "" {
		payload["task_id"] = rec.ID
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrTaskRequired),
		errors.Is(err, dispatch.ErrInvalidStrategy),
		errors.Is(err, strategy.ErrNoAvailableAgents):
		code = http.StatusBadRequest
		payload["error"] = err.Error()
	default:
		s.log.Error(summary, zap.String("task_id", rec.ID), zap.Error(err))
		payload["error"] = summary
	}
	writeJSON(w, code, payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
