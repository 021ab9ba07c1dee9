package main

import (
	"encoding/json"
	"maps"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

type stubConfig struct {
	ID         string
	Name       string
	Model      string
	Latency    time.Duration
	Jitter     time.Duration
	Confidence float64
	FailRate   float64
}

type agentMetadata struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Model        string   `json:"model"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
	Version      string   `json:"version"`
}

// stub answers the orchestrator's agent protocol with canned content after a
// configurable delay.
type stub struct {
	cfg     stubConfig
	meta    agentMetadata
	log     *zap.Logger
	started time.Time
	sleep   func(time.Duration)
	roll    func() float64
}

func newStub(cfg stubConfig, logger *zap.Logger) *stub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &stub{
		cfg: cfg,
		meta: agentMetadata{
			ID:           cfg.ID,
			Name:         cfg.Name,
			Type:         "stub",
			Model:        cfg.Model,
			Capabilities: []string{"text-generation", "analysis", "reasoning"},
			Status:       "online",
			Version:      "1.0.0",
		},
		log:     logger.With(zap.String("agent", cfg.ID)),
		started: time.Now(),
		sleep:   time.Sleep,
		roll:    rand.Float64,
	}
}

func (s *stub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("GET /api/capabilities", s.handleCapabilities)
	return mux
}

func (s *stub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             s.meta.ID,
		"name":           s.meta.Name,
		"status":         s.meta.Status,
		"version":        s.meta.Version,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

func (s *stub) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":        s.meta,
		"capabilities": s.meta.Capabilities,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *stub) handleProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	var req domain.ProcessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Message is required"})
		return
	}

	s.sleep(s.delay())
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	if s.cfg.FailRate > 0 && s.roll() < s.cfg.FailRate {
		s.log.Warn("simulated failure", zap.String("request_id", requestID))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":          "Failed to process message",
			"agent":          s.meta,
			"processingTime": elapsed,
			"requestId":      requestID,
		})
		return
	}

	out := make(map[string]any, len(req.Context)+2)
	maps.Copy(out, req.Context)
	out["processedBy"] = s.cfg.ID
	out["model"] = s.cfg.Model

	content, _ := json.Marshal(s.answer(req))
	confidence := s.cfg.Confidence
	s.log.Info("message processed",
		zap.String("request_id", requestID),
		zap.Any("task_id", req.Context["taskId"]),
		zap.Float64("elapsed_ms", elapsed),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"requestId":      requestID,
		"agent":          s.meta,
		"response":       domain.ProcessContent{Content: content, Confidence: &confidence},
		"processingTime": elapsed,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"context":        out,
	})
}

func (s *stub) delay() time.Duration {
	d := s.cfg.Latency
	if s.cfg.Jitter > 0 {
		d += time.Duration(s.roll() * float64(s.cfg.Jitter))
	}
	return d
}

func (s *stub) answer(req domain.ProcessRequest) string {
	role, _ := req.Context["role"].(string)
	if role != "" {
		return s.cfg.Name + " as " + role + ": " + req.Message
	}
	return s.cfg.Name + ": " + req.Message
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
