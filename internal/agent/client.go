package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"agent_orchestrator/internal/domain"
)

const (
	DefaultCallTimeout       = 30 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
	processPath              = "/api/process"
	healthPath               = "/health"
	maxResponseBytes         = 10 * 1024 * 1024
	maxHTTPErrorBodyReadSize = 64 * 1024
)

var ErrUnknownAgent = errors.New("agent has no configured address")

type ClientConfig struct {
	Timeout       time.Duration
	HealthTimeout time.Duration
	Logger        *zap.Logger
	Client        *http.Client
}

// Client performs task calls against agents. Invoke never returns an error:
// every failure is folded into the returned outcome.
type Client struct {
	dir           *Directory
	timeout       time.Duration
	healthTimeout time.Duration
	logger        *zap.Logger
	client        *http.Client
}

func NewClient(dir *Directory, cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		dir:           dir,
		timeout:       timeout,
		healthTimeout: healthTimeout,
		logger:        cfg.Logger.With(zap.String("component", "agent_client")),
		client:        client,
	}
}

func (c *Client) Invoke(ctx context.Context, agentID string, task string, taskContext map[string]any) domain.CallOutcome {
	start := time.Now()
	raw, err := c.process(ctx, agentID, task, taskContext)
	elapsed := elapsedMS(start)
	if err != nil {
		c.logger.Warn("agent call failed",
			zap.String("agent", agentID),
			zap.Float64("elapsed_ms", elapsed),
			zap.Error(err),
		)
		return domain.FailureOutcome(agentID, err.Error(), elapsed)
	}
	c.logger.Debug("agent call succeeded",
		zap.String("agent", agentID),
		zap.Float64("elapsed_ms", elapsed),
	)
	return domain.SuccessOutcome(agentID, raw, elapsed)
}

func (c *Client) process(ctx context.Context, agentID string, task string, taskContext map[string]any) (json.RawMessage, error) {
	target, ok := c.dir.Lookup(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	body, err := json.Marshal(domain.ProcessRequest{
		Message:   task,
		Context:   cloneContext(taskContext),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal process request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, target.URL+processPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create process request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("agent %s timed out after %s", agentID, c.timeout)
		}
		return nil, fmt.Errorf("agent %s request failed: %w", agentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		if readErr != nil {
			return nil, fmt.Errorf("agent %s status=%d and read body failed: %w", agentID, resp.StatusCode, readErr)
		}
		return nil, statusError{
			agentID:    agentID,
			statusCode: resp.StatusCode,
			body:       strings.TrimSpace(string(errBody)),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("agent %s read response: %w", agentID, err)
	}
	if len(raw) > maxResponseBytes {
		return nil, fmt.Errorf("agent %s response exceeds %d bytes", agentID, maxResponseBytes)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("agent %s returned malformed payload: %w", agentID, err)
	}
	return json.RawMessage(raw), nil
}

// Health probes GET /health on the agent.
func (c *Client) Health(ctx context.Context, agentID string) domain.AgentHealth {
	out := domain.AgentHealth{
		Agent:     domain.Agent{ID: agentID},
		Status:    domain.AgentStatusOffline,
		LastCheck: time.Now().UTC(),
	}
	target, ok := c.dir.Lookup(agentID)
	if !ok {
		out.Error = fmt.Sprintf("%v: %s", ErrUnknownAgent, agentID)
		return out
	}
	out.Agent = target

	callCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet, target.URL+healthPath, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Error = statusError{agentID: agentID, statusCode: resp.StatusCode, body: strings.TrimSpace(string(raw))}.Error()
		return out
	}
	if json.Valid(raw) {
		out.Health = json.RawMessage(raw)
	}
	out.Status = domain.AgentStatusOnline
	return out
}

type statusError struct {
	agentID    string
	statusCode int
	body       string
}

func (e statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("agent %s status=%d", e.agentID, e.statusCode)
	}
	return fmt.Sprintf("agent %s status=%d body=%s", e.agentID, e.statusCode, e.body)
}

func cloneContext(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
