package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"agent_orchestrator/internal/domain"
)

type client struct {
	baseURL string
	user    string
	http    *http.Client
}

type metricsResponse struct {
	Overview       domain.HistoryOverview         `json:"overview"`
	Agents         map[string]domain.AgentMetrics `json:"agents"`
	RecentActivity []domain.TaskRecord            `json:"recent_activity"`
}

type taskResponse struct {
	Task domain.TaskRecord `json:"task"`
}

type agentStatusResponse struct {
	Agents []domain.AgentHealth `json:"agents"`
}

type distributeResponse struct {
	TaskID string                `json:"task_id"`
	Result domain.StrategyResult `json:"result"`
}

type streamFrame struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

func (c *client) metrics() (metricsResponse, error) {
	var out metricsResponse
	err := c.getJSON("/api/metrics", &out)
	return out, err
}

func (c *client) task(taskID string) (domain.TaskRecord, error) {
	var out taskResponse
	if err := c.getJSON("/api/tasks/"+taskID, &out); err != nil {
		return domain.TaskRecord{}, err
	}
	return out.Task, nil
}

func (c *client) agentStatus() ([]domain.AgentHealth, error) {
	var out agentStatusResponse
	if err := c.getJSON("/api/agents/status", &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

func (c *client) distribute(task string, strategy domain.StrategyName) (distributeResponse, error) {
	var out distributeResponse
	err := c.postJSON("/api/distribute", map[string]any{"task": task, "strategy": strategy}, &out)
	return out, err
}

// watch reads task events from /ws until ctx ends and calls onEvent for each.
// Connection failures are retried after a pause.
func (c *client) watch(ctx context.Context, onEvent func(streamFrame), onError func(error)) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	for ctx.Err() == nil {
		conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{"X-User": []string{c.user}},
		})
		if err != nil {
			onError(err)
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		for {
			var frame streamFrame
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				if ctx.Err() == nil {
					onError(err)
				}
				break
			}
			onEvent(frame)
		}
		sleepCtx(ctx, time.Second)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *client) healthy() bool {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 300
}

func (c *client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) postJSON(path string, in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	if c.user != "" {
		req.Header.Set("X-User", c.user)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
