package main

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"agent_orchestrator/internal/domain"
)

func renderTasksTable(table *tview.Table, tasks []domain.TaskRecord, selectedTaskID string) {
	table.Clear()
	headers := []string{"Task", "Strategy", "Result", "Rate", "Time", "Prompt"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, t := range tasks {
		row := i + 1
		result := "[green]ok"
		if !t.Result.Success {
			result = "[red]failed"
		}
		table.SetCell(row, 0, tview.NewTableCell(shortID(t.ID)))
		table.SetCell(row, 1, tview.NewTableCell(string(t.Strategy)))
		table.SetCell(row, 2, tview.NewTableCell(result))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.0f%%", t.Result.SuccessRate*100)))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.0fms", t.ProcessingTimeMS)))
		table.SetCell(row, 5, tview.NewTableCell(trimLine(t.Task, 60)).SetExpansion(1))
		if t.ID == selectedTaskID {
			table.Select(row, 0)
		}
	}
}

// newestFirst reverses the oldest-first order the API returns.
func newestFirst(tasks []domain.TaskRecord) []domain.TaskRecord {
	out := slices.Clone(tasks)
	slices.Reverse(out)
	return out
}

func renderOverview(ov domain.HistoryOverview) string {
	return fmt.Sprintf(
		"tasks [white]%d[-]  ok [green]%d[-]  failed [red]%d[-]  success [yellow]%.1f%%[-]  avg [white]%.0fms[-]",
		ov.TotalTasks, ov.SuccessfulTasks, ov.FailedTasks, ov.SuccessRate, ov.AverageProcessingTimeMS,
	)
}

func renderAgents(metrics map[string]domain.AgentMetrics, health []domain.AgentHealth) string {
	status := make(map[string]domain.AgentHealth, len(health))
	for _, h := range health {
		status[h.ID] = h
	}
	ids := make([]string, 0, len(metrics))
	for id := range metrics {
		ids = append(ids, id)
	}
	for id := range status {
		if _, ok := metrics[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return "(no agents)"
	}

	var b strings.Builder
	for _, id := range ids {
		m := metrics[id]
		state := "[gray]unknown[-]"
		if h, ok := status[id]; ok {
			switch h.Status {
			case domain.AgentStatusOnline:
				state = "[green]online[-]"
			case domain.AgentStatusOffline:
				state = "[red]offline[-]"
			}
		}
		rate := 0.0
		if m.TotalRequests > 0 {
			rate = float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100
		}
		fmt.Fprintf(&b, "%-10s %s  calls=%d ok=%.0f%% avg=%.0fms\n", id, state, m.TotalRequests, rate, m.AverageResponseTimeMS)
	}
	return b.String()
}

func renderTaskDetail(rec domain.TaskRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%s[-] %s by %s at %s\n", rec.ID, rec.Strategy, rec.User, rec.CreatedAt.Format("15:04:05"))
	fmt.Fprintf(&b, "agents: %s\n", strings.Join(rec.Agents, ", "))
	fmt.Fprintf(&b, "task: %s\n", trimLine(rec.Task, 200))
	if rec.Result.Error != "" {
		fmt.Fprintf(&b, "[red]error: %s[-]\n", rec.Result.Error)
	}
	if rec.Result.ChosenAgent != "" {
		fmt.Fprintf(&b, "chosen agent: %s\n", rec.Result.ChosenAgent)
	}
	if rec.Result.Consensus != nil {
		fmt.Fprintf(&b, "consensus: %s (confidence %.2f)\n", rec.Result.Consensus.Agent, rec.Result.Consensus.Confidence())
	}
	b.WriteString("\n")
	for i, o := range rec.Result.Outcomes {
		if o.Succeeded() {
			fmt.Fprintf(&b, "%d. [green]%s[-] %.0fms %s\n", i+1, o.Agent, o.ElapsedMS, trimLine(string(o.Response), 160))
			continue
		}
		fmt.Fprintf(&b, "%d. [red]%s[-] %.0fms %s\n", i+1, o.Agent, o.ElapsedMS, trimLine(o.Error, 160))
	}
	return b.String()
}

func trimLine(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
