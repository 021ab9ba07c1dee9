package agent

import (
	"sort"
	"strings"

	"agent_orchestrator/internal/config"
	"agent_orchestrator/internal/domain"
)

// Directory is the static agent id -> address table built from configuration.
type Directory struct {
	agents map[string]domain.Agent
	order  []string
}

func NewDirectory(agents []domain.Agent) *Directory {
	d := &Directory{agents: make(map[string]domain.Agent, len(agents))}
	for _, a := range agents {
		a.ID = strings.TrimSpace(a.ID)
		a.URL = strings.TrimRight(strings.TrimSpace(a.URL), "/")
		if a.ID == "" {
			continue
		}
		if _, ok := d.agents[a.ID]; !ok {
			d.order = append(d.order, a.ID)
		}
		d.agents[a.ID] = a
	}
	return d
}

func DirectoryFromConfig(items []config.AgentConfig) *Directory {
	agents := make([]domain.Agent, 0, len(items))
	for _, item := range items {
		agents = append(agents, domain.Agent{ID: item.ID, Name: item.Name, URL: item.URL})
	}
	return NewDirectory(agents)
}

func (d *Directory) Lookup(agentID string) (domain.Agent, bool) {
	a, ok := d.agents[agentID]
	if !ok || a.URL == "" {
		return domain.Agent{}, false
	}
	return a, true
}

// Known reports whether agentID has an address.
func (d *Directory) Known(agentID string) bool {
	_, ok := d.Lookup(agentID)
	return ok
}

// List returns agents in configuration order.
func (d *Directory) List() []domain.Agent {
	out := make([]domain.Agent, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.agents[id])
	}
	return out
}

func (d *Directory) IDs() []string {
	ids := append([]string(nil), d.order...)
	sort.Strings(ids)
	return ids
}

func (d *Directory) Len() int {
	return len(d.order)
}
