package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Orchestrator OrchestratorRuntimeConfig `toml:"orchestrator"`
	History      HistoryConfig             `toml:"history"`
	Breaker      BreakerConfig             `toml:"breaker"`
	Log          LogConfig                 `toml:"log"`
	Metrics      MetricsConfig             `toml:"metrics"`
	Agents       []AgentConfig             `toml:"agents"`
	Raw          map[string]any            `toml:"-"`
	Path         string                    `toml:"-"`
}

type AgentConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

type OrchestratorRuntimeConfig struct {
	Addr              string   `toml:"addr"`
	DefaultStrategy   string   `toml:"default_strategy"`
	DefaultAgents     []string `toml:"default_agents"`
	AgentTimeoutMS    int      `toml:"agent_timeout_ms"`
	HealthTimeoutMS   int      `toml:"health_timeout_ms"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

type HistoryConfig struct {
	Backend  string `toml:"backend"`
	Capacity int    `toml:"capacity"`
	DBPath   string `toml:"db_path"`
}

type BreakerConfig struct {
	MaxFailures   uint32 `toml:"max_failures"`
	OpenTimeoutMS int    `toml:"open_timeout_ms"`
	IntervalMS    int    `toml:"interval_ms"`
}

type LogConfig struct {
	Level       string   `toml:"level"`
	Format      string   `toml:"format"`
	OutputPaths []string `toml:"output_paths"`
}

type MetricsConfig struct {
	Namespace string `toml:"namespace"`
}

// Default mirrors a two-agent local deployment and is used when no config file exists.
func Default() Config {
	return Config{
		Orchestrator: OrchestratorRuntimeConfig{
			Addr:          ":3000",
			DefaultAgents: []string{"agent1", "agent2"},
		},
		Agents: []AgentConfig{
			{ID: "agent1", Name: "Local AI Agent", URL: "http://localhost:3001"},
			{ID: "agent2", Name: "External AI Agent", URL: "http://localhost:3002"},
		},
	}
}

// Load reads the TOML file at path. An empty path falls back to the default location,
// and a missing default file yields Default().
func Load(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	resolved := path
	if !explicit {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}
	cfg, err := Parse(string(bytes))
	if err != nil {
		return Config{}, err
	}
	cfg.Path = resolved
	return cfg, nil
}

func Parse(data string) (Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	cfg.Raw = raw
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if _, err := url.ParseRequestURI(strings.TrimSpace(a.URL)); err != nil {
			return fmt.Errorf("agents[%d] %s: invalid url %q: %w", i, id, a.URL, err)
		}
	}
	switch strings.ToLower(c.History.Backend) {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("history: unsupported backend %q", c.History.Backend)
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agent_orchestrator/config.toml"
	}
	return filepath.Join(home, ".agent_orchestrator", "config.toml")
}
