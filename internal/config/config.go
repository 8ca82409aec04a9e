// Package config provides unified configuration loading for plantsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/pathutil"
	"github.com/nvandessel/plantsim/internal/simulation"
	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the data directory.
const FileName = "config.yaml"

// PlantConfig contains all plantsim configuration settings.
type PlantConfig struct {
	// Simulation controls the tick cadence and the random source.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Scenario toggles the scripted storyline.
	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`

	// Heuristic tunes the automated-decision detection for external writes.
	Heuristic simulation.Heuristic `json:"heuristic" yaml:"heuristic"`

	// Coefficients are the correlation weights. Defaults are demo-tuned.
	Coefficients simulation.Coefficients `json:"coefficients" yaml:"coefficients"`

	// Store configures the telemetry history database.
	Store StoreConfig `json:"store" yaml:"store"`

	// MCP configures the protocol binding.
	MCP MCPConfig `json:"mcp" yaml:"mcp"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the engine cadence.
type SimulationConfig struct {
	// Tick is the fixed tick period.
	Tick time.Duration `json:"tick" yaml:"tick"`

	// Seed feeds the random source. 0 seeds from the clock.
	Seed uint64 `json:"seed" yaml:"seed"`

	// SummaryInterval throttles automated-mode status summaries.
	SummaryInterval time.Duration `json:"summary_interval" yaml:"summary_interval"`
}

// ScenarioConfig toggles the one-shot storyline.
type ScenarioConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// StoreConfig configures telemetry history.
type StoreConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite file. Empty means ~/.plantsim/history.db. Supports ~ and ${VAR}.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Retention is how long samples are kept. 0 disables pruning.
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// MCPConfig configures the protocol binding.
type MCPConfig struct {
	// Transport is "stdio" (default) or "http".
	Transport string `json:"transport" yaml:"transport"`

	// Addr is the HTTP listen address. Only used by the http transport.
	Addr string `json:"addr" yaml:"addr"`

	// Path is the HTTP endpoint path. Only used by the http transport.
	Path string `json:"path" yaml:"path"`

	// WriteRate is the sustained plant_write rate per minute.
	WriteRate float64 `json:"write_rate" yaml:"write_rate"`

	// WriteBurst is the plant_write burst size.
	WriteBurst int `json:"write_burst" yaml:"write_burst"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address for /metrics and /health.
	Addr string `json:"addr" yaml:"addr"`
}

// LoggingConfig configures plantsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables event logging to ~/.plantsim/events.jsonl.
	Level string `json:"level" yaml:"level"`

	// Format selects the handler: "text" (default), "json", or "pretty".
	Format string `json:"format" yaml:"format"`
}

// Default returns a PlantConfig with sensible defaults.
func Default() *PlantConfig {
	return &PlantConfig{
		Simulation: SimulationConfig{
			Tick:            constants.DefaultTickPeriod,
			SummaryInterval: constants.DefaultSummaryInterval,
		},
		Scenario:     ScenarioConfig{Enabled: true},
		Heuristic:    simulation.DefaultHeuristic(),
		Coefficients: simulation.DefaultCoefficients(),
		Store: StoreConfig{
			Enabled:   true,
			Retention: constants.DefaultRetention,
		},
		MCP: MCPConfig{
			Transport:  "stdio",
			Addr:       constants.DefaultMCPAddr,
			Path:       constants.DefaultMCPPath,
			WriteRate:  constants.DefaultWriteRate,
			WriteBurst: constants.DefaultWriteBurst,
		},
		Metrics: MetricsConfig{
			Addr: constants.DefaultMetricsAddr,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.plantsim/config.yaml.
func DefaultPath() (string, error) {
	dir, err := pathutil.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.plantsim/config.yaml -> environment variables
func Load() (*PlantConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads an explicit config file, then applies environment overrides.
// An empty path behaves like Load.
func LoadPath(path string) (*PlantConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*PlantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", pathutil.RedactPath(path), err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)
	config.MCP.Addr = expandEnvVars(config.MCP.Addr)
	config.Metrics.Addr = expandEnvVars(config.Metrics.Addr)

	return config, nil
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *PlantConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file %s: %w", pathutil.RedactPath(path), err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *PlantConfig) Validate() error {
	if c.Simulation.Tick <= 0 {
		return fmt.Errorf("simulation.tick must be positive, got %v", c.Simulation.Tick)
	}
	if c.Simulation.SummaryInterval < 0 {
		return fmt.Errorf("simulation.summary_interval must be non-negative, got %v", c.Simulation.SummaryInterval)
	}

	h := c.Heuristic
	if h.ObservationThreshold < 0 {
		return fmt.Errorf("heuristic.observation_threshold must be non-negative, got %f", h.ObservationThreshold)
	}
	if h.DecisionThreshold < h.ObservationThreshold {
		return fmt.Errorf("heuristic.decision_threshold (%f) must not be below observation_threshold (%f)",
			h.DecisionThreshold, h.ObservationThreshold)
	}
	if h.DecisionDelay < 0 {
		return fmt.Errorf("heuristic.decision_delay must be non-negative, got %v", h.DecisionDelay)
	}

	co := c.Coefficients
	if co.BaselineEnergy <= 0 {
		return fmt.Errorf("coefficients.baseline_energy must be positive, got %f", co.BaselineEnergy)
	}
	for name, rate := range map[string]float64{
		"kpi_pull_rate":           co.KPIPullRate,
		"recirculation_pull_rate": co.RecirculationPullRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("coefficients.%s must be between 0 and 1, got %f", name, rate)
		}
	}

	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must be non-negative, got %v", c.Store.Retention)
	}

	validTransports := map[string]bool{"": true, "stdio": true, "http": true}
	if !validTransports[c.MCP.Transport] {
		return fmt.Errorf("invalid mcp transport: %s (valid: stdio, http)", c.MCP.Transport)
	}
	if c.MCP.Transport == "http" {
		if c.MCP.Addr == "" {
			return fmt.Errorf("mcp.addr is required for the http transport")
		}
		if !strings.HasPrefix(c.MCP.Path, "/") {
			return fmt.Errorf("mcp.path must start with /, got %q", c.MCP.Path)
		}
	}
	if c.MCP.WriteRate < 0 || c.MCP.WriteBurst < 0 {
		return fmt.Errorf("mcp write_rate and write_burst must be non-negative")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "text": true, "json": true, "pretty": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: text, json, pretty)", c.Logging.Format)
	}

	return nil
}

// StorePath resolves the history database path, defaulting to ~/.plantsim/history.db.
func (c *PlantConfig) StorePath() (string, error) {
	if c.Store.Path == "" {
		dir, err := pathutil.DataDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, constants.DefaultHistoryFile), nil
	}
	return pathutil.ExpandHome(c.Store.Path)
}

// Engine builds the simulation config. Logger and observers are wired by the caller.
func (c *PlantConfig) Engine() simulation.Config {
	cfg := simulation.Config{
		TickPeriod:      c.Simulation.Tick,
		SummaryInterval: c.Simulation.SummaryInterval,
		Coefficients:    c.Coefficients,
		Heuristic:       c.Heuristic,
		Seed:            c.Simulation.Seed,
	}
	if c.Scenario.Enabled {
		cfg.Script = simulation.DefaultScript()
	}
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *PlantConfig) {
	if v := os.Getenv("PLANTSIM_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.Tick = d
		}
	}

	if v := os.Getenv("PLANTSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv("PLANTSIM_SCENARIO"); v != "" {
		config.Scenario.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("PLANTSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("PLANTSIM_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	if v := os.Getenv("PLANTSIM_MCP_TRANSPORT"); v != "" {
		config.MCP.Transport = v
	}

	if v := os.Getenv("PLANTSIM_MCP_ADDR"); v != "" {
		config.MCP.Addr = v
	}

	if v := os.Getenv("PLANTSIM_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("PLANTSIM_METRICS_ADDR"); v != "" {
		config.Metrics.Enabled = true
		config.Metrics.Addr = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
