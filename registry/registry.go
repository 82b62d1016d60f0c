// Package registry loads and validates scenario definitions.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/threadbeat/thrum/types"
)

// DefaultScenarioTimeout applies to scenarios that do not declare their
// own timeout.
const DefaultScenarioTimeout = 10 * time.Second

// Registry manages scenario sources and their configurations.
type Registry struct {
	config    Config
	scenarios []types.ScenarioConfig
	mu        sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log            log.Logger
	ScenarioFile   string
	DefaultTimeout time.Duration
}

// NewRegistry creates a registry and loads the scenario file.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.ScenarioFile == "" {
		return nil, fmt.Errorf("scenario file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultScenarioTimeout
	}

	r := &Registry{config: cfg}
	if err := r.loadScenarios(cfg.ScenarioFile); err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	cfg.Log.Debug("Registry loaded", "len(scenarios)", len(r.scenarios))
	return r, nil
}

// loadScenarios reads, parses and validates the scenario file.
func (r *Registry) loadScenarios(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var file types.ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return fmt.Errorf("no scenarios defined in %s", path)
	}

	seen := make(map[string]bool)
	for i := range file.Scenarios {
		sc := &file.Scenarios[i]
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("invalid scenario: %w", err)
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scenario name %q", sc.Name)
		}
		seen[sc.Name] = true
		if sc.Timeout == nil {
			t := r.config.DefaultTimeout
			sc.Timeout = &t
		}
		if sc.Repeat == 0 {
			sc.Repeat = 1
		}
	}

	r.scenarios = file.Scenarios
	return nil
}

// Scenarios returns a copy of every loaded scenario, in file order.
func (r *Registry) Scenarios() []types.ScenarioConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ScenarioConfig, len(r.scenarios))
	copy(out, r.scenarios)
	return out
}

// ScenarioByName returns the named scenario, if loaded.
func (r *Registry) ScenarioByName(name string) (types.ScenarioConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sc := range r.scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return types.ScenarioConfig{}, false
}
