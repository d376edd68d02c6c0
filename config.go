package statesync

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	syncErrors "github.com/frndly/statesync/errors"
)

// Strategy is the static per-data-type sync configuration.
type Strategy struct {
	// SyncInterval is the cadence of the background dirty-component sweep
	// for this data type.
	SyncInterval time.Duration

	// OptimisticUpdates enqueues an update operation immediately on local
	// state change, before server confirmation.
	OptimisticUpdates bool

	// Resolution settles conflicts detected for this data type.
	Resolution ResolutionStrategy

	// RetryAttempts bounds how many times a failed operation is retried.
	RetryAttempts int

	// RetryDelay is the base backoff delay for retries.
	RetryDelay time.Duration

	// Priority is the default queue priority for this data type's
	// operations.
	Priority Priority

	// BatchUpdates routes update operations through a batch processor
	// instead of dispatching them individually.
	BatchUpdates bool
}

// DefaultStrategy is used for data types registered without explicit
// configuration and as the registry default when none is supplied.
var DefaultStrategy = Strategy{
	SyncInterval:      60 * time.Second,
	OptimisticUpdates: false,
	Resolution:        ServerWins,
	RetryAttempts:     3,
	RetryDelay:        time.Second,
	Priority:          PriorityNormal,
	BatchUpdates:      false,
}

func (s Strategy) validate() error {
	if s.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %v", s.SyncInterval)
	}
	if s.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must not be negative, got %d", s.RetryAttempts)
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %v", s.RetryDelay)
	}
	switch s.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
	default:
		return fmt.Errorf("unknown priority %d", int(s.Priority))
	}
	return nil
}

// Registry maps data-type names to their strategies. It is validated
// eagerly: Register rejects invalid strategies, and Lookup of an unknown
// data type fails unless a default strategy was explicitly set. There is
// no silent fallback to another data type's configuration.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	def        *Strategy
}

// NewRegistry creates an empty registry with no default strategy.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds or replaces the strategy for a data type.
func (r *Registry) Register(dataType string, s Strategy) error {
	if dataType == "" {
		return syncErrors.NewConfigError(fmt.Errorf("data type name must not be empty"))
	}
	if err := s.validate(); err != nil {
		return syncErrors.NewConfigError(fmt.Errorf("data type %q: %w", dataType, err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[dataType] = s
	return nil
}

// SetDefault installs the strategy used for unregistered data types.
func (r *Registry) SetDefault(s Strategy) error {
	if err := s.validate(); err != nil {
		return syncErrors.NewConfigError(fmt.Errorf("default strategy: %w", err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = &s
	return nil
}

// Lookup resolves the strategy for a data type. Unknown data types get
// the default strategy if one was set, otherwise an error.
func (r *Registry) Lookup(dataType string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[dataType]; ok {
		return s, nil
	}
	if r.def != nil {
		return *r.def, nil
	}
	return Strategy{}, syncErrors.NewConfigError(fmt.Errorf("no strategy registered for data type %q and no default set", dataType))
}

// DataTypes returns the registered data-type names in sorted order.
func (r *Registry) DataTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// strategyConfig is the file representation of a Strategy.
type strategyConfig struct {
	SyncIntervalMs     int    `json:"sync_interval_ms" yaml:"sync_interval_ms"`
	OptimisticUpdates  bool   `json:"optimistic_updates" yaml:"optimistic_updates"`
	ConflictResolution string `json:"conflict_resolution" yaml:"conflict_resolution"`
	RetryAttempts      int    `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelayMs       int    `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	Priority           string `json:"priority" yaml:"priority"`
	BatchUpdates       bool   `json:"batch_updates" yaml:"batch_updates"`
}

// registryConfig is the complete strategy table file structure.
type registryConfig struct {
	Version   string                    `json:"version" yaml:"version"`
	Default   *strategyConfig           `json:"default,omitempty" yaml:"default,omitempty"`
	DataTypes map[string]strategyConfig `json:"data_types" yaml:"data_types"`
}

// LoadRegistryFromFile loads and validates a strategy table from a YAML
// or JSON file. Any invalid entry fails the whole load.
func LoadRegistryFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, syncErrors.NewConfigError(fmt.Errorf("failed to read config file %s: %w", path, err))
	}
	return LoadRegistry(data, detectFormat(path))
}

// LoadRegistry parses a strategy table from raw bytes in the given
// format ("yaml" or "json").
func LoadRegistry(data []byte, format string) (*Registry, error) {
	var cfg registryConfig
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, syncErrors.NewConfigError(fmt.Errorf("failed to parse YAML config: %w", err))
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, syncErrors.NewConfigError(fmt.Errorf("failed to parse JSON config: %w", err))
		}
	default:
		return nil, syncErrors.NewConfigError(fmt.Errorf("unsupported config format %q", format))
	}

	reg := NewRegistry()
	if cfg.Default != nil {
		def, err := cfg.Default.toStrategy()
		if err != nil {
			return nil, syncErrors.NewConfigError(fmt.Errorf("default strategy: %w", err))
		}
		if err := reg.SetDefault(def); err != nil {
			return nil, err
		}
	}
	for name, sc := range cfg.DataTypes {
		s, err := sc.toStrategy()
		if err != nil {
			return nil, syncErrors.NewConfigError(fmt.Errorf("data type %q: %w", name, err))
		}
		if err := reg.Register(name, s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (sc strategyConfig) toStrategy() (Strategy, error) {
	resolution, err := ParseStrategy(sc.ConflictResolution)
	if err != nil {
		return Strategy{}, err
	}
	priority, err := ParsePriority(sc.Priority)
	if err != nil {
		return Strategy{}, err
	}
	s := Strategy{
		SyncInterval:      time.Duration(sc.SyncIntervalMs) * time.Millisecond,
		OptimisticUpdates: sc.OptimisticUpdates,
		Resolution:        resolution,
		RetryAttempts:     sc.RetryAttempts,
		RetryDelay:        time.Duration(sc.RetryDelayMs) * time.Millisecond,
		Priority:          priority,
		BatchUpdates:      sc.BatchUpdates,
	}
	return s, s.validate()
}

func detectFormat(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "yaml"
	}
	switch strings.ToLower(path[idx+1:]) {
	case "json":
		return "json"
	default:
		return "yaml"
	}
}
