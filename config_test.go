package statesync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	tasks := DefaultStrategy
	tasks.Resolution = LastWriteWins
	require.NoError(t, reg.Register("tasks", tasks))

	got, err := reg.Lookup("tasks")
	require.NoError(t, err)
	assert.Equal(t, LastWriteWins, got.Resolution)

	// Unknown data type without a default is an error, never a silent
	// fallback to another type's configuration.
	_, err = reg.Lookup("notes")
	assert.Error(t, err)

	require.NoError(t, reg.SetDefault(DefaultStrategy))
	got, err = reg.Lookup("notes")
	require.NoError(t, err)
	assert.Equal(t, ServerWins, got.Resolution)
}

func TestRegistryRejectsInvalidStrategy(t *testing.T) {
	reg := NewRegistry()

	bad := DefaultStrategy
	bad.SyncInterval = 0
	assert.Error(t, reg.Register("tasks", bad))

	bad = DefaultStrategy
	bad.RetryAttempts = -1
	assert.Error(t, reg.Register("tasks", bad))

	bad = DefaultStrategy
	bad.Priority = Priority(7)
	assert.Error(t, reg.SetDefault(bad))

	assert.Error(t, reg.Register("", DefaultStrategy))
}

func TestRegistryDataTypesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"tasks", "analytics", "notes"} {
		require.NoError(t, reg.Register(name, DefaultStrategy))
	}
	assert.Equal(t, []string{"analytics", "notes", "tasks"}, reg.DataTypes())
}

const yamlConfig = `
version: "1"
default:
  sync_interval_ms: 60000
  conflict_resolution: server_wins
  retry_attempts: 3
  retry_delay_ms: 1000
  priority: normal
data_types:
  tasks:
    sync_interval_ms: 30000
    optimistic_updates: true
    conflict_resolution: last_write_wins
    retry_attempts: 3
    retry_delay_ms: 1000
    priority: high
  analytics:
    sync_interval_ms: 300000
    conflict_resolution: server_wins
    retry_attempts: 1
    retry_delay_ms: 5000
    priority: low
    batch_updates: true
`

func TestLoadRegistryYAML(t *testing.T) {
	reg, err := LoadRegistry([]byte(yamlConfig), "yaml")
	require.NoError(t, err)

	tasks, err := reg.Lookup("tasks")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, tasks.SyncInterval)
	assert.True(t, tasks.OptimisticUpdates)
	assert.Equal(t, LastWriteWins, tasks.Resolution)
	assert.Equal(t, PriorityHigh, tasks.Priority)
	assert.False(t, tasks.BatchUpdates)

	analytics, err := reg.Lookup("analytics")
	require.NoError(t, err)
	assert.True(t, analytics.BatchUpdates)
	assert.Equal(t, 5*time.Second, analytics.RetryDelay)

	// The file's default section applies to unregistered types.
	other, err := reg.Lookup("anything")
	require.NoError(t, err)
	assert.Equal(t, ServerWins, other.Resolution)
}

func TestLoadRegistryJSON(t *testing.T) {
	jsonConfig := `{
		"version": "1",
		"data_types": {
			"notes": {
				"sync_interval_ms": 120000,
				"conflict_resolution": "manual",
				"retry_attempts": 2,
				"retry_delay_ms": 500,
				"priority": "normal"
			}
		}
	}`
	reg, err := LoadRegistry([]byte(jsonConfig), "json")
	require.NoError(t, err)

	notes, err := reg.Lookup("notes")
	require.NoError(t, err)
	assert.Equal(t, ManualReview, notes.Resolution)

	_, err = reg.Lookup("tasks")
	assert.Error(t, err, "no default section means unknown types fail")
}

func TestLoadRegistryFailsFast(t *testing.T) {
	bad := `
data_types:
  tasks:
    sync_interval_ms: 30000
    conflict_resolution: newest_wins
    retry_attempts: 3
    retry_delay_ms: 1000
    priority: high
`
	_, err := LoadRegistry([]byte(bad), "yaml")
	assert.Error(t, err, "unknown strategy name fails the whole load")

	_, err = LoadRegistry([]byte("{not yaml"), "yaml")
	assert.Error(t, err)

	_, err = LoadRegistry([]byte("{}"), "toml")
	assert.Error(t, err)
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o644))

	reg, err := LoadRegistryFromFile(path)
	require.NoError(t, err)
	_, err = reg.Lookup("tasks")
	assert.NoError(t, err)

	_, err = LoadRegistryFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "json", detectFormat("config.json"))
	assert.Equal(t, "yaml", detectFormat("config.yaml"))
	assert.Equal(t, "yaml", detectFormat("config.yml"))
	assert.Equal(t, "yaml", detectFormat("config"))
}
