package statesync

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchRegistryReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o644))

	var mu sync.Mutex
	var loaded []*Registry
	w, err := WatchRegistry(path, func(reg *Registry) {
		mu.Lock()
		loaded = append(loaded, reg)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	updated := `
data_types:
  tasks:
    sync_interval_ms: 15000
    conflict_resolution: client_wins
    retry_attempts: 1
    retry_delay_ms: 100
    priority: critical
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loaded) > 0
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	reg := loaded[len(loaded)-1]
	mu.Unlock()

	tasks, err := reg.Lookup("tasks")
	require.NoError(t, err)
	assert.Equal(t, ClientWins, tasks.Resolution)
	assert.Equal(t, PriorityCritical, tasks.Priority)
}

func TestWatchRegistryBadReloadReportsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o644))

	var mu sync.Mutex
	var changes int
	var errs []error
	w, err := WatchRegistry(path,
		func(*Registry) {
			mu.Lock()
			changes++
			mu.Unlock()
		},
		func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})
	require.NoError(t, err)
	defer w.Close()

	bad := `
data_types:
  tasks:
    conflict_resolution: bogus
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, changes, "a failed reload must not invoke onChange")
}

func TestWatchRegistryRequiresCallback(t *testing.T) {
	_, err := WatchRegistry("ignored.yaml", nil, nil)
	assert.Error(t, err)
}
