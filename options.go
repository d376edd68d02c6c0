package statesync

import (
	"log/slog"
	"time"

	"github.com/frndly/statesync/logging"
)

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithLoggingConfig builds the manager's logger from a logging.Config,
// scoped to the manager component.
func WithLoggingConfig(cfg logging.Config) Option {
	return func(m *Manager) { m.logger = logging.NewLogger(cfg).WithComponent("manager").Logger }
}

// WithStrategies installs the validated strategy registry. Without this
// option every data type resolves to DefaultStrategy.
func WithStrategies(reg *Registry) Option {
	return func(m *Manager) { m.registry = reg }
}

// WithEnvironment injects the connectivity/visibility source.
func WithEnvironment(env Environment) Option {
	return func(m *Manager) { m.env = env }
}

// WithValidator rejects malformed payloads before they enter the queue.
func WithValidator(v Validator) Option {
	return func(m *Manager) { m.validator = v }
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithQueueStore persists queued operations across restarts. Init
// performs a recovery sweep re-enqueueing whatever the store holds.
func WithQueueStore(qs QueueStore) Option {
	return func(m *Manager) { m.queueStore = qs }
}

// WithMaxConcurrent bounds how many operations may be processing at once.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrent = n
		}
	}
}

// WithMaxQueueSize bounds the live queue.
func WithMaxQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxQueue = n
		}
	}
}

// WithBatchSize sets the flush threshold for batch processors.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithPollInterval sets how often the environment is polled for
// connectivity transitions.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithMetricsWindow sets the rolling window of the performance collector.
func WithMetricsWindow(n int) Option {
	return func(m *Manager) { m.metrics = NewPerfCollector(n) }
}

// WithRetryPolicy overrides the backoff shape shared by all data types.
// Per-data-type strategies still control the base delay and attempt cap.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.retryPolicy = p }
}

// WithOfflineSync controls whether operations queued while offline are
// parked in the offline queue (true, the default) or rejected into the
// live queue regardless of connectivity (false).
func WithOfflineSync(enabled bool) Option {
	return func(m *Manager) { m.offlineSync = enabled }
}

// WithSyncDisabled constructs the manager with syncing globally disabled;
// queued operations are silently accepted but not processed until
// SetEnabled(true).
func WithSyncDisabled() Option {
	return func(m *Manager) { m.enabled = false }
}

// opOptions carries the per-call knobs shared by QueueOperation and
// UpdateComponentState.
type opOptions struct {
	priority     Priority
	hasPriority  bool
	ignoreFields []string
	source       string
	key          string
	component    string
}

// QueueOption tunes a single queued operation or component update.
type QueueOption func(*opOptions)

// WithPriority overrides the data type's default priority.
func WithPriority(p Priority) QueueOption {
	return func(o *opOptions) {
		o.priority = p
		o.hasPriority = true
	}
}

// WithSource tags where the operation originated (e.g. "timer").
func WithSource(source string) QueueOption {
	return func(o *opOptions) { o.source = source }
}

// WithKey overrides the cache key the operation targets.
func WithKey(key string) QueueOption {
	return func(o *opOptions) { o.key = key }
}

// ForComponent associates the operation with a registered component.
func ForComponent(id string) QueueOption {
	return func(o *opOptions) { o.component = id }
}

// IgnoreFields excludes top-level fields (typically volatile timestamps)
// from the change detection of UpdateComponentState.
func IgnoreFields(fields ...string) QueueOption {
	return func(o *opOptions) { o.ignoreFields = append(o.ignoreFields, fields...) }
}
