package statesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/frndly/statesync/errors"
)

// Manager orchestrates the sync engine: it owns the live and offline
// queues, the active-operation set, the per-data-type sweep timers, the
// component registry, and the conflict registry. One Manager instance is
// constructed by the application's composition root and carries its own
// lifecycle (Init, Start, Stop, Close); multiple isolated instances can
// coexist, which is what the tests rely on.
type Manager struct {
	store      Store
	transport  Transport
	queueStore QueueStore
	env        Environment
	validator  Validator
	registry   *Registry
	logger     *slog.Logger
	metrics    *PerfCollector
	clock      Clock

	maxConcurrent int
	maxQueue      int
	batchSize     int
	pollInterval  time.Duration
	retryPolicy   RetryPolicy
	offlineSync   bool

	mu          sync.Mutex
	enabled     bool
	initialized bool
	running     bool
	online      bool
	live        *PriorityQueue
	offline     []*Operation
	active      map[string]*Operation
	components  map[string]*componentState
	conflicts   map[string]*conflictEntry
	batchers    map[string]*BatchProcessor
	runCtx      context.Context
	stopCh      chan struct{}
	wg          sync.WaitGroup

	subsMu  sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// conflictEntry pairs an open conflict with the operation blocked on it.
type conflictEntry struct {
	conflict *Conflict
	op       *Operation
}

// ManagerStatus is the snapshot returned by Status.
type ManagerStatus struct {
	Running          bool
	Initialized      bool
	Online           bool
	QueueSize        int
	ActiveOperations int
	OfflineQueueSize int
	Components       int
	OpenConflicts    int
	Perf             PerfStats
}

// New constructs a Manager around the injected store and transport.
// Both are required; everything else has a default that options can
// override.
func New(store Store, transport Transport, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, syncErrors.New(syncErrors.OpInit, fmt.Errorf("store is required"))
	}
	if transport == nil {
		return nil, syncErrors.New(syncErrors.OpInit, fmt.Errorf("transport is required"))
	}

	m := &Manager{
		store:         store,
		transport:     transport,
		env:           AlwaysOnline{},
		logger:        slog.Default(),
		metrics:       NewPerfCollector(DefaultMetricsWindow),
		clock:         systemClock{},
		maxConcurrent: DefaultMaxConcurrent,
		maxQueue:      DefaultMaxQueueSize,
		batchSize:     DefaultBatchSize,
		pollInterval:  DefaultPollInterval,
		retryPolicy:   DefaultRetryPolicy,
		offlineSync:   true,
		enabled:       true,
		active:        make(map[string]*Operation),
		components:    make(map[string]*componentState),
		conflicts:     make(map[string]*conflictEntry),
		batchers:      make(map[string]*BatchProcessor),
		subs:          make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		reg := NewRegistry()
		if err := reg.SetDefault(DefaultStrategy); err != nil {
			return nil, err
		}
		m.registry = reg
	}
	m.live = NewPriorityQueue(m.maxQueue)
	return m, nil
}

// Init prepares the manager: it probes the cache store, sets up one
// batch processor per batching data type, and re-enqueues any operations
// a previous run left behind in the queue store. Init is idempotent and
// fails loudly when a dependency is unavailable; the manager never
// continues in a silently degraded mode.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if _, err := m.store.Get(ctx, "statesync/init-probe"); err != nil {
		m.logger.Error("Cache store unavailable during init", "error", err)
		return syncErrors.NewStorageError(syncErrors.OpInit, err)
	}

	var recovered []*Operation
	if m.queueStore != nil {
		ops, err := m.queueStore.List(ctx)
		if err != nil {
			m.logger.Error("Queue store recovery sweep failed", "error", err)
			return syncErrors.NewStorageError(syncErrors.OpInit, err)
		}
		recovered = ops
	}

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	for _, dataType := range m.registry.DataTypes() {
		strategy, err := m.registry.Lookup(dataType)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		if !strategy.BatchUpdates {
			continue
		}
		dt := dataType
		m.batchers[dt] = NewBatchProcessor(m.batchSize, func(ctx context.Context, ops []*Operation) error {
			return m.flushBatch(ctx, dt, ops)
		}, m.logger)
	}
	requeued := 0
	for _, op := range recovered {
		if op.Status == StatusCompleted || op.Status == StatusFailed {
			continue
		}
		op.Status = StatusPending
		if err := m.live.Enqueue(op); err != nil {
			m.logger.Warn("Recovery sweep stopped: live queue full",
				"requeued", requeued,
				"remaining", len(recovered)-requeued)
			break
		}
		requeued++
	}
	m.initialized = true
	m.mu.Unlock()

	if requeued > 0 {
		m.logger.Info("Recovered persisted operations", "count", requeued)
	}
	m.emit(Initialized{})
	return nil
}

// Start launches the background machinery: one sweep timer per data
// type (enqueueing low-priority sync operations for dirty components at
// that type's interval) and the connectivity monitor. Start triggers
// Init first if it has not completed.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return syncErrors.New(syncErrors.OpInit, fmt.Errorf("manager is already running"))
	}
	m.running = true
	m.runCtx = ctx
	m.stopCh = make(chan struct{})
	m.online = m.env.Online()
	stopCh := m.stopCh

	for _, dataType := range m.registry.DataTypes() {
		strategy, err := m.registry.Lookup(dataType)
		if err != nil {
			continue
		}
		m.wg.Add(1)
		go m.sweepLoop(ctx, stopCh, dataType, strategy.SyncInterval)
	}
	m.wg.Add(1)
	go m.monitorConnectivity(ctx, stopCh)
	m.mu.Unlock()

	m.logger.Info("Sync manager started", "data_types", len(m.registry.DataTypes()))
	m.emit(Started{})
	m.drain()
	return nil
}

// Stop halts scheduling: all timers and the connectivity monitor are
// cleared. In-flight operations are not cancelled; they complete or fail
// naturally and their late completions are tolerated.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.stopCh = nil
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Sync manager stopped")
	m.emit(Stopped{})
	return nil
}

// Close stops the manager and releases the injected collaborators.
func (m *Manager) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}

	var errs []error
	if err := syncErrors.WrapOpComponent(m.transport.Close(), syncErrors.OpClose, "transport"); err != nil {
		errs = append(errs, err)
	}
	if err := syncErrors.WrapOpComponent(m.store.Close(), syncErrors.OpClose, "store"); err != nil {
		errs = append(errs, err)
	}
	if m.queueStore != nil {
		if err := syncErrors.WrapOpComponent(m.queueStore.Close(), syncErrors.OpClose, "queue_store"); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return syncErrors.New(syncErrors.OpClose, fmt.Errorf("multiple close errors: %v", errs))
	}
	return nil
}

// SetEnabled toggles the global sync switch. While disabled, queue
// requests are silently accepted and dropped.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
	if enabled {
		m.drain()
	}
}

// Subscribe registers an event listener and returns its unsubscribe
// function. Delivery is synchronous and in emission order.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *Manager) emit(ev Event) {
	m.subsMu.RLock()
	handlers := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		handlers = append(handlers, fn)
	}
	m.subsMu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Event subscriber panic recovered", "panic", r, "event", fmt.Sprintf("%T", ev))
				}
			}()
			fn(ev)
		}()
	}
}

// RegisterComponent adds a component to the registry. An empty id gets a
// generated one; re-registering an existing id overwrites the entry.
// The returned id is the one actually registered.
func (m *Manager) RegisterComponent(id, dataType string, initial Payload) (string, error) {
	if _, err := m.registry.Lookup(dataType); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	m.components[id] = &componentState{
		id:       id,
		dataType: dataType,
		state:    initial,
	}
	m.mu.Unlock()

	m.logger.Debug("Component registered", "component", id, "data_type", dataType)
	m.emit(ComponentRegistered{ID: id, DataType: dataType})
	return id, nil
}

// UnregisterComponent removes a component from the registry.
func (m *Manager) UnregisterComponent(id string) error {
	m.mu.Lock()
	_, ok := m.components[id]
	delete(m.components, id)
	m.mu.Unlock()

	if !ok {
		return syncErrors.New(syncErrors.OpQueue, fmt.Errorf("component %q is not registered", id))
	}
	m.emit(ComponentUnregistered{ID: id})
	return nil
}

// Component snapshots a registry entry.
func (m *Manager) Component(id string) (ComponentInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	comp, ok := m.components[id]
	if !ok {
		return ComponentInfo{}, false
	}
	return ComponentInfo{
		ID:       comp.id,
		DataType: comp.dataType,
		State:    comp.state.Clone(),
		Dirty:    comp.dirty,
		LastSync: comp.lastSync,
	}, true
}

// UpdateComponentState records a new local state for the component. It
// is a no-op when the state is deep-equal to the current one modulo the
// ignored fields. On a real change the component is marked dirty and,
// if the data type's strategy enables optimistic updates, an update
// operation is enqueued immediately at the caller's requested priority
// (default normal).
func (m *Manager) UpdateComponentState(ctx context.Context, id string, state Payload, opts ...QueueOption) error {
	var o opOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	comp, ok := m.components[id]
	if !ok {
		m.mu.Unlock()
		return syncErrors.New(syncErrors.OpQueue, fmt.Errorf("component %q is not registered", id))
	}
	dataType := comp.dataType
	m.mu.Unlock()

	if m.validator != nil {
		if err := m.validator(dataType, state); err != nil {
			return syncErrors.NewValidationError(syncErrors.OpValidate, err)
		}
	}

	m.mu.Lock()
	comp, ok = m.components[id]
	if !ok {
		m.mu.Unlock()
		return syncErrors.New(syncErrors.OpQueue, fmt.Errorf("component %q is not registered", id))
	}
	if !hasDataChanged(comp.state, state, o.ignoreFields) {
		m.mu.Unlock()
		return nil
	}
	comp.state = state
	comp.dirty = true
	comp.lastSync = m.clock.Now()
	key := comp.cacheKey()
	m.mu.Unlock()

	m.emit(ComponentStateChanged{ID: id, DataType: dataType, State: state})

	strategy, err := m.registry.Lookup(dataType)
	if err != nil {
		return err
	}
	if !strategy.OptimisticUpdates {
		return nil
	}

	queueOpts := []QueueOption{ForComponent(id), WithKey(key)}
	if o.hasPriority {
		queueOpts = append(queueOpts, WithPriority(o.priority))
	} else {
		queueOpts = append(queueOpts, WithPriority(PriorityNormal))
	}
	if o.source != "" {
		queueOpts = append(queueOpts, WithSource(o.source))
	}
	_, err = m.QueueOperation(ctx, OpUpdate, dataType, state, queueOpts...)
	return err
}

// QueueOperation creates an operation and routes it to the live queue,
// or to the offline queue when the environment is unreachable and
// offline sync is enabled. While sync is globally disabled the request
// is silently accepted and dropped, returning (nil, nil).
func (m *Manager) QueueOperation(ctx context.Context, typ OpType, dataType string, payload Payload, opts ...QueueOption) (*Operation, error) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return nil, nil
	}

	if m.validator != nil && payload != nil {
		if err := m.validator(dataType, payload); err != nil {
			return nil, syncErrors.NewValidationError(syncErrors.OpValidate, err)
		}
	}
	strategy, err := m.registry.Lookup(dataType)
	if err != nil {
		return nil, err
	}

	var o opOptions
	for _, opt := range opts {
		opt(&o)
	}

	op := newOperation(typ, dataType, payload, m.clock.Now())
	op.Component = o.component
	op.Source = o.source
	if o.hasPriority {
		op.Priority = o.priority
	} else {
		op.Priority = strategy.Priority
	}
	op.Key = m.operationKey(dataType, payload, &o)

	offline := m.offlineSync && !m.env.Online()
	if offline {
		m.mu.Lock()
		m.offline = append(m.offline, op)
		m.mu.Unlock()
	} else {
		if err := m.live.Enqueue(op); err != nil {
			return nil, err
		}
	}
	if m.queueStore != nil {
		if err := m.queueStore.Append(ctx, op); err != nil {
			m.logger.Warn("Failed to persist queued operation", "operation", op.ID, "error", err)
		}
	}

	m.logger.Debug("Operation queued",
		"operation", op.ID,
		"type", op.Type.String(),
		"data_type", dataType,
		"priority", op.Priority.String(),
		"offline", offline)
	m.emit(OperationQueued{Operation: op, Offline: offline})

	if !offline {
		m.drain()
	}
	return op, nil
}

func (m *Manager) operationKey(dataType string, payload Payload, o *opOptions) string {
	if o.key != "" {
		return o.key
	}
	if payload != nil {
		if id, ok := payload["id"]; ok {
			return fmt.Sprintf("%s/%v", dataType, id)
		}
	}
	if o.component != "" {
		return dataType + "/" + o.component
	}
	return dataType
}

// drain keeps the concurrency window full: while the manager is running
// and the active set is below the cap, it dequeues and dispatches. It is
// re-invoked after every settlement so the window refills as soon as
// work is available.
func (m *Manager) drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || !m.enabled {
		return
	}
	for len(m.active) < m.maxConcurrent {
		op := m.live.Dequeue()
		if op == nil {
			return
		}
		op.Status = StatusProcessing
		m.active[op.ID] = op
		go m.process(m.runCtx, op)
	}
}

func (m *Manager) removeActive(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// dispatchOutcome classifies how a single dispatch attempt settled.
type dispatchOutcome int

const (
	outcomeCompleted dispatchOutcome = iota
	outcomeFailed
	outcomeBlocked
	outcomeRequeued
	outcomeBatched
)

// process runs one operation through dispatch and settles it. Metrics
// are recorded for terminal settlements only; conflict-blocked and
// batched operations settle later through their own paths.
//
// The active slot is released before settling: settlement may put the
// operation straight back on the live queue (conflict resolution, or a
// retry with a near-zero delay), and a requeued operation must never be
// dequeued while its id still occupies a slot.
func (m *Manager) process(ctx context.Context, op *Operation) {
	timer := m.metrics.StartTimer()
	outcome, result, err := m.dispatch(ctx, op)

	m.removeActive(op.ID)

	switch outcome {
	case outcomeCompleted:
		m.metrics.EndTimer(timer, true)
		m.complete(ctx, op, result)
	case outcomeFailed:
		m.metrics.EndTimer(timer, false)
		m.handleFailure(ctx, op, err)
	case outcomeRequeued:
		m.requeue(ctx, op)
	case outcomeBlocked, outcomeBatched:
		// Settled elsewhere: the conflict registry or the batch processor.
	}

	m.drain()
}

// requeue puts a conflict-resolved operation back on the live queue for
// re-dispatch. A full queue is terminal: the operation is failed and
// reported, never silently dropped.
func (m *Manager) requeue(ctx context.Context, op *Operation) {
	if err := m.live.Enqueue(op); err != nil {
		op.Status = StatusFailed
		if m.queueStore != nil {
			if removeErr := m.queueStore.Remove(ctx, op.ID); removeErr != nil {
				m.logger.Warn("Failed to remove failed operation from queue store", "operation", op.ID, "error", removeErr)
			}
		}
		m.logger.Error("Failed to re-enqueue resolved operation", "operation", op.ID, "error", err)
		m.emit(OperationFailed{Operation: op, Err: err})
	}
}

// dispatch routes one operation to the transport, running conflict
// detection for updates and syncs against the server's response.
func (m *Manager) dispatch(ctx context.Context, op *Operation) (dispatchOutcome, Payload, error) {
	strategy, err := m.registry.Lookup(op.DataType)
	if err != nil {
		return outcomeFailed, nil, err
	}

	switch op.Type {
	case OpCreate:
		result, err := m.transport.Create(ctx, op.DataType, op.Payload)
		if err != nil {
			return outcomeFailed, nil, syncErrors.NewNetworkError(syncErrors.OpDispatch, err)
		}
		if result == nil {
			result = op.Payload
		}
		return outcomeCompleted, result, nil

	case OpDelete:
		if err := m.transport.Delete(ctx, op.DataType, op.Payload); err != nil {
			return outcomeFailed, nil, syncErrors.NewNetworkError(syncErrors.OpDispatch, err)
		}
		return outcomeCompleted, nil, nil

	case OpUpdate:
		if strategy.BatchUpdates {
			if batcher := m.batcherFor(op.DataType); batcher != nil {
				batcher.Add(ctx, op)
				return outcomeBatched, nil, nil
			}
		}
		result, err := m.transport.Update(ctx, op.DataType, op.Payload)
		if err != nil {
			return outcomeFailed, nil, syncErrors.NewNetworkError(syncErrors.OpDispatch, err)
		}
		return m.reconcile(op, op.Payload, result, strategy)

	case OpSync:
		server, err := m.transport.Fetch(ctx, op.DataType, op.Key)
		if err != nil {
			return outcomeFailed, nil, syncErrors.NewNetworkError(syncErrors.OpDispatch, err)
		}
		local := op.Payload
		if local == nil {
			cached, err := m.store.Get(ctx, op.Key)
			if err != nil {
				return outcomeFailed, nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
			}
			local = cached
		}
		if server == nil {
			return outcomeCompleted, local, nil
		}
		return m.reconcile(op, local, server, strategy)

	default:
		return outcomeFailed, nil, syncErrors.New(syncErrors.OpDispatch, fmt.Errorf("unknown operation type %v", op.Type))
	}
}

// reconcile compares the local payload with the server's authoritative
// response. No divergence completes with the server view. A divergence
// either blocks on manual review or is resolved by policy; resolved
// operations re-enter the dispatch path with the resolution as payload.
func (m *Manager) reconcile(op *Operation, local, server Payload, strategy Strategy) (dispatchOutcome, Payload, error) {
	conflict := DetectConflict(op.ID, op.DataType, op.Key, local, server, strategy.Resolution, m.clock.Now())
	if conflict == nil {
		if server != nil {
			return outcomeCompleted, server, nil
		}
		return outcomeCompleted, local, nil
	}

	m.logger.Info("Conflict detected",
		"operation", op.ID,
		"data_type", op.DataType,
		"key", op.Key,
		"strategy", strategy.Resolution.String())
	m.emit(ConflictDetected{Conflict: conflict})

	if strategy.Resolution == ManualReview {
		m.mu.Lock()
		op.Status = StatusBlocked
		m.conflicts[op.ID] = &conflictEntry{conflict: conflict, op: op}
		m.mu.Unlock()
		return outcomeBlocked, nil, nil
	}

	res := Resolve(local, server, strategy.Resolution)
	op.Payload = res.Data
	op.ConflictResolved = true
	op.Status = StatusPending
	m.emit(ConflictResolved{Conflict: conflict, Resolution: res, Manual: false})

	// The caller re-enqueues once the operation's active slot is free.
	// The resolution may conflict again on a later attempt; that loop
	// terminates in practice because the payloads converge.
	return outcomeRequeued, nil, nil
}

// complete settles a successful operation: cache write, component
// bookkeeping, queue store removal, event.
func (m *Manager) complete(ctx context.Context, op *Operation, result Payload) {
	op.Status = StatusCompleted
	op.Err = nil

	if op.Type == OpDelete {
		if err := m.store.Delete(ctx, op.Key); err != nil {
			m.logger.Error("Failed to delete cached value", "key", op.Key, "error", err)
		}
	} else if result != nil {
		if err := m.store.Set(ctx, op.Key, result); err != nil {
			m.logger.Error("Failed to cache operation result", "key", op.Key, "error", err)
		}
	}

	if op.Component != "" {
		m.mu.Lock()
		if comp, ok := m.components[op.Component]; ok {
			if op.Type != OpDelete && result != nil {
				comp.state = result
			}
			comp.dirty = false
			comp.lastSync = m.clock.Now()
		}
		m.mu.Unlock()
	}

	if m.queueStore != nil {
		if err := m.queueStore.Remove(ctx, op.ID); err != nil {
			m.logger.Warn("Failed to remove settled operation from queue store", "operation", op.ID, "error", err)
		}
	}

	m.logger.Debug("Operation completed", "operation", op.ID, "type", op.Type.String(), "data_type", op.DataType)
	m.emit(OperationCompleted{Operation: op, Result: result})
}

// handleFailure routes a failed dispatch through the retry policy. An
// operation is retried at most RetryAttempts times per its data type's
// strategy, with exponential backoff from the strategy's base delay;
// exhausting the budget (or a non-retryable error) is terminal and
// reported, never silently dropped.
func (m *Manager) handleFailure(ctx context.Context, op *Operation, err error) {
	op.Attempts++
	op.Err = err

	strategy, lookupErr := m.registry.Lookup(op.DataType)
	if lookupErr != nil {
		strategy = DefaultStrategy
	}

	if syncErrors.IsRetryable(err) && op.Attempts <= strategy.RetryAttempts {
		policy := m.retryPolicy
		if strategy.RetryDelay > 0 {
			policy.BaseDelay = strategy.RetryDelay
		}
		delay := policy.Delay(op.Attempts - 1)
		op.Status = StatusPending

		m.logger.Warn("Operation failed, scheduling retry",
			"operation", op.ID,
			"attempt", op.Attempts,
			"max_attempts", strategy.RetryAttempts,
			"delay", delay,
			"error", err)

		time.AfterFunc(delay, func() {
			if enqueueErr := m.live.Enqueue(op); enqueueErr != nil {
				m.logger.Error("Failed to re-enqueue operation for retry", "operation", op.ID, "error", enqueueErr)
				op.Status = StatusFailed
				m.emit(OperationFailed{Operation: op, Err: enqueueErr})
				return
			}
			m.drain()
		})
		return
	}

	op.Status = StatusFailed
	if m.queueStore != nil {
		if removeErr := m.queueStore.Remove(ctx, op.ID); removeErr != nil {
			m.logger.Warn("Failed to remove failed operation from queue store", "operation", op.ID, "error", removeErr)
		}
	}
	m.logger.Error("Operation failed terminally",
		"operation", op.ID,
		"type", op.Type.String(),
		"data_type", op.DataType,
		"attempts", op.Attempts,
		"error", err)
	m.emit(OperationFailed{Operation: op, Err: err})
}

func (m *Manager) batcherFor(dataType string) *BatchProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchers[dataType]
}

// flushBatch dispatches one claimed batch, one update per operation.
// The first transport failure aborts the flush and the batch processor
// requeues the whole claimed batch; operations that already completed in
// an earlier partial flush are skipped on reprocessing.
func (m *Manager) flushBatch(ctx context.Context, dataType string, ops []*Operation) error {
	strategy, err := m.registry.Lookup(dataType)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if op.Status == StatusCompleted {
			continue
		}
		timer := m.metrics.StartTimer()
		result, err := m.transport.Update(ctx, dataType, op.Payload)
		if err != nil {
			m.metrics.EndTimer(timer, false)
			return syncErrors.NewNetworkError(syncErrors.OpBatch, err)
		}

		outcome, settled, _ := m.reconcile(op, op.Payload, result, strategy)
		switch outcome {
		case outcomeCompleted:
			m.metrics.EndTimer(timer, true)
			m.complete(ctx, op, settled)
		case outcomeRequeued:
			m.requeue(ctx, op)
			m.drain()
		case outcomeBlocked:
			// A conflict is not a dispatch failure; no metrics sample is
			// recorded, matching the non-batched path.
		}
	}
	return nil
}

// FlushBatches forces every batch processor to flush regardless of the
// size threshold.
func (m *Manager) FlushBatches(ctx context.Context) error {
	m.mu.Lock()
	batchers := make([]*BatchProcessor, 0, len(m.batchers))
	for _, b := range m.batchers {
		batchers = append(batchers, b)
	}
	m.mu.Unlock()

	var firstErr error
	for _, b := range batchers {
		if err := b.Process(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResolveConflict supplies the resolution for a conflict blocked on
// manual review. A nil payload keeps the server side. The blocked
// operation re-enters the live queue with the resolution as payload.
func (m *Manager) ResolveConflict(ctx context.Context, operationID string, data Payload) error {
	m.mu.Lock()
	entry, ok := m.conflicts[operationID]
	if !ok {
		m.mu.Unlock()
		return syncErrors.NewConflictError(syncErrors.OpConflictResolve, fmt.Errorf("no open conflict for operation %q", operationID))
	}
	delete(m.conflicts, operationID)
	op := entry.op
	if data == nil {
		data = entry.conflict.Server
	}
	op.Payload = data
	op.ConflictResolved = true
	op.Status = StatusPending
	m.mu.Unlock()

	if err := m.live.Enqueue(op); err != nil {
		return err
	}
	m.emit(ConflictResolved{
		Conflict:   entry.conflict,
		Resolution: Resolution{Data: data, Resolved: true, Decision: "manual"},
		Manual:     true,
	})
	m.drain()
	return nil
}

// Conflicts snapshots the open conflict registry.
func (m *Manager) Conflicts() []Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Conflict, 0, len(m.conflicts))
	for _, entry := range m.conflicts {
		out = append(out, *entry.conflict)
	}
	return out
}

// ApplyRemoteUpdate feeds a server-pushed payload into the engine. The
// cached value is the local side of conflict detection; a divergence is
// resolved by the data type's strategy, with manual-review types parking
// a synthetic sync operation in the conflict registry.
func (m *Manager) ApplyRemoteUpdate(ctx context.Context, dataType, key string, payload Payload) error {
	strategy, err := m.registry.Lookup(dataType)
	if err != nil {
		return err
	}

	cached, err := m.store.Get(ctx, key)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	conflict := DetectConflict("", dataType, key, cached, payload, strategy.Resolution, m.clock.Now())
	if conflict == nil {
		if err := m.store.Set(ctx, key, payload); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpStore, err)
		}
		m.reflectRemoteState(dataType, key, payload)
		return nil
	}

	m.emit(ConflictDetected{Conflict: conflict})

	if strategy.Resolution == ManualReview {
		op := newOperation(OpSync, dataType, cached, m.clock.Now())
		op.Key = key
		op.Source = "remote"
		op.Status = StatusBlocked
		conflict.OperationID = op.ID
		m.mu.Lock()
		m.conflicts[op.ID] = &conflictEntry{conflict: conflict, op: op}
		m.mu.Unlock()
		return nil
	}

	res := Resolve(cached, payload, strategy.Resolution)
	if err := m.store.Set(ctx, key, res.Data); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	m.emit(ConflictResolved{Conflict: conflict, Resolution: res, Manual: false})
	m.reflectRemoteState(dataType, key, res.Data)
	return nil
}

// reflectRemoteState pushes a reconciled remote payload into matching
// registered components.
func (m *Manager) reflectRemoteState(dataType, key string, payload Payload) {
	var changed []string
	m.mu.Lock()
	for id, comp := range m.components {
		if comp.dataType != dataType || comp.cacheKey() != key {
			continue
		}
		comp.state = payload
		comp.dirty = false
		comp.lastSync = m.clock.Now()
		changed = append(changed, id)
	}
	m.mu.Unlock()

	for _, id := range changed {
		m.emit(ComponentStateChanged{ID: id, DataType: dataType, State: payload})
	}
}

// sweepLoop enqueues low-priority sync operations for dirty components
// of one data type at that type's configured interval.
func (m *Manager) sweepLoop(ctx context.Context, stopCh <-chan struct{}, dataType string, interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			// Background sweeps are suspended while the app is not in the
			// foreground; connectivity monitoring keeps running.
			if !m.env.Foreground() {
				continue
			}
			m.sweepDirty(ctx, dataType)
		}
	}
}

func (m *Manager) sweepDirty(ctx context.Context, dataType string) {
	type dirtyComponent struct {
		id    string
		state Payload
		key   string
	}
	var dirty []dirtyComponent

	m.mu.Lock()
	for id, comp := range m.components {
		if comp.dataType == dataType && comp.dirty {
			dirty = append(dirty, dirtyComponent{id: id, state: comp.state, key: comp.cacheKey()})
		}
	}
	m.mu.Unlock()

	for _, d := range dirty {
		_, err := m.QueueOperation(ctx, OpSync, dataType, d.state,
			ForComponent(d.id),
			WithKey(d.key),
			WithPriority(PriorityLow),
			WithSource("timer"))
		if err != nil {
			m.logger.Warn("Failed to enqueue background sync", "component", d.id, "error", err)
		}
	}
}

// monitorConnectivity polls the environment and reacts to transitions:
// going online drains the offline queue into the live queue, preserving
// each operation's original priority; going offline only reports status,
// in-flight operations are left to settle naturally.
func (m *Manager) monitorConnectivity(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.checkConnectivity()
		}
	}
}

func (m *Manager) checkConnectivity() {
	online := m.env.Online()

	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if online == was {
		return
	}
	if online {
		m.logger.Info("Network reachable, draining offline queue")
		m.emit(Online{})
		m.drainOfflineQueue()
		m.drain()
	} else {
		m.logger.Info("Network unreachable")
		m.emit(Offline{})
	}
}

func (m *Manager) drainOfflineQueue() {
	m.mu.Lock()
	parked := m.offline
	m.offline = nil
	m.mu.Unlock()

	for i, op := range parked {
		if err := m.live.Enqueue(op); err != nil {
			m.logger.Error("Live queue full while draining offline queue", "remaining", len(parked)-i)
			m.mu.Lock()
			m.offline = append(parked[i:], m.offline...)
			m.mu.Unlock()
			return
		}
	}
}

// Status returns a point-in-time snapshot of the manager.
func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStatus{
		Running:          m.running,
		Initialized:      m.initialized,
		Online:           m.online,
		QueueSize:        m.live.Len(),
		ActiveOperations: len(m.active),
		OfflineQueueSize: len(m.offline),
		Components:       len(m.components),
		OpenConflicts:    len(m.conflicts),
		Perf:             m.metrics.Stats(),
	}
}

// Clear empties the queues, the conflict registry, and the metrics.
// In-flight operations are not touched.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.live.Drain()
	m.offline = nil
	m.conflicts = make(map[string]*conflictEntry)
	m.mu.Unlock()
	m.metrics.Reset()
}
