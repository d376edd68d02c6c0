package statesync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// In-memory collaborators for tests. They are exported so applications
// embedding the engine can drive it without a real backend.

// MemoryStore is a map-backed Store.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]Payload
	closed bool

	// FailGets forces every Get to return an error, for init-failure tests.
	FailGets bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]Payload)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGets {
		return nil, fmt.Errorf("store unavailable")
	}
	v, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	return v.Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len reports the number of cached keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// MemoryQueueStore is a map-backed QueueStore.
type MemoryQueueStore struct {
	mu  sync.Mutex
	ops map[string]*Operation
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{ops: make(map[string]*Operation)}
}

func (q *MemoryQueueStore) Append(ctx context.Context, op *Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops[op.ID] = op
	return nil
}

func (q *MemoryQueueStore) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.ops, id)
	return nil
}

func (q *MemoryQueueStore) List(ctx context.Context) ([]*Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Operation, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, op)
	}
	return out, nil
}

func (q *MemoryQueueStore) Close() error { return nil }

func (q *MemoryQueueStore) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// MemoryTransport is a scriptable Transport backed by an in-memory
// server-side dataset keyed like the cache (dataType + "/" + id).
type MemoryTransport struct {
	mu     sync.Mutex
	server map[string]Payload
	calls  []string

	// FailNext makes the next n calls return a retryable-looking error.
	FailNext int

	// FailAll makes every call fail.
	FailAll bool

	// OnUpdate, when set, overrides the default echo behavior of Update:
	// the returned payload is treated as the server's authoritative view.
	OnUpdate func(dataType string, payload Payload) (Payload, error)
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{server: make(map[string]Payload)}
}

func (t *MemoryTransport) fail() error {
	if t.FailAll {
		return fmt.Errorf("connection refused")
	}
	if t.FailNext > 0 {
		t.FailNext--
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (t *MemoryTransport) key(dataType string, payload Payload) string {
	if payload != nil {
		if id, ok := payload["id"]; ok {
			return fmt.Sprintf("%s/%v", dataType, id)
		}
	}
	return dataType
}

func (t *MemoryTransport) Create(ctx context.Context, dataType string, payload Payload) (Payload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "create "+dataType)
	if err := t.fail(); err != nil {
		return nil, err
	}
	t.server[t.key(dataType, payload)] = payload.Clone()
	return payload.Clone(), nil
}

func (t *MemoryTransport) Update(ctx context.Context, dataType string, payload Payload) (Payload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "update "+dataType)
	if err := t.fail(); err != nil {
		return nil, err
	}
	if t.OnUpdate != nil {
		return t.OnUpdate(dataType, payload)
	}
	t.server[t.key(dataType, payload)] = payload.Clone()
	return payload.Clone(), nil
}

func (t *MemoryTransport) Delete(ctx context.Context, dataType string, payload Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "delete "+dataType)
	if err := t.fail(); err != nil {
		return err
	}
	delete(t.server, t.key(dataType, payload))
	return nil
}

func (t *MemoryTransport) Fetch(ctx context.Context, dataType, key string) (Payload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "fetch "+key)
	if err := t.fail(); err != nil {
		return nil, err
	}
	v, ok := t.server[key]
	if !ok {
		return nil, nil
	}
	return v.Clone(), nil
}

func (t *MemoryTransport) Close() error { return nil }

// Seed installs a server-side payload directly.
func (t *MemoryTransport) Seed(key string, payload Payload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.server[key] = payload.Clone()
}

// ServerState returns the server's copy for a key, nil when absent.
func (t *MemoryTransport) ServerState(key string) Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.server[key].Clone()
}

// Calls returns the ordered call log ("update tasks", "fetch tasks/1", ...).
func (t *MemoryTransport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	copy(out, t.calls)
	return out
}

// CallCount counts log entries with the given prefix.
func (t *MemoryTransport) CallCount(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// ToggleEnvironment is an Environment whose state tests flip at will.
type ToggleEnvironment struct {
	mu         sync.Mutex
	online     bool
	foreground bool
}

func NewToggleEnvironment(online bool) *ToggleEnvironment {
	return &ToggleEnvironment{online: online, foreground: true}
}

func (e *ToggleEnvironment) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

func (e *ToggleEnvironment) Foreground() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.foreground
}

func (e *ToggleEnvironment) SetOnline(online bool) {
	e.mu.Lock()
	e.online = online
	e.mu.Unlock()
}

func (e *ToggleEnvironment) SetForeground(fg bool) {
	e.mu.Lock()
	e.foreground = fg
	e.mu.Unlock()
}

// ManualClock is a Clock advanced explicitly by tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
