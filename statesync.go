// Package statesync provides a client-side state synchronization engine
// for offline-first applications. It reconciles optimistic local state
// against server state across multiple data types, each with its own sync
// cadence, conflict-resolution policy, retry schedule, and batching
// behavior, coordinated with a persistent cache and an offline operation
// queue.
//
// The engine is transport- and storage-agnostic: callers inject a Store
// for the local cache, a Transport for remote calls, and an Environment
// for connectivity queries. All heavy collaborators are interfaces so the
// engine can be driven entirely in-memory in tests.
package statesync

import (
	"context"
	"time"
)

// Payload is the opaque data blob carried by operations and cached values.
// Values are expected to be JSON-compatible (string, float64, bool, nil,
// []any, map[string]any) so that hashing and persistence are stable.
type Payload map[string]any

// Clone returns a shallow copy of the payload. A nil payload clones to nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Store is the persistent cache the engine reconciles against.
// Get returns (nil, nil) when the key is absent; absence is not an error.
type Store interface {
	Get(ctx context.Context, key string) (Payload, error)
	Set(ctx context.Context, key string, value Payload) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// QueueStore persists queued operations so they survive process restarts.
// The manager appends every queued operation, removes it on terminal
// settlement, and re-enqueues whatever List returns during Init.
type QueueStore interface {
	Append(ctx context.Context, op *Operation) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Operation, error)
	Close() error
}

// Transport performs the actual remote calls, one method per operation
// type. Implementations may be HTTP, WebSocket, or anything else; the
// engine only cares about the authoritative result or the error.
//
// Create and Update return the server's authoritative view of the entity,
// which may differ from what was sent; a differing result triggers
// conflict detection. Fetch returns (nil, nil) when the server has no
// state for the key.
type Transport interface {
	Create(ctx context.Context, dataType string, payload Payload) (Payload, error)
	Update(ctx context.Context, dataType string, payload Payload) (Payload, error)
	Delete(ctx context.Context, dataType string, payload Payload) error
	Fetch(ctx context.Context, dataType, key string) (Payload, error)
	Close() error
}

// Environment reports host conditions. It is polled, never pushed.
type Environment interface {
	// Online reports whether the network is currently reachable.
	Online() bool

	// Foreground reports whether the host application is foregrounded.
	Foreground() bool
}

// Validator rejects malformed payloads before they enter the queue.
// A nil Validator accepts everything.
type Validator func(dataType string, payload Payload) error

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AlwaysOnline is an Environment for setups without connectivity tracking.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool     { return true }
func (AlwaysOnline) Foreground() bool { return true }

// Engine defaults. All of them can be overridden via manager options.
const (
	DefaultMaxQueueSize    = 1000
	DefaultMaxConcurrent   = 5
	DefaultBatchSize       = 50
	DefaultMetricsWindow   = 100
	DefaultPollInterval    = 10 * time.Second
	DefaultJitterFactor    = 0.1
	DefaultTimestampWindow = 1000 * time.Millisecond
)
