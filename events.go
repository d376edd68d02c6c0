package statesync

// Event is the closed union of notifications the engine emits. Each
// variant carries its payload as plain struct fields, so subscribers
// switch on the concrete type instead of matching string event names.
//
// Events are delivered synchronously, in emission order, on the
// goroutine that caused them. Subscribers must not block; long-running
// handlers should hand off to their own goroutine.
type Event interface {
	event()
}

// Initialized fires once Init completes successfully.
type Initialized struct{}

// Started fires when the manager's timers and monitors are running.
type Started struct{}

// Stopped fires after Stop has cleared all timers.
type Stopped struct{}

// ComponentRegistered fires when a component joins the registry.
type ComponentRegistered struct {
	ID       string
	DataType string
}

// ComponentUnregistered fires when a component leaves the registry.
type ComponentUnregistered struct {
	ID string
}

// ComponentStateChanged fires when a component's local state actually
// changed (no-op updates are suppressed before this point).
type ComponentStateChanged struct {
	ID       string
	DataType string
	State    Payload
}

// OperationQueued fires for every accepted operation, whether it landed
// in the live or the offline queue.
type OperationQueued struct {
	Operation *Operation
	Offline   bool
}

// OperationCompleted fires when an operation settles successfully.
// Result is the authoritative payload written to the cache.
type OperationCompleted struct {
	Operation *Operation
	Result    Payload
}

// OperationFailed fires when an operation exhausts its retry budget.
type OperationFailed struct {
	Operation *Operation
	Err       error
}

// ConflictDetected fires when local and server payloads diverge for the
// same key.
type ConflictDetected struct {
	Conflict *Conflict
}

// ConflictResolved fires when a conflict leaves the registry, whether by
// policy or by an explicit manual resolution.
type ConflictResolved struct {
	Conflict   *Conflict
	Resolution Resolution
	Manual     bool
}

// Online fires when the environment transitions to reachable.
type Online struct{}

// Offline fires when the environment transitions to unreachable.
type Offline struct{}

func (Initialized) event()           {}
func (Started) event()               {}
func (Stopped) event()               {}
func (ComponentRegistered) event()   {}
func (ComponentUnregistered) event() {}
func (ComponentStateChanged) event() {}
func (OperationQueued) event()       {}
func (OperationCompleted) event()    {}
func (OperationFailed) event()       {}
func (ConflictDetected) event()      {}
func (ConflictResolved) event()      {}
func (Online) event()                {}
func (Offline) event()               {}
