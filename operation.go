package statesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpType identifies the kind of mutation an operation carries.
type OpType int

const (
	OpCreate OpType = iota
	OpUpdate
	OpDelete
	OpSync
)

func (t OpType) String() string {
	switch t {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpSync:
		return "sync"
	default:
		return fmt.Sprintf("optype(%d)", int(t))
	}
}

// ParseOpType converts the wire name of an operation type back to its enum.
func ParseOpType(s string) (OpType, error) {
	switch s {
	case "create":
		return OpCreate, nil
	case "update":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	case "sync":
		return OpSync, nil
	default:
		return 0, fmt.Errorf("unknown operation type %q", s)
	}
}

// OpStatus tracks an operation through its lifecycle.
type OpStatus int

const (
	StatusPending OpStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
	// StatusBlocked marks operations waiting on manual conflict resolution.
	// They leave this state only via Manager.ResolveConflict.
	StatusBlocked
)

func (s OpStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Priority orders operations in the queue. Higher values drain first.
type Priority int

const (
	PriorityLow      Priority = 25
	PriorityNormal   Priority = 50
	PriorityHigh     Priority = 75
	PriorityCritical Priority = 100
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a configuration name to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// Operation is one pending mutation against a named data type. Operations
// are created by the manager and owned by exactly one queue, the active
// set, a batch, or the conflict registry at any given time. Once an
// operation reaches StatusCompleted it is removed from all queues and
// never mutated again.
type Operation struct {
	ID       string
	Type     OpType
	DataType string

	// Key addresses the cached value this operation targets. Derived from
	// the queue options, the payload's "id" field, or the component id,
	// in that order.
	Key string

	Payload Payload

	// Component is the id of the registered component that originated the
	// operation, if any.
	Component string

	// Source tags where the operation came from (e.g. "timer", "remote").
	Source string

	Priority  Priority
	Timestamp time.Time
	Status    OpStatus
	Attempts  int

	// Err holds the most recent failure, nil while healthy.
	Err error

	// ConflictResolved is set once a conflict on this operation has been
	// resolved and the payload replaced with the resolution.
	ConflictResolved bool

	// seq is the queue insertion sequence, assigned on enqueue. It breaks
	// priority ties so equal-priority operations drain FIFO.
	seq uint64
}

func newOperation(typ OpType, dataType string, payload Payload, now time.Time) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		Type:      typ,
		DataType:  dataType,
		Payload:   payload,
		Priority:  PriorityNormal,
		Timestamp: now,
		Status:    StatusPending,
	}
}

// operationRecord is the persisted form of an Operation. Enums travel as
// their wire names and the error as a string so records stay readable in
// the queue store.
type operationRecord struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	DataType         string    `json:"data_type"`
	Key              string    `json:"key,omitempty"`
	Payload          Payload   `json:"payload,omitempty"`
	Component        string    `json:"component,omitempty"`
	Source           string    `json:"source,omitempty"`
	Priority         int       `json:"priority"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	Error            string    `json:"error,omitempty"`
	ConflictResolved bool      `json:"conflict_resolved,omitempty"`
}

// MarshalJSON implements json.Marshaler for queue store persistence.
func (o *Operation) MarshalJSON() ([]byte, error) {
	rec := operationRecord{
		ID:               o.ID,
		Type:             o.Type.String(),
		DataType:         o.DataType,
		Key:              o.Key,
		Payload:          o.Payload,
		Component:        o.Component,
		Source:           o.Source,
		Priority:         int(o.Priority),
		Timestamp:        o.Timestamp,
		Status:           o.Status.String(),
		Attempts:         o.Attempts,
		ConflictResolved: o.ConflictResolved,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return json.Marshal(rec)
}

// UnmarshalJSON implements json.Unmarshaler for queue store recovery.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var rec operationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	typ, err := ParseOpType(rec.Type)
	if err != nil {
		return err
	}
	status := StatusPending
	switch rec.Status {
	case "pending", "processing", "blocked":
		// Recovered operations always restart from pending; processing and
		// blocked states do not survive a restart.
		status = StatusPending
	case "completed":
		status = StatusCompleted
	case "failed":
		status = StatusFailed
	case "":
		status = StatusPending
	default:
		return fmt.Errorf("unknown operation status %q", rec.Status)
	}
	o.ID = rec.ID
	o.Type = typ
	o.DataType = rec.DataType
	o.Key = rec.Key
	o.Payload = rec.Payload
	o.Component = rec.Component
	o.Source = rec.Source
	o.Priority = Priority(rec.Priority)
	o.Timestamp = rec.Timestamp
	o.Status = status
	o.Attempts = rec.Attempts
	o.ConflictResolved = rec.ConflictResolved
	if rec.Error != "" {
		o.Err = errors.New(rec.Error)
	}
	return nil
}
