package statesync

import (
	"context"
	"fmt"
	"time"
)

// componentState is a registry entry for one UI unit. Entries are owned
// exclusively by the manager's component registry and mutated only under
// the manager lock.
type componentState struct {
	id       string
	dataType string
	state    Payload
	dirty    bool
	lastSync time.Time
}

func (c *componentState) cacheKey() string {
	if c.state != nil {
		if id, ok := c.state["id"]; ok {
			return fmt.Sprintf("%s/%v", c.dataType, id)
		}
	}
	return c.dataType + "/" + c.id
}

// ComponentInfo is a read-only snapshot of a registry entry.
type ComponentInfo struct {
	ID       string
	DataType string
	State    Payload
	Dirty    bool
	LastSync time.Time
}

// Binding is a thin per-component facade over the manager: registration
// plus state updates, pure delegation. UI code holds one Binding per
// synchronized unit and never touches the manager directly.
type Binding struct {
	m  *Manager
	id string
}

// Bind registers a component and returns its facade. An empty id asks
// the manager to generate one.
func (m *Manager) Bind(id, dataType string, initial Payload) (*Binding, error) {
	assigned, err := m.RegisterComponent(id, dataType, initial)
	if err != nil {
		return nil, err
	}
	return &Binding{m: m, id: assigned}, nil
}

// ID returns the component id backing this binding.
func (b *Binding) ID() string { return b.id }

// Update pushes a new local state through the manager.
func (b *Binding) Update(ctx context.Context, state Payload, opts ...QueueOption) error {
	return b.m.UpdateComponentState(ctx, b.id, state, opts...)
}

// Info snapshots the component's registry entry.
func (b *Binding) Info() (ComponentInfo, bool) {
	return b.m.Component(b.id)
}

// Close unregisters the component.
func (b *Binding) Close() error {
	return b.m.UnregisterComponent(b.id)
}
