package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Setter is the write capability disconnect actions need.
type Setter interface {
	Set(ctx context.Context, path string, value any) error
}

// DisconnectActions holds the writes to perform when a client connection drops.
// One instance belongs to one connection.
type DisconnectActions struct {
	target Setter

	mu      sync.Mutex
	order   []string
	actions map[string]any
	fired   bool
}

// NewDisconnectActions creates an empty action set writing to target.
func NewDisconnectActions(target Setter) *DisconnectActions {
	return &DisconnectActions{target: target, actions: make(map[string]any)}
}

// OnDisconnectSet registers a write of value at path. Registering the same path again replaces the value.
func (d *DisconnectActions) OnDisconnectSet(path string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.actions[path]; !ok {
		d.order = append(d.order, path)
	}
	d.actions[path] = value
}

// Cancel drops the action registered for path.
func (d *DisconnectActions) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.actions[path]; !ok {
		return
	}
	delete(d.actions, path)
	for i, p := range d.order {
		if p == path {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Pending lists registered paths in registration order.
func (d *DisconnectActions) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Fire performs every registered write once. Later calls are no-ops.
func (d *DisconnectActions) Fire(ctx context.Context) error {
	d.mu.Lock()
	if d.fired {
		d.mu.Unlock()
		return nil
	}
	d.fired = true
	order := d.order
	actions := d.actions
	d.order, d.actions = nil, make(map[string]any)
	d.mu.Unlock()

	var errs []error
	for _, path := range order {
		if err := d.target.Set(ctx, path, actions[path]); err != nil {
			errs = append(errs, fmt.Errorf("on-disconnect %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
