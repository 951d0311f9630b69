// Package change defines the value types produced by evaluating a resource:
// a property-level Change and the Events it emits when applied or reverted.
package change

import (
	"context"
	"fmt"
)

// Event is produced by applying a Change, or synthesized by the Trigger
// Engine when a callback fires.
type Event struct {
	Kind          string
	Source        string // resource ref that produced the event
	TransactionID string
	Message       string
}

// TriggeredKind is the event kind the Trigger Engine synthesizes after
// invoking a subscriber callback.
const TriggeredKind = "triggered"

// ApplyFunc performs the forward or backward half of a Change. It is
// supplied by the resource that created the Change, capturing whatever
// state it needs (file handle, previous content, service name, ...) to
// actually perform the side effect. A nil slice or error-free empty result
// both mean "no events, but no failure".
type ApplyFunc func(ctx context.Context) ([]Event, error)

// Change is a single property-level diff belonging to one resource within
// one transaction, with forward (apply) and backward (revert) behavior.
type Change struct {
	Resource string // owning resource's ref
	Property string
	From     any
	To       any

	// Changed is set to true once Forward has been invoked and returned at
	// least one non-nil event, per the engine's invariant that Changed
	// reflects what actually happened rather than what was intended.
	Changed bool

	// TransactionID is the back-pointer to the owning transaction, kept as
	// an ID rather than a pointer to avoid a reference cycle between the
	// transaction and the changes it records.
	TransactionID string

	forward  ApplyFunc
	backward ApplyFunc
}

// New constructs a Change. forward and backward may be nil, in which case
// invoking them is a no-op that produces no events.
func New(resource, property string, from, to any, forward, backward ApplyFunc) *Change {
	return &Change{
		Resource: resource,
		Property: property,
		From:     from,
		To:       to,
		forward:  forward,
		backward: backward,
	}
}

// Forward applies the change and returns whatever events that produced. On
// success it updates Changed to true iff at least one event came back.
func (c *Change) Forward(ctx context.Context) ([]Event, error) {
	if c.forward == nil {
		return nil, nil
	}
	events, err := c.forward(ctx)
	if err != nil {
		return nil, err
	}
	events = dropNil(events)
	if len(events) > 0 {
		c.Changed = true
	}
	return events, nil
}

// Backward reverts the change. Rollback only ever calls this on changes
// whose Changed flag was true.
func (c *Change) Backward(ctx context.Context) ([]Event, error) {
	if c.backward == nil {
		return nil, nil
	}
	events, err := c.backward(ctx)
	if err != nil {
		return nil, err
	}
	return dropNil(events), nil
}

func dropNil(events []Event) []Event {
	out := events[:0:0]
	for _, e := range events {
		if e.Kind == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// String renders an is->should diagnostic, matching the printable
// before/after form the engine's error log lines need.
func (c *Change) String() string {
	return c.Property + ": " + printable(c.From) + " -> " + printable(c.To)
}

func printable(v any) string {
	if v == nil {
		return "<absent>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
