// Package resource defines the contract the transaction engine consumes
// from a managed resource. It deliberately says nothing about how a
// resource reads or writes the system it manages — that is the concern of
// packages under providers/.
package resource

import (
	"context"
	"time"

	"github.com/latticectl/lattice/internal/change"
)

// RelationKind is one of the four ways a resource may declare a
// relationship to another.
type RelationKind string

const (
	// Require orders the target before the declaring resource, with no
	// subscription semantics.
	Require RelationKind = "require"
	// Before orders the declaring resource ahead of the target, with no
	// subscription semantics.
	Before RelationKind = "before"
	// Notify orders the declaring resource ahead of the target and
	// additionally subscribes the target to the declaring resource's
	// events.
	Notify RelationKind = "notify"
	// Subscribe orders the target ahead of the declaring resource and
	// subscribes the declaring resource to the target's events.
	Subscribe RelationKind = "subscribe"
)

// Relation is one edge a resource declares, either through BuildDepends or
// Autorequire.
type Relation struct {
	Kind   RelationKind
	Target string // target resource's Ref

	// Event is which emitted event kind this relation reacts to; only
	// meaningful for Notify/Subscribe. Empty defaults to the wildcard
	// "any" for Notify/Subscribe.
	Event string

	// Callback is the method name the Trigger Engine invokes when this
	// relation's edge matches an emitted event. Require/Before never carry
	// one; Notify/Subscribe may, and an empty one defaults to "refresh".
	Callback string
}

// Resource is the narrow interface the engine needs from a managed
// resource. Optional capabilities (dynamic generation, flush, remove,
// provider access) are modeled as separate interfaces a concrete resource
// may additionally satisfy, probed with a type assertion rather than
// reflection.
type Resource interface {
	Kind() string
	Name() string
	Ref() string

	// Parent returns the Ref of this resource's container, or "" if it has
	// none.
	Parent() string

	// IsContainer reports whether this resource's role is purely
	// aggregational — it groups members but is never itself evaluated.
	IsContainer() bool

	BuildDepends() []Relation
	Autorequire(lookup Lookup) []Relation

	Tagged(tags []string) bool
	Scheduled() bool

	Evaluate(ctx context.Context) ([]*change.Change, error)

	Logger
}

// Lookup lets a resource's Autorequire consult the set of other declared
// resources (e.g. a file resource looking for a resource managing its
// parent directory) without the engine exposing its full internal state.
type Lookup interface {
	// ByKindAndName returns the Ref of a declared resource with the given
	// kind and name, and whether one exists.
	ByKindAndName(kind, name string) (ref string, ok bool)
}

// Generator is an optional capability: a resource that contributes
// additional resources before the relationship graph is built.
type Generator interface {
	Generate(ctx context.Context) ([]Resource, error)
}

// EvalGenerator is an optional capability: a resource that contributes
// additional resources during its own apply, rewiring the in-progress
// ordering.
type EvalGenerator interface {
	EvalGenerate(ctx context.Context) ([]Resource, error)
}

// Flusher is an optional capability invoked once after a resource's
// changes have all been applied.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Remover is an optional capability invoked during cleanup, only on
// resources the engine itself generated.
type Remover interface {
	Remove(ctx context.Context) error
}

// Syncer is an optional capability exposing a synced cache timestamp. Per
// the spec's open question (b), the contract is exposed as a no-op-if-
// absent capability rather than a mandatory method.
type Syncer interface {
	SetSynced(t time.Time)
}

// Provider identifies the class of backend a resource uses. Name is the
// dedup key Prepare uses to call a class-level Prefetch at most once per
// unique provider.
type Provider interface {
	Name() string
}

// Prefetcher is an optional capability on a Provider: a class-level hook
// invoked once per unique provider before any resource using it is
// evaluated.
type Prefetcher interface {
	Prefetch(ctx context.Context) error
}

// WithProvider is an optional capability: a resource backed by a Provider
// instance.
type WithProvider interface {
	Provider() Provider
}

// Callable is an optional capability exposing named callback methods the
// Trigger Engine can invoke by name (e.g. "restart", "refresh"). This is
// the capability-probe equivalent of Ruby's "invoke the named method on
// obj": Go has no dynamic method dispatch by string, so a resource that
// wants to be triggerable registers its callbacks under names here instead
// of the engine reaching for reflection.
type Callable interface {
	Callback(name string) (fn func(ctx context.Context) error, ok bool)
}

// Logger is the set of logging hooks every resource exposes. Messages are
// expected to already be formatted; the engine never inspects their
// content.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Notice(msg string)
	Warning(msg string)
	Err(msg string)
}
