package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/manifest"
	"github.com/latticectl/lattice/internal/resource"
	"github.com/latticectl/lattice/internal/telemetry"
)

// evaluateRequest is what Resource.Evaluate sends to the module's
// exported "evaluate" function.
type evaluateRequest struct {
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// evaluateResponse is what the module's "evaluate" function returns: one
// entry per property that needs to change.
type evaluateResponse struct {
	Changes []struct {
		Property string `json:"property"`
		From     string `json:"from"`
		To       string `json:"to"`
	} `json:"changes"`
}

// Resource delegates its convergence logic entirely to a WASM Module,
// letting third-party resource kinds run without being compiled into the
// engine.
type Resource struct {
	name   string
	kind   string
	props  map[string]any
	module *Module
	log    *telemetry.ResourceLogger
}

// New constructs a plugin Resource of the given kind, backed by module.
// log may be nil.
func New(kind, name string, props map[string]any, module *Module, log *telemetry.ResourceLogger) *Resource {
	return &Resource{name: name, kind: kind, props: props, module: module, log: log}
}

// Factory adapts New into a manifest.Factory registrable under any kind
// name the WASM module implements; module is shared across every
// resource the factory builds.
func Factory(kind string, module *Module, base *telemetry.Logger) manifest.Factory {
	return func(spec manifest.ResourceSpec) (resource.Resource, error) {
		var log *telemetry.ResourceLogger
		if base != nil {
			log = telemetry.NewResourceLogger(base, kind+"["+spec.Name+"]")
		}
		return New(kind, spec.Name, spec.Properties, module, log), nil
	}
}

func (r *Resource) Kind() string      { return r.kind }
func (r *Resource) Name() string      { return r.name }
func (r *Resource) Ref() string       { return r.kind + "[" + r.name + "]" }
func (r *Resource) Parent() string    { return "" }
func (r *Resource) IsContainer() bool { return false }

func (r *Resource) BuildDepends() []resource.Relation { return nil }

func (r *Resource) Autorequire(resource.Lookup) []resource.Relation { return nil }

func (r *Resource) Tagged([]string) bool { return true }
func (r *Resource) Scheduled() bool      { return true }

func (r *Resource) Provider() resource.Provider {
	if r.module == nil {
		return nil
	}
	return r.module
}

// Evaluate calls the backing module's evaluate function and translates
// its response into change.Change values. The module itself performs the
// forward application as part of computing its response, so each
// returned change's forward closure only reports a "<property>_changed"
// event for what already happened, and its backward closure returns an
// error: rollback of module-applied changes is refused. A plugin module
// is trusted to be idempotent and atomic about its own side effects.
func (r *Resource) Evaluate(ctx context.Context) ([]*change.Change, error) {
	if r.module == nil {
		return nil, fmt.Errorf("plugin: %s: no module configured", r.Ref())
	}

	raw, err := r.module.call(ctx, evaluateRequest{Kind: r.kind, Name: r.name, Properties: r.props})
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", r.Ref(), err)
	}

	var resp evaluateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("plugin: %s: decoding response: %w", r.Ref(), err)
	}

	changes := make([]*change.Change, 0, len(resp.Changes))
	for _, c := range resp.Changes {
		prop := c.Property
		from, to := c.From, c.To
		changes = append(changes, change.New(r.Ref(), prop, from, to,
			func(ctx context.Context) ([]change.Event, error) {
				return []change.Event{{Kind: prop + "_changed", Source: r.Ref()}}, nil
			},
			func(ctx context.Context) ([]change.Event, error) {
				return nil, fmt.Errorf("plugin: %s: rollback not supported for module-applied changes", r.Ref())
			}))
	}
	return changes, nil
}

func (r *Resource) Debug(msg string) {
	if r.log != nil {
		r.log.Debug(msg)
	}
}
func (r *Resource) Info(msg string) {
	if r.log != nil {
		r.log.Info(msg)
	}
}
func (r *Resource) Notice(msg string) {
	if r.log != nil {
		r.log.Notice(msg)
	}
}
func (r *Resource) Warning(msg string) {
	if r.log != nil {
		r.log.Warning(msg)
	}
}
func (r *Resource) Err(msg string) {
	if r.log != nil {
		r.log.Err(msg)
	}
}
