// Package service implements a resource.Resource that manages a systemd
// unit's running and enabled state, grounded on the teacher's
// ServiceReloadHandler.
package service

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/manifest"
	"github.com/latticectl/lattice/internal/resource"
	"github.com/latticectl/lattice/internal/telemetry"
	"github.com/latticectl/lattice/internal/txn"
)

// Properties is the decoded form of a manifest.ResourceSpec's Properties
// map for the "service" kind.
type Properties struct {
	Name    string `json:"name"`
	Ensure  string `json:"ensure"`  // "running" or "stopped"; defaults to "running"
	Enabled bool   `json:"enabled"` // whether the unit should start on boot
}

// Resource manages one systemd unit's active/enabled state and exposes a
// "restart" callback for resources that notify or are notified by it.
type Resource struct {
	name  string
	props Properties
	log   *telemetry.ResourceLogger
}

// New constructs a service Resource named name, configured by props. log
// may be nil, in which case logging calls are silently dropped.
func New(name string, props Properties, log *telemetry.ResourceLogger) *Resource {
	if props.Ensure == "" {
		props.Ensure = "running"
	}
	return &Resource{name: name, props: props, log: log}
}

// Factory adapts New into a manifest.Factory registrable under kind
// "service".
func Factory(base *telemetry.Logger) manifest.Factory {
	return func(spec manifest.ResourceSpec) (resource.Resource, error) {
		props := Properties{Ensure: "running"}
		if v, ok := spec.Properties["name"].(string); ok {
			props.Name = v
		}
		if v, ok := spec.Properties["ensure"].(string); ok {
			props.Ensure = v
		}
		if v, ok := spec.Properties["enabled"].(bool); ok {
			props.Enabled = v
		}
		if props.Name == "" {
			props.Name = spec.Name
		}
		if props.Ensure != "running" && props.Ensure != "stopped" {
			return nil, fmt.Errorf("service: %s: ensure must be \"running\" or \"stopped\", got %q", spec.Name, props.Ensure)
		}
		var log *telemetry.ResourceLogger
		if base != nil {
			log = telemetry.NewResourceLogger(base, "service["+spec.Name+"]")
		}
		return New(spec.Name, props, log), nil
	}
}

func (r *Resource) Kind() string      { return "service" }
func (r *Resource) Name() string      { return r.name }
func (r *Resource) Ref() string       { return "service[" + r.name + "]" }
func (r *Resource) Parent() string    { return "" }
func (r *Resource) IsContainer() bool { return false }

func (r *Resource) BuildDepends() []resource.Relation { return nil }

func (r *Resource) Autorequire(resource.Lookup) []resource.Relation { return nil }

func (r *Resource) Tagged([]string) bool { return true }
func (r *Resource) Scheduled() bool      { return true }

// Callback exposes "restart" and "reload" so other resources can notify
// or subscribe to this one and trigger the corresponding systemctl action.
func (r *Resource) Callback(name string) (func(ctx context.Context) error, bool) {
	switch name {
	case "restart":
		return func(ctx context.Context) error { return r.run(ctx, "restart") }, true
	case "reload":
		return func(ctx context.Context) error { return r.run(ctx, "reload") }, true
	default:
		return nil, false
	}
}

// Evaluate compares the unit's active/enabled state against the declared
// properties and returns the changes needed to converge.
func (r *Resource) Evaluate(ctx context.Context) ([]*change.Change, error) {
	active, enabled, err := r.status(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: %s: status check failed: %w", r.name, err)
	}

	var changes []*change.Change

	wantActive := r.props.Ensure == "running"
	if active != wantActive {
		from, to := activeLabel(active), activeLabel(wantActive)
		action := "stop"
		rollbackAction := "start"
		if wantActive {
			action, rollbackAction = "start", "stop"
		}
		changes = append(changes, change.New(r.Ref(), "ensure", from, to,
			func(ctx context.Context) ([]change.Event, error) {
				if err := r.run(ctx, action); err != nil {
					return nil, err
				}
				return []change.Event{{Kind: "service_" + action + "ed", Source: r.Ref()}}, nil
			},
			func(ctx context.Context) ([]change.Event, error) {
				if err := r.run(ctx, rollbackAction); err != nil {
					return nil, err
				}
				return []change.Event{{Kind: "service_" + rollbackAction + "ed", Source: r.Ref()}}, nil
			}))
	}

	if enabled != r.props.Enabled {
		from, to := enabledLabel(enabled), enabledLabel(r.props.Enabled)
		action, rollbackAction := "disable", "enable"
		if r.props.Enabled {
			action, rollbackAction = "enable", "disable"
		}
		changes = append(changes, change.New(r.Ref(), "enabled", from, to,
			func(ctx context.Context) ([]change.Event, error) {
				return nil, r.run(ctx, action)
			},
			func(ctx context.Context) ([]change.Event, error) {
				return nil, r.run(ctx, rollbackAction)
			}))
	}

	return changes, nil
}

func (r *Resource) status(ctx context.Context) (active, enabled bool, err error) {
	statusOut, _ := exec.CommandContext(ctx, "systemctl", "is-active", r.name).Output()
	active = strings.TrimSpace(string(statusOut)) == "active"

	enabledOut, _ := exec.CommandContext(ctx, "systemctl", "is-enabled", r.name).Output()
	enabled = strings.TrimSpace(string(enabledOut)) == "enabled"

	return active, enabled, nil
}

func (r *Resource) run(ctx context.Context, action string) error {
	cmd := exec.CommandContext(ctx, "systemctl", action, r.name)
	if err := cmd.Run(); err != nil {
		return txn.NewTransientError(fmt.Sprintf("systemctl %s failed", action), err).
			WithResource(r.Ref()).WithOperation("forward")
	}
	return nil
}

func activeLabel(active bool) string {
	if active {
		return "running"
	}
	return "stopped"
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
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
