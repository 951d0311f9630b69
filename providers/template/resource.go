package template

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/manifest"
	"github.com/latticectl/lattice/internal/resource"
	"github.com/latticectl/lattice/internal/telemetry"
	"github.com/latticectl/lattice/providers/file"
)

// Properties is the decoded form of a manifest.ResourceSpec's Properties
// map for the "template" kind.
type Properties struct {
	Path   string         `json:"path"`
	Script string         `json:"script"`
	Vars   map[string]any `json:"vars"`
}

// Resource renders Script through an Evaluator and writes the result to
// Path, converging like a file resource whose content is computed rather
// than declared literally.
type Resource struct {
	name  string
	props Properties
	eval  *Evaluator
	log   *telemetry.ResourceLogger
}

// New constructs a template Resource named name, configured by props,
// rendered through eval. log may be nil.
func New(name string, props Properties, eval *Evaluator, log *telemetry.ResourceLogger) *Resource {
	return &Resource{name: name, props: props, eval: eval, log: log}
}

// Factory adapts New into a manifest.Factory registrable under kind
// "template". eval is shared across every built resource.
func Factory(eval *Evaluator, base *telemetry.Logger) manifest.Factory {
	return func(spec manifest.ResourceSpec) (resource.Resource, error) {
		props := Properties{}
		if v, ok := spec.Properties["path"].(string); ok {
			props.Path = v
		}
		if v, ok := spec.Properties["script"].(string); ok {
			props.Script = v
		}
		if v, ok := spec.Properties["vars"].(map[string]any); ok {
			props.Vars = v
		}
		if props.Path == "" {
			return nil, fmt.Errorf("template: %s: properties.path is required", spec.Name)
		}
		if props.Script == "" {
			return nil, fmt.Errorf("template: %s: properties.script is required", spec.Name)
		}
		var log *telemetry.ResourceLogger
		if base != nil {
			log = telemetry.NewResourceLogger(base, "template["+spec.Name+"]")
		}
		return New(spec.Name, props, eval, log), nil
	}
}

func (r *Resource) Kind() string      { return "template" }
func (r *Resource) Name() string      { return r.name }
func (r *Resource) Ref() string       { return "template[" + r.name + "]" }
func (r *Resource) Parent() string    { return "" }
func (r *Resource) IsContainer() bool { return false }

func (r *Resource) BuildDepends() []resource.Relation { return nil }

func (r *Resource) Autorequire(resource.Lookup) []resource.Relation { return nil }

func (r *Resource) Tagged([]string) bool { return true }
func (r *Resource) Scheduled() bool      { return true }

// Evaluate renders Script and compares the result against the file
// currently on disk at Path, returning the change needed to converge.
func (r *Resource) Evaluate(ctx context.Context) ([]*change.Change, error) {
	wantContent, err := r.eval.Render(ctx, r.name, r.props.Script, r.props.Vars)
	if err != nil {
		return nil, err
	}

	existing, statErr := os.ReadFile(r.props.Path)
	fileExists := statErr == nil
	haveContent := string(existing)

	if fileExists && haveContent == wantContent {
		return nil, nil
	}

	prevContent := haveContent
	prevExisted := fileExists
	return []*change.Change{change.New(r.Ref(), "content", checksum(haveContent), checksum(wantContent),
		func(ctx context.Context) ([]change.Event, error) {
			if err := os.WriteFile(r.props.Path, []byte(wantContent), 0o644); err != nil {
				return nil, fmt.Errorf("template: %s: write failed: %w", r.name, err)
			}
			return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
		},
		func(ctx context.Context) ([]change.Event, error) {
			if !prevExisted {
				if err := os.Remove(r.props.Path); err != nil && !os.IsNotExist(err) {
					return nil, fmt.Errorf("template: %s: rollback remove failed: %w", r.name, err)
				}
				return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
			}
			if err := os.WriteFile(r.props.Path, []byte(prevContent), 0o644); err != nil {
				return nil, fmt.Errorf("template: %s: rollback write failed: %w", r.name, err)
			}
			return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
		})}, nil
}

// EvalGenerate lets the rendering script declare child resources
// dynamically: a top-level "resources" list of {name, path, content,
// mode} dicts, each becoming a file resource spliced in after this one.
// A script that never sets "resources" generates nothing.
func (r *Resource) EvalGenerate(ctx context.Context) ([]resource.Resource, error) {
	children, err := r.eval.RenderChildren(ctx, r.name, r.props.Script, r.props.Vars)
	if err != nil {
		return nil, err
	}
	out := make([]resource.Resource, 0, len(children))
	for _, c := range children {
		props := file.Properties{Path: c.Path, Content: c.Content, Mode: c.Mode}
		out = append(out, file.New(c.Name, props, nil, r.log))
	}
	return out, nil
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

func checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum[:4])
}
