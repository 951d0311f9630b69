package manifest

import (
	"time"
)

// RelationSpec is the declarative form of resource.Relation: a reference to
// another resource by "kind:name" rather than by a resolved Ref, since the
// manifest is parsed before any resource exists to resolve it against.
type RelationSpec struct {
	Kind     string `json:"kind" yaml:"kind" validate:"required,oneof=require before notify subscribe"`
	Target   string `json:"target" yaml:"target" validate:"required"`
	Event    string `json:"event,omitempty" yaml:"event,omitempty"`
	Callback string `json:"callback,omitempty" yaml:"callback,omitempty"`
}

// ResourceSpec is one declared resource, independent of the source format
// (CUE or YAML) it was parsed from.
type ResourceSpec struct {
	Kind string `json:"kind" yaml:"kind" validate:"required"`
	Name string `json:"name" yaml:"name" validate:"required"`

	// Parent is the "kind:name" reference of the container this resource
	// belongs to, or "" for a top-level resource.
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`

	// Container marks this spec as purely aggregational: it is spliced out
	// of the relationship graph and never evaluated.
	Container bool `json:"container,omitempty" yaml:"container,omitempty"`

	// Properties is the provider-specific configuration, kept opaque here
	// (CUE and YAML both decode it as a plain map) and re-decoded into a
	// concrete struct by the provider factory registered for Kind.
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`

	Tags      []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Schedule  string         `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Depends   []RelationSpec `json:"depends,omitempty" yaml:"depends,omitempty"`
}

// key returns the "kind:name" reference other specs use in Parent/Target.
func (s ResourceSpec) key() string { return s.Kind + ":" + s.Name }

// WorkspaceSpec is top-level manifest metadata, analogous to the teacher's
// WorkspaceConfig but scoped to the transaction engine's own concerns.
type WorkspaceSpec struct {
	Name      string            `json:"name" yaml:"name" validate:"required"`
	Variables map[string]any    `json:"variables,omitempty" yaml:"variables,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Manifest is a fully parsed, not-yet-built declarative resource graph.
type Manifest struct {
	Workspace   WorkspaceSpec
	Resources   []ResourceSpec
	SourceFiles []string
	ParsedAt    time.Time
}

// ValidationError reports one problem found while parsing or validating a
// manifest, with enough location information to point a user at the fix.
type ValidationError struct {
	File     string
	Path     string
	Message  string
	Severity string // error|warning
}

func (e ValidationError) Error() string {
	if e.File != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.Path + ": " + e.Message
}
