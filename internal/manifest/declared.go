package manifest

import (
	"github.com/latticectl/lattice/internal/resource"
)

// declared wraps a provider-built resource.Resource with the declarative
// metadata (parent, container flag, tags, depends) the manifest itself
// parsed, so a provider factory only needs to implement behavior
// (Evaluate and optional capabilities) and never has to know how it was
// declared. Scheduled is forwarded to the inner resource; the spec's
// Schedule field is not consulted. Method promotion means declared automatically forwards every
// optional capability (Generator, Flusher, Remover, Syncer, Callable, ...)
// the inner resource implements, since Go type assertions on an interface
// see through embedding.
type declared struct {
	resource.Resource

	spec    ResourceSpec
	ref     string
	parent  string
	depends []resource.Relation
}

func (d *declared) Kind() string      { return d.spec.Kind }
func (d *declared) Name() string      { return d.spec.Name }
func (d *declared) Ref() string       { return d.ref }
func (d *declared) Parent() string    { return d.parent }
func (d *declared) IsContainer() bool { return d.spec.Container }

func (d *declared) BuildDepends() []resource.Relation {
	declaredRels := append([]resource.Relation(nil), d.depends...)
	return append(declaredRels, d.Resource.BuildDepends()...)
}

func (d *declared) Tagged(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	if len(d.spec.Tags) == 0 {
		return false
	}
	for _, want := range tags {
		for _, have := range d.spec.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

func (d *declared) Scheduled() bool {
	return d.Resource.Scheduled()
}
