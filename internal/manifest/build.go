package manifest

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/latticectl/lattice/internal/resource"
)

// Build validates every spec in m and hands each to the Factory registered
// under its Kind, producing the []resource.Resource the transaction engine
// consumes. Resources are returned in manifest declaration order.
func Build(m *Manifest, reg *Registry) ([]resource.Resource, error) {
	validate := validator.New()
	for i, spec := range m.Resources {
		if err := validate.Struct(spec); err != nil {
			return nil, ValidationError{
				Path:     fmt.Sprintf("resources[%d]", i),
				Message:  err.Error(),
				Severity: "error",
			}
		}
		for j, rel := range spec.Depends {
			if err := validate.Struct(rel); err != nil {
				return nil, ValidationError{
					Path:     fmt.Sprintf("resources[%d].depends[%d]", i, j),
					Message:  err.Error(),
					Severity: "error",
				}
			}
		}
	}

	refs := make(map[string]string, len(m.Resources))
	for _, spec := range m.Resources {
		refs[spec.key()] = fmt.Sprintf("%s[%s]", spec.Kind, spec.Name)
	}

	out := make([]resource.Resource, 0, len(m.Resources))
	for i, spec := range m.Resources {
		factory, ok := reg.lookup(spec.Kind)
		if !ok {
			return nil, fmt.Errorf("manifest: resources[%d] %s: no provider registered for kind %q", i, spec.key(), spec.Kind)
		}

		built, err := factory(spec)
		if err != nil {
			return nil, fmt.Errorf("manifest: resources[%d] %s: %w", i, spec.key(), err)
		}

		rels := make([]resource.Relation, 0, len(spec.Depends))
		for _, rs := range spec.Depends {
			targetRef, ok := refs[rs.Target]
			if !ok {
				return nil, fmt.Errorf("manifest: resources[%d] %s: depends on undeclared resource %q", i, spec.key(), rs.Target)
			}
			rels = append(rels, resource.Relation{
				Kind:     resource.RelationKind(rs.Kind),
				Target:   targetRef,
				Event:    rs.Event,
				Callback: rs.Callback,
			})
		}

		parentRef := ""
		if spec.Parent != "" {
			ref, ok := refs[spec.Parent]
			if !ok {
				return nil, fmt.Errorf("manifest: resources[%d] %s: parent %q not declared", i, spec.key(), spec.Parent)
			}
			parentRef = ref
		}

		out = append(out, &declared{
			Resource: built,
			spec:     spec,
			ref:      refs[spec.key()],
			parent:   parentRef,
			depends:  rels,
		})
	}

	return out, nil
}
