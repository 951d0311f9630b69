package manifest

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlDocument mirrors Manifest's shape for direct unmarshaling; Manifest
// itself carries the parsed-at timestamp and source file bookkeeping that
// don't belong in the on-disk format.
type yamlDocument struct {
	Workspace WorkspaceSpec  `yaml:"workspace"`
	Resources []ResourceSpec `yaml:"resources"`
}

// LoadYAML parses a single YAML manifest file.
func LoadYAML(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to read %s: %w", path, err)
	}

	var doc yamlDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, ValidationError{File: path, Path: "", Message: err.Error(), Severity: "error"}
	}

	return &Manifest{
		Workspace:   doc.Workspace,
		Resources:   doc.Resources,
		SourceFiles: []string{path},
	}, nil
}

// LoadYAMLAll parses and merges multiple YAML manifest files, in order.
// Later files may add resources but may not redeclare a "kind:name" already
// declared by an earlier file.
func LoadYAMLAll(paths []string) (*Manifest, error) {
	merged := &Manifest{}
	seen := make(map[string]string)

	for _, p := range paths {
		m, err := LoadYAML(p)
		if err != nil {
			return nil, err
		}
		if merged.Workspace.Name == "" {
			merged.Workspace = m.Workspace
		}
		for _, spec := range m.Resources {
			k := spec.key()
			if prior, ok := seen[k]; ok {
				return nil, ValidationError{
					File:     p,
					Path:     k,
					Message:  fmt.Sprintf("resource already declared in %s", prior),
					Severity: "error",
				}
			}
			seen[k] = p
			merged.Resources = append(merged.Resources, spec)
		}
		merged.SourceFiles = append(merged.SourceFiles, m.SourceFiles...)
	}

	return merged, nil
}
