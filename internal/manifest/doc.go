// Package manifest loads a declarative resource graph from CUE or YAML
// sources into concrete resource.Resource values, handing each resource
// spec to a provider factory registered under its kind.
package manifest
