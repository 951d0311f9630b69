// Package file implements a resource.Resource that manages the content and
// mode of a single local file, grounded on the teacher's FileWriteHandler/
// FileReadHandler pair.
package file

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/manifest"
	"github.com/latticectl/lattice/internal/resource"
	"github.com/latticectl/lattice/internal/telemetry"
	"github.com/latticectl/lattice/internal/txn"
)

// Properties is the decoded form of a manifest.ResourceSpec's Properties
// map for the "file" kind.
type Properties struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
	Backup  bool   `json:"backup"`
}

// Resource manages one file's content and permission bits.
type Resource struct {
	name     string
	props    Properties
	provider *Watcher
	log      *telemetry.ResourceLogger
}

// New constructs a file Resource named name, configured by props. log may
// be nil, in which case logging calls are silently dropped.
func New(name string, props Properties, watcher *Watcher, log *telemetry.ResourceLogger) *Resource {
	return &Resource{name: name, props: props, provider: watcher, log: log}
}

// Factory adapts New into a manifest.Factory registrable under kind "file".
func Factory(watcher *Watcher, base *telemetry.Logger) manifest.Factory {
	return func(spec manifest.ResourceSpec) (resource.Resource, error) {
		props := Properties{Mode: "0644"}
		if v, ok := spec.Properties["path"].(string); ok {
			props.Path = v
		}
		if v, ok := spec.Properties["content"].(string); ok {
			props.Content = v
		}
		if v, ok := spec.Properties["mode"].(string); ok {
			props.Mode = v
		}
		if v, ok := spec.Properties["backup"].(bool); ok {
			props.Backup = v
		}
		if props.Path == "" {
			return nil, fmt.Errorf("file: %s: properties.path is required", spec.Name)
		}
		if watcher != nil {
			watcher.Watch(props.Path)
		}
		var log *telemetry.ResourceLogger
		if base != nil {
			log = telemetry.NewResourceLogger(base, "file["+spec.Name+"]")
		}
		return New(spec.Name, props, watcher, log), nil
	}
}

func (r *Resource) Kind() string      { return "file" }
func (r *Resource) Name() string      { return r.name }
func (r *Resource) Ref() string       { return "file[" + r.name + "]" }
func (r *Resource) Parent() string    { return "" }
func (r *Resource) IsContainer() bool { return false }

func (r *Resource) BuildDepends() []resource.Relation { return nil }

// Autorequire looks for another declared file resource managing this
// file's parent directory, mirroring Puppet's autorequire-on-containing-
// directory convention.
func (r *Resource) Autorequire(lookup resource.Lookup) []resource.Relation {
	dir := parentDir(r.props.Path)
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	if ref, ok := lookup.ByKindAndName("file", dir); ok {
		return []resource.Relation{{Kind: resource.Require, Target: ref}}
	}
	return nil
}

func (r *Resource) Tagged([]string) bool { return true }
func (r *Resource) Scheduled() bool      { return true }

func (r *Resource) Provider() resource.Provider {
	if r.provider == nil {
		return nil
	}
	return r.provider
}

// Evaluate compares the file's on-disk content and mode against the
// declared properties and returns the changes needed to converge.
func (r *Resource) Evaluate(ctx context.Context) ([]*change.Change, error) {
	existing, statErr := os.ReadFile(r.props.Path)
	fileExists := statErr == nil

	var changes []*change.Change

	wantContent := r.props.Content
	haveContent := string(existing)
	if !fileExists || haveContent != wantContent {
		prevContent := haveContent
		prevExisted := fileExists
		changes = append(changes, change.New(r.Ref(), "content", checksum(haveContent), checksum(wantContent),
			func(ctx context.Context) ([]change.Event, error) {
				if r.props.Backup && prevExisted {
					if err := os.WriteFile(r.props.Path+".bak", []byte(prevContent), 0o644); err != nil {
						return nil, txn.NewTransientError("backup failed", err).WithResource(r.Ref()).WithOperation("forward")
					}
				}
				if err := os.WriteFile(r.props.Path, []byte(wantContent), 0o644); err != nil {
					return nil, txn.NewTransientError("write failed", err).WithResource(r.Ref()).WithOperation("forward")
				}
				return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
			},
			func(ctx context.Context) ([]change.Event, error) {
				if !prevExisted {
					if err := os.Remove(r.props.Path); err != nil && !os.IsNotExist(err) {
						return nil, txn.NewTransientError("rollback remove failed", err).WithResource(r.Ref()).WithOperation("rollback")
					}
					return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
				}
				if err := os.WriteFile(r.props.Path, []byte(prevContent), 0o644); err != nil {
					return nil, txn.NewTransientError("rollback write failed", err).WithResource(r.Ref()).WithOperation("rollback")
				}
				return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
			}))
	}

	if r.props.Mode != "" && fileExists {
		info, err := os.Stat(r.props.Path)
		if err != nil {
			return nil, txn.NewTransientError("stat failed", err).WithResource(r.Ref()).WithOperation("evaluate")
		}
		wantMode, err := strconv.ParseUint(r.props.Mode, 8, 32)
		if err != nil {
			return nil, txn.NewPermanentError(fmt.Sprintf("invalid mode %q", r.props.Mode), err).WithResource(r.Ref()).WithOperation("evaluate")
		}
		haveMode := info.Mode().Perm()
		if haveMode != os.FileMode(wantMode) {
			prevMode := haveMode
			changes = append(changes, change.New(r.Ref(), "mode", prevMode.String(), os.FileMode(wantMode).String(),
				func(ctx context.Context) ([]change.Event, error) {
					return nil, os.Chmod(r.props.Path, os.FileMode(wantMode))
				},
				func(ctx context.Context) ([]change.Event, error) {
					return nil, os.Chmod(r.props.Path, prevMode)
				}))
		}
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

func checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum[:4])
}

func parentDir(path string) string {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
