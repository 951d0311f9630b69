package remotefile

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
)

// Properties is the decoded form of a manifest.ResourceSpec's Properties
// map for the "remotefile" kind.
type Properties struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

// Resource manages one file's content and mode on a remote host reached
// through a shared Connection.
type Resource struct {
	name  string
	props Properties
	conn  *Connection
	log   *telemetry.ResourceLogger
}

// New constructs a remotefile Resource named name, configured by props,
// backed by conn. log may be nil.
func New(name string, props Properties, conn *Connection, log *telemetry.ResourceLogger) *Resource {
	return &Resource{name: name, props: props, conn: conn, log: log}
}

// Factory adapts New into a manifest.Factory registrable under kind
// "remotefile". conn is the single Connection every built resource will
// share; Prepare's provider prefetch dials it at most once.
func Factory(conn *Connection, base *telemetry.Logger) manifest.Factory {
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
		if props.Path == "" {
			return nil, fmt.Errorf("remotefile: %s: properties.path is required", spec.Name)
		}
		var log *telemetry.ResourceLogger
		if base != nil {
			log = telemetry.NewResourceLogger(base, "remotefile["+spec.Name+"]")
		}
		return New(spec.Name, props, conn, log), nil
	}
}

func (r *Resource) Kind() string      { return "remotefile" }
func (r *Resource) Name() string      { return r.name }
func (r *Resource) Ref() string       { return "remotefile[" + r.name + "]" }
func (r *Resource) Parent() string    { return "" }
func (r *Resource) IsContainer() bool { return false }

func (r *Resource) BuildDepends() []resource.Relation { return nil }

func (r *Resource) Autorequire(resource.Lookup) []resource.Relation { return nil }

func (r *Resource) Tagged([]string) bool { return true }
func (r *Resource) Scheduled() bool      { return true }

func (r *Resource) Provider() resource.Provider {
	if r.conn == nil {
		return nil
	}
	return r.conn
}

// Evaluate compares the remote file's content and mode against the
// declared properties and returns the changes needed to converge.
func (r *Resource) Evaluate(ctx context.Context) ([]*change.Change, error) {
	haveContent, err := r.conn.readFile(r.props.Path)
	if err != nil {
		return nil, fmt.Errorf("remotefile: %s: read failed: %w", r.name, err)
	}
	haveMode, existed, err := r.conn.statMode(r.props.Path)
	if err != nil {
		return nil, fmt.Errorf("remotefile: %s: stat failed: %w", r.name, err)
	}

	var changes []*change.Change

	wantContent := r.props.Content
	if !existed || haveContent != wantContent {
		prevContent := haveContent
		prevExisted := existed
		var wantMode os.FileMode
		if r.props.Mode != "" {
			m, err := strconv.ParseUint(r.props.Mode, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("remotefile: %s: invalid mode %q: %w", r.name, r.props.Mode, err)
			}
			wantMode = os.FileMode(m)
		}
		changes = append(changes, change.New(r.Ref(), "content", checksum(haveContent), checksum(wantContent),
			func(ctx context.Context) ([]change.Event, error) {
				if err := r.conn.writeFile(r.props.Path, wantContent, wantMode); err != nil {
					return nil, err
				}
				return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
			},
			func(ctx context.Context) ([]change.Event, error) {
				if !prevExisted {
					if err := r.conn.removeFile(r.props.Path); err != nil {
						return nil, err
					}
					return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
				}
				if err := r.conn.writeFile(r.props.Path, prevContent, 0); err != nil {
					return nil, err
				}
				return []change.Event{{Kind: "file_changed", Source: r.Ref()}}, nil
			}))
	}

	if r.props.Mode != "" && existed {
		wantModeVal, err := strconv.ParseUint(r.props.Mode, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("remotefile: %s: invalid mode %q: %w", r.name, r.props.Mode, err)
		}
		wantMode := os.FileMode(wantModeVal)
		if haveMode != wantMode {
			prevMode := haveMode
			changes = append(changes, change.New(r.Ref(), "mode", prevMode.String(), wantMode.String(),
				func(ctx context.Context) ([]change.Event, error) {
					return nil, r.conn.chmod(r.props.Path, wantMode)
				},
				func(ctx context.Context) ([]change.Event, error) {
					return nil, r.conn.chmod(r.props.Path, prevMode)
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
