package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LoadFromPaths reads every .rego file under the given file or directory
// paths and returns one enabled Policy per file, named after the file's
// base name with the extension stripped.
func LoadFromPaths(paths []string) ([]Policy, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("policy: failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.HasSuffix(path, ".rego") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("policy: failed to walk %s: %w", p, err)
		}
	}

	policies := make([]Policy, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("policy: failed to read %s: %w", f, err)
		}
		name := strings.TrimSuffix(filepath.Base(f), ".rego")
		policies = append(policies, Policy{
			Name:      name,
			Rego:      string(content),
			Severity:  SeverityError,
			Enabled:   true,
			CreatedAt: time.Now(),
		})
	}
	return policies, nil
}
