package manifest

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// LoadCUE parses CUE manifest sources (files or package directories) and
// unifies them into a single Manifest, following the teacher's CUEParser
// approach of unifying per-source cue.Value before extracting concrete Go
// structs out of the result.
func LoadCUE(sources []string) (*Manifest, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("manifest: no CUE sources provided")
	}

	ctx := cuecontext.New()
	var unified cue.Value
	var sourceFiles []string

	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("manifest: failed to stat %s: %w", src, err)
		}

		var val cue.Value
		if info.IsDir() {
			val, err = loadCUEDirectory(ctx, src)
			sourceFiles = append(sourceFiles, src)
		} else {
			val, err = loadCUEFile(ctx, src)
			sourceFiles = append(sourceFiles, src)
		}
		if err != nil {
			return nil, err
		}

		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
	}

	if err := unified.Err(); err != nil {
		return nil, convertCUEError(sourceFiles, err)
	}

	return extractManifest(unified, sourceFiles)
}

func loadCUEDirectory(ctx *cue.Context, dir string) (cue.Value, error) {
	instances := load.Instances([]string{dir}, nil)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("manifest: no CUE files found in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, convertCUEError([]string{dir}, inst.Err)
	}
	val := ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEError([]string{dir}, err)
	}
	return val, nil
}

func loadCUEFile(ctx *cue.Context, path string) (cue.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("manifest: failed to read %s: %w", path, err)
	}
	val := ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEError([]string{path}, err)
	}
	return val, nil
}

func extractManifest(val cue.Value, sourceFiles []string) (*Manifest, error) {
	m := &Manifest{SourceFiles: sourceFiles}

	workspaceVal := val.LookupPath(cue.ParsePath("workspace"))
	if workspaceVal.Exists() {
		if err := workspaceVal.Decode(&m.Workspace); err != nil {
			return nil, ValidationError{Path: "workspace", Message: err.Error(), Severity: "error"}
		}
	}

	resourcesVal := val.LookupPath(cue.ParsePath("resources"))
	if !resourcesVal.Exists() {
		return m, nil
	}

	switch resourcesVal.Kind() {
	case cue.StructKind:
		iter, err := resourcesVal.Fields(cue.All())
		if err != nil {
			return nil, ValidationError{Path: "resources", Message: err.Error(), Severity: "error"}
		}
		for iter.Next() {
			var spec ResourceSpec
			if err := iter.Value().Decode(&spec); err != nil {
				return nil, ValidationError{
					Path:     "resources." + iter.Selector().String(),
					Message:  err.Error(),
					Severity: "error",
				}
			}
			m.Resources = append(m.Resources, spec)
		}
	case cue.ListKind:
		list, err := resourcesVal.List()
		if err != nil {
			return nil, ValidationError{Path: "resources", Message: err.Error(), Severity: "error"}
		}
		idx := 0
		for list.Next() {
			var spec ResourceSpec
			if err := list.Value().Decode(&spec); err != nil {
				return nil, ValidationError{
					Path:     fmt.Sprintf("resources[%d]", idx),
					Message:  err.Error(),
					Severity: "error",
				}
			}
			m.Resources = append(m.Resources, spec)
			idx++
		}
	}

	return m, nil
}

func convertCUEError(sourceFiles []string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	file := ""
	if len(sourceFiles) > 0 {
		file = sourceFiles[0]
	}
	pos := cueerrors.Positions(errs[0])
	if len(pos) > 0 {
		file = pos[0].Filename()
	}
	return ValidationError{
		File:     file,
		Message:  cueerrors.Details(errs[0], nil),
		Severity: "error",
	}
}
