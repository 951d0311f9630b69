// Package template implements a resource.Resource that renders a file's
// content from a Starlark script, grounded on the teacher's
// StarlarkEvaluator.
package template

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/latticectl/lattice/internal/txn"
)

// Evaluator executes a Starlark rendering script under a timeout and
// extracts its "content" global as the rendered output.
type Evaluator struct {
	timeout time.Duration
}

// NewEvaluator returns an Evaluator with the given per-render timeout. A
// zero timeout defaults to 30 seconds.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Evaluator{timeout: timeout}
}

// Render executes script with vars bound as predeclared globals and
// returns the string value the script assigns to a top-level "content"
// variable.
func (e *Evaluator) Render(ctx context.Context, name, script string, vars map[string]any) (string, error) {
	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		out, err := e.renderSync(name, script, vars)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- out
	}()

	select {
	case <-evalCtx.Done():
		return "", txn.NewTransientError(fmt.Sprintf("render timed out after %v", e.timeout), nil).
			WithOperation("evaluate").WithDetail("script", name)
	case err := <-errCh:
		return "", err
	case out := <-resultCh:
		return out, nil
	}
}

func (e *Evaluator) renderSync(name, script string, vars map[string]any) (string, error) {
	globals, err := e.execGlobals(name, script, vars)
	if err != nil {
		return "", err
	}

	content, ok := globals["content"]
	if !ok {
		return "", txn.NewPermanentError(fmt.Sprintf("%s: script did not set a top-level \"content\" variable", name), nil).
			WithOperation("evaluate")
	}
	s, ok := starlark.AsString(content)
	if !ok {
		return "", txn.NewPermanentError(fmt.Sprintf("%s: \"content\" must be a string, got %s", name, content.Type()), nil).
			WithOperation("evaluate")
	}
	return s, nil
}

// execGlobals runs script with vars bound as predeclared globals and
// returns everything it assigned at the top level, for callers that need
// a variable other than "content" (e.g. RenderChildren's "resources").
func (e *Evaluator) execGlobals(name, script string, vars map[string]any) (starlark.StringDict, error) {
	thread := &starlark.Thread{
		Name:  name,
		Print: func(*starlark.Thread, string) {},
	}

	predeclared := starlark.StringDict{}
	for key, val := range vars {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("template: %s: converting var %q: %w", name, key, err)
		}
		predeclared[key] = sv
	}

	globals, err := starlark.ExecFile(thread, name+".star", script, predeclared)
	if err != nil {
		return nil, txn.NewPermanentError(fmt.Sprintf("%s: render failed", name), err).WithOperation("evaluate")
	}
	return globals, nil
}

// GeneratedResource is one child resource declaration a script emits via a
// top-level "resources" list, each entry a dict of name/path/content/mode.
type GeneratedResource struct {
	Name    string
	Path    string
	Content string
	Mode    string
}

// RenderChildren executes script under the same timeout as Render and
// extracts whatever child resource declarations it assigned to a
// top-level "resources" list. A script with no "resources" global
// produces none — EvalGenerate is opt-in per script.
func (e *Evaluator) RenderChildren(ctx context.Context, name, script string, vars map[string]any) ([]GeneratedResource, error) {
	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan []GeneratedResource, 1)
	errCh := make(chan error, 1)

	go func() {
		out, err := e.generateSync(name, script, vars)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- out
	}()

	select {
	case <-evalCtx.Done():
		return nil, txn.NewTransientError(fmt.Sprintf("generate timed out after %v", e.timeout), nil).
			WithOperation("eval_generate").WithDetail("script", name)
	case err := <-errCh:
		return nil, err
	case out := <-resultCh:
		return out, nil
	}
}

func (e *Evaluator) generateSync(name, script string, vars map[string]any) ([]GeneratedResource, error) {
	globals, err := e.execGlobals(name, script, vars)
	if err != nil {
		return nil, err
	}

	raw, ok := globals["resources"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.(*starlark.List)
	if !ok {
		return nil, txn.NewPermanentError(fmt.Sprintf("%s: \"resources\" must be a list, got %s", name, raw.Type()), nil).
			WithOperation("eval_generate")
	}

	out := make([]GeneratedResource, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		dict, ok := list.Index(i).(*starlark.Dict)
		if !ok {
			return nil, txn.NewPermanentError(fmt.Sprintf("%s: resources[%d] must be a dict", name, i), nil).
				WithOperation("eval_generate")
		}
		gr := GeneratedResource{Mode: "0644"}
		gr.Name, _ = dictString(dict, "name")
		gr.Path, _ = dictString(dict, "path")
		gr.Content, _ = dictString(dict, "content")
		if v, ok := dictString(dict, "mode"); ok {
			gr.Mode = v
		}
		if gr.Name == "" || gr.Path == "" {
			return nil, txn.NewPermanentError(
				fmt.Sprintf("%s: resources[%d] missing required \"name\"/\"path\"", name, i), nil).
				WithOperation("eval_generate")
		}
		out = append(out, gr)
	}
	return out, nil
}

func dictString(d *starlark.Dict, key string) (string, bool) {
	v, found, err := d.Get(starlark.String(key))
	if err != nil || !found {
		return "", false
	}
	return starlark.AsString(v)
}

func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
