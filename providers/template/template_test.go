package template

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRenderSubstitutesVars(t *testing.T) {
	eval := NewEvaluator(2 * time.Second)
	out, err := eval.Render(context.Background(), "motd", `content = "hello %s" % name`, map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "hello world" {
		t.Errorf("Render() = %q, want %q", out, "hello world")
	}
}

func TestRenderRequiresContentGlobal(t *testing.T) {
	eval := NewEvaluator(2 * time.Second)
	_, err := eval.Render(context.Background(), "motd", `x = 1`, nil)
	if err == nil {
		t.Fatal("expected an error when the script never sets \"content\"")
	}
}

func TestEvaluateWritesRenderedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motd")

	eval := NewEvaluator(2 * time.Second)
	r := New("motd", Properties{
		Path:   path,
		Script: `content = "hello %s" % name`,
		Vars:   map[string]any{"name": "world"},
	}, eval, nil)

	changes, err := r.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if _, err := changes[0].Forward(context.Background()); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("content = %q, want %q", got, "hello world")
	}
}

func TestEvalGenerateEmitsChildFileResources(t *testing.T) {
	dir := t.TempDir()

	eval := NewEvaluator(2 * time.Second)
	r := New("fragments", Properties{
		Path:   filepath.Join(dir, "unused"),
		Script: `content = ""
resources = [
    {"name": "a", "path": base + "/a.conf", "content": "a=1"},
    {"name": "b", "path": base + "/b.conf", "content": "b=2"},
]`,
		Vars: map[string]any{"base": dir},
	}, eval, nil)

	children, err := r.EvalGenerate(context.Background())
	if err != nil {
		t.Fatalf("EvalGenerate: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 generated resources, got %d", len(children))
	}
	if got, want := children[0].Ref(), "file[a]"; got != want {
		t.Errorf("children[0].Ref() = %q, want %q", got, want)
	}

	changes, err := children[0].Evaluate(context.Background())
	if err != nil {
		t.Fatalf("generated resource Evaluate: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected generated resource to be out of sync, got %d changes", len(changes))
	}
	if _, err := changes[0].Forward(context.Background()); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "a.conf"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "a=1" {
		t.Errorf("a.conf content = %q, want %q", got, "a=1")
	}
}

func TestEvalGenerateNoneWhenScriptSetsNoResources(t *testing.T) {
	eval := NewEvaluator(2 * time.Second)
	r := New("motd", Properties{
		Path:   "/unused",
		Script: `content = "hello"`,
	}, eval, nil)

	children, err := r.EvalGenerate(context.Background())
	if err != nil {
		t.Fatalf("EvalGenerate: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("expected no generated resources, got %d", len(children))
	}
}

func TestEvaluateNoopWhenRenderedContentMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motd")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eval := NewEvaluator(2 * time.Second)
	r := New("motd", Properties{
		Path:   path,
		Script: `content = "hello %s" % name`,
		Vars:   map[string]any{"name": "world"},
	}, eval, nil)

	changes, err := r.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes when rendered content already matches, got %d", len(changes))
	}
}
