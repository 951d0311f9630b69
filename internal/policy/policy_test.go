package policy

import (
	"context"
	"testing"
)

func TestBuiltinResourceIDPolicyDeniesUppercase(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()
	for _, p := range BuiltinPolicies() {
		if err := e.Register(ctx, p); err != nil {
			t.Fatalf("Register(%s): %v", p.Name, err)
		}
	}

	allowed, reason, err := e.Allow(ctx, "File[Etc-Passwd]", "file")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatalf("expected uppercase resource id to be denied, reason=%q", reason)
	}
}

func TestBuiltinResourceIDPolicyAllowsLowercase(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()
	for _, p := range BuiltinPolicies() {
		if err := e.Register(ctx, p); err != nil {
			t.Fatalf("Register(%s): %v", p.Name, err)
		}
	}

	allowed, _, err := e.Allow(ctx, "file[etc-passwd]", "file")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Fatal("expected lowercase resource id to be allowed")
	}
}

func TestEvaluateWithNoPoliciesAllowsEverything(t *testing.T) {
	e := NewEngine(nil)
	allowed, _, err := e.Allow(context.Background(), "file[x]", "file")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Fatal("expected an engine with no registered policies to allow everything")
	}
}
