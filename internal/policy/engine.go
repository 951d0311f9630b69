package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/rego"

	"github.com/latticectl/lattice/internal/telemetry"
)

type compiledPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// Engine holds a set of compiled Rego policies and evaluates them against
// resources on the transaction engine's behalf.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	log      *telemetry.Logger
}

// NewEngine returns an Engine with no policies loaded.
func NewEngine(log *telemetry.Logger) *Engine {
	return &Engine{
		policies: make(map[string]*compiledPolicy),
		log:      log,
	}
}

// LoadPolicies compiles and registers every policy found under paths.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := LoadFromPaths(paths)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range policies {
		if err := e.compileAndStoreLocked(ctx, p); err != nil {
			return fmt.Errorf("policy: failed to compile %s: %w", p.Name, err)
		}
	}
	return nil
}

// Register compiles and registers a single policy directly, bypassing disk
// loading — used for built-in policies.
func (e *Engine) Register(ctx context.Context, p Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileAndStoreLocked(ctx, p)
}

func (e *Engine) compileAndStoreLocked(ctx context.Context, p Policy) error {
	pkg := extractPackageName(p.Rego)
	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}
	e.policies[p.Name] = &compiledPolicy{policy: p, query: query}
	return nil
}

// Evaluate runs every enabled policy against in and returns the combined
// set of violations.
func (e *Engine) Evaluate(ctx context.Context, in Input) ([]Violation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var violations []Violation
	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		results, err := cp.query.Eval(ctx, rego.EvalInput(in))
		if err != nil {
			if e.log != nil {
				e.log.WithField("policy", cp.policy.Name).WithError(err).Warn("policy evaluation failed")
			}
			continue
		}
		for _, result := range results {
			for _, expr := range result.Expressions {
				denySet, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, d := range denySet {
					violations = append(violations, toViolation(cp.policy, d, in))
				}
			}
		}
	}
	return violations, nil
}

// Allow satisfies txn.Gate: it evaluates every policy against the resource
// and denies if any violation carries error or critical severity.
func (e *Engine) Allow(ctx context.Context, ref, kind string) (bool, string, error) {
	violations, err := e.Evaluate(ctx, Input{Resource: &ResourceInput{ID: ref, Kind: kind}})
	if err != nil {
		return true, "", err
	}
	for _, v := range violations {
		if v.Severity == SeverityError || v.Severity == SeverityCritical {
			return false, v.Message, nil
		}
	}
	return true, "", nil
}

func toViolation(p Policy, result interface{}, in Input) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	if in.Resource != nil {
		v.Resource = in.Resource.ID
	}
	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if res, ok := r["resource"].(string); ok {
			v.Resource = res
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

func extractPackageName(regoSrc string) string {
	for _, line := range strings.Split(regoSrc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "lattice.policies"
}
