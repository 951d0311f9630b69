package txn

import (
	"context"

	"github.com/latticectl/lattice/internal/resource"
)

// Gate is consulted once per resource immediately after tag/schedule
// filtering, alongside them rather than inside relationship.Build. A denied
// resource is skipped before apply, but is counted under policy_denied
// rather than skipped and does not cause its dependents to be skipped. A
// nil Gate admits everything.
type Gate interface {
	Allow(ctx context.Context, ref, kind string) (allowed bool, reason string, err error)
}

func (t *Transaction) isAllowed(ctx context.Context, r resource.Resource) bool {
	if t.cfg.Policy == nil {
		return true
	}
	allowed, reason, err := t.cfg.Policy.Allow(ctx, r.Ref(), r.Kind())
	if err != nil {
		r.Warning("policy evaluation failed: " + err.Error())
		return true
	}
	if !allowed {
		r.Warning("denied by policy: " + reason)
	}
	return allowed
}
