/*
catalog.go - Read-through cache of leave configuration

PURPOSE:
  Policies, rules, and leave types are read-mostly configuration. Instead of
  re-querying them inline with every request, the Catalog loads them once
  per process and refreshes on a bounded interval or an explicit
  invalidation signal (after an admin edit).

CONSISTENCY:
  Configuration staleness within the TTL is acceptable: policy edits are
  rare HR actions, and ledger correctness never depends on the cache (the
  cycle key and idempotency markers are persisted on each entry).
*/
package leave

import (
	"context"
	"sync"
	"time"
)

// CatalogSource is the persistence behind the catalog.
type CatalogSource interface {
	LeaveTypes(ctx context.Context) ([]LeaveType, error)
	Policies(ctx context.Context) ([]LeavePolicy, error)
	PolicyRules(ctx context.Context) ([]PolicyRule, error)
}

// Catalog is the in-process configuration cache.
type Catalog struct {
	source CatalogSource
	ttl    time.Duration

	mu         sync.RWMutex
	loadedAt   time.Time
	leaveTypes map[LeaveTypeID]LeaveType
	policies   map[PolicyID]LeavePolicy
	rules      map[PolicyID]map[LeaveTypeID]PolicyRule
}

// NewCatalog creates a catalog over the given source. A non-positive ttl
// disables time-based refresh; Invalidate still forces a reload.
func NewCatalog(source CatalogSource, ttl time.Duration) *Catalog {
	return &Catalog{source: source, ttl: ttl}
}

// Refresh reloads the catalog from its source.
func (c *Catalog) Refresh(ctx context.Context) error {
	types, err := c.source.LeaveTypes(ctx)
	if err != nil {
		return err
	}
	policies, err := c.source.Policies(ctx)
	if err != nil {
		return err
	}
	rules, err := c.source.PolicyRules(ctx)
	if err != nil {
		return err
	}

	typeMap := make(map[LeaveTypeID]LeaveType, len(types))
	for _, lt := range types {
		typeMap[lt.ID] = lt
	}
	policyMap := make(map[PolicyID]LeavePolicy, len(policies))
	for _, p := range policies {
		policyMap[p.ID] = p
	}
	ruleMap := make(map[PolicyID]map[LeaveTypeID]PolicyRule)
	for _, r := range rules {
		if ruleMap[r.PolicyID] == nil {
			ruleMap[r.PolicyID] = make(map[LeaveTypeID]PolicyRule)
		}
		ruleMap[r.PolicyID][r.LeaveTypeID] = r
	}

	c.mu.Lock()
	c.leaveTypes = typeMap
	c.policies = policyMap
	c.rules = ruleMap
	c.loadedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Invalidate forces the next read to reload.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.loadedAt.IsZero() && (c.ttl <= 0 || time.Since(c.loadedAt) < c.ttl)
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.Refresh(ctx)
}

// LeaveType returns the leave type or ErrLeaveTypeNotFound.
func (c *Catalog) LeaveType(ctx context.Context, id LeaveTypeID) (LeaveType, error) {
	if err := c.ensure(ctx); err != nil {
		return LeaveType{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	lt, ok := c.leaveTypes[id]
	if !ok {
		return LeaveType{}, ErrLeaveTypeNotFound
	}
	return lt, nil
}

// LeaveTypes returns all configured leave types.
func (c *Catalog) LeaveTypes(ctx context.Context) ([]LeaveType, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LeaveType, 0, len(c.leaveTypes))
	for _, lt := range c.leaveTypes {
		out = append(out, lt)
	}
	return out, nil
}

// Policy returns a policy by ID.
func (c *Catalog) Policy(ctx context.Context, id PolicyID) (LeavePolicy, bool, error) {
	if err := c.ensure(ctx); err != nil {
		return LeavePolicy{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.policies[id]
	return p, ok, nil
}

// Policies returns all configured policies.
func (c *Catalog) Policies(ctx context.Context) ([]LeavePolicy, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LeavePolicy, 0, len(c.policies))
	for _, p := range c.policies {
		out = append(out, p)
	}
	return out, nil
}

// ActivePolicyFor selects the Active policy for a joining category whose
// EffectiveFrom is the latest date <= asOf. Policies carry no end date, so
// the most recent active policy wins.
func (c *Catalog) ActivePolicyFor(ctx context.Context, category JoiningCategory, asOf time.Time) (LeavePolicy, bool, error) {
	if err := c.ensure(ctx); err != nil {
		return LeavePolicy{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best LeavePolicy
	found := false
	at := DateOnly(asOf)
	for _, p := range c.policies {
		if p.Status != PolicyActive || p.JoiningCategory != category {
			continue
		}
		if DateOnly(p.EffectiveFrom).After(at) {
			continue
		}
		if !found || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
			found = true
		}
	}
	return best, found, nil
}

// Rule returns the rule for (policy, leave type), if any.
func (c *Catalog) Rule(ctx context.Context, policyID PolicyID, leaveTypeID LeaveTypeID) (PolicyRule, bool, error) {
	if err := c.ensure(ctx); err != nil {
		return PolicyRule{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rules[policyID][leaveTypeID]
	return r, ok, nil
}

// RulesFor returns every rule under a policy.
func (c *Catalog) RulesFor(ctx context.Context, policyID PolicyID) ([]PolicyRule, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PolicyRule, 0, len(c.rules[policyID]))
	for _, r := range c.rules[policyID] {
		out = append(out, r)
	}
	return out, nil
}
