/*
resolver.go - Policy resolution

PURPOSE:
  Answers "which rule governs this employee for this leave type, as of this
  date". Resolution is explicit: no lazy-loaded associations, just typed
  lookups against the catalog.

RESOLUTION ORDER:
  1. Gender eligibility of the leave type (fails closed on mismatch,
     independent of any policy rule)
  2. Employee's explicit policy override, if assigned
  3. Latest Active policy for the joining category with EffectiveFrom <= asOf
  4. The (policy, leave type) rule; its absence means the leave type is
     simply not offered to this employee

ERRORS:
  "No policy assigned" and "leave type not offered" are distinct recoverable
  conditions - the UI words them differently.
*/
package leave

import (
	"context"
	"time"
)

// Resolver selects the single applicable policy rule for an employee.
type Resolver struct {
	Catalog *Catalog
}

func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{Catalog: catalog}
}

// Resolve returns the rule governing (employee, leaveType) as of the date.
func (r *Resolver) Resolve(ctx context.Context, emp *Employee, leaveType LeaveType, asOf time.Time) (PolicyRule, error) {
	// Gender restriction applies regardless of policy.
	if !leaveType.AppliesTo(emp.Gender) {
		return PolicyRule{}, &IneligibleError{
			EmployeeID: emp.ID,
			LeaveType:  leaveType.ID,
			Reason:     "gender_restriction",
		}
	}

	policy, err := r.policyFor(ctx, emp, asOf)
	if err != nil {
		return PolicyRule{}, err
	}

	rule, ok, err := r.Catalog.Rule(ctx, policy.ID, leaveType.ID)
	if err != nil {
		return PolicyRule{}, err
	}
	if !ok {
		return PolicyRule{}, ErrLeaveTypeNotOffered
	}
	return rule, nil
}

func (r *Resolver) policyFor(ctx context.Context, emp *Employee, asOf time.Time) (LeavePolicy, error) {
	if emp.LeavePolicyID != nil {
		policy, ok, err := r.Catalog.Policy(ctx, *emp.LeavePolicyID)
		if err != nil {
			return LeavePolicy{}, err
		}
		if !ok {
			return LeavePolicy{}, ErrNoPolicyAssigned
		}
		return policy, nil
	}

	policy, ok, err := r.Catalog.ActivePolicyFor(ctx, emp.JoiningCategory, asOf)
	if err != nil {
		return LeavePolicy{}, err
	}
	if !ok {
		return LeavePolicy{}, ErrNoPolicyAssigned
	}
	return policy, nil
}

// OfferedRules returns every rule the employee's policy offers, used by the
// accrual batch to walk an employee's leave types.
func (r *Resolver) OfferedRules(ctx context.Context, emp *Employee, asOf time.Time) ([]PolicyRule, error) {
	policy, err := r.policyFor(ctx, emp, asOf)
	if err != nil {
		return nil, err
	}
	return r.Catalog.RulesFor(ctx, policy.ID)
}
