/*
policy.go - Leave policy and rule definitions

PURPOSE:
  A LeavePolicy is the contract between the organization and a category of
  employees. Its child PolicyRules carry the per-leave-type entitlement:
  how many days per year, how they accrue, and what happens at cycle end.

RESOLUTION MODEL:
  Exactly one policy applies to an employee at a time:
    1. The employee's explicit LeavePolicyID override, if set
    2. Otherwise the Active policy for the employee's joining category with
       the latest EffectiveFrom <= asOf
  Policies carry no end date; "most recent active policy wins" is the
  disambiguation rule.

PROBATION:
  The source data model carried two flags (probation_restriction and
  available_during_probation) that were annotated as redundant. They are
  collapsed here into the single AvailableDuringProbation: when false, an
  employee inside probation has zero entitlement and cannot submit.

SEE ALSO:
  - resolver.go: Applies the resolution model
  - catalog.go: Read-through cache of policies and rules
*/
package leave

import "time"

// =============================================================================
// POLICY
// =============================================================================

type PolicyStatus string

const (
	PolicyActive   PolicyStatus = "active"
	PolicyInactive PolicyStatus = "inactive"
)

// LeavePolicy groups the rules for one joining category from one effective date.
type LeavePolicy struct {
	ID              PolicyID
	Name            string
	JoiningCategory JoiningCategory
	EffectiveFrom   time.Time
	Status          PolicyStatus
}

// =============================================================================
// POLICY RULE - keyed uniquely by (policy, leave type)
// =============================================================================

// AccrualFrequency determines how the annual entitlement lands in the ledger.
type AccrualFrequency string

const (
	// AccrualYearly credits the full annual entitlement at cycle start.
	AccrualYearly AccrualFrequency = "yearly"

	// AccrualMonthly credits annual/12 per completed month, floored to the
	// half-day granularity.
	AccrualMonthly AccrualFrequency = "monthly"
)

// PolicyRule is the entitlement for one leave type under one policy.
type PolicyRule struct {
	PolicyID    PolicyID
	LeaveTypeID LeaveTypeID

	// Total entitlement per cycle; fractional values support half days.
	AnnualDays Days

	Accrual AccrualFrequency

	// Single authoritative probation rule (see package comment above).
	AvailableDuringProbation bool

	AllowPartialLeave bool

	CarryForwardAllowed bool
	MaxCarryForward     Days

	RequiresApproval bool
	AutoApprove      bool
}

// MonthlyRate is the per-completed-month accrual amount.
func (r PolicyRule) MonthlyRate() Days { return r.AnnualDays.DivInt(12) }
