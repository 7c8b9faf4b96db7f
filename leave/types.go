/*
Package leave implements the leave entitlement, accrual, and approval engine.

PURPOSE:
  This package contains the domain types and algorithms that govern how
  leave is earned and spent: policy resolution, time-based accrual with
  carry-forward, an append-only balance ledger, and the request approval
  state machine.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType: Reference data for a kind of leave (paid, gender-restricted, ...)
  - Employee: The directory view this engine consumes (read-only)
  - JoiningCategory: Which policy family applies to an employee
  - EmployeeDirectory: External collaborator for employee lookup

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries and grants are never modified, only offset
  2. Precision: Uses decimal.Decimal so half-day units never drift
  3. Type Safety: Strong typing for IDs prevents mixing employee/policy IDs
  4. Auditability: Every balance change carries reason, reference, and actor

SEE ALSO:
  - policy.go: LeavePolicy and PolicyRule definitions
  - ledger.go: Append-only balance ledger
  - workflow.go: Request approval state machine
*/
package leave

import (
	"context"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type PolicyID string
type RequestID string
type GrantID string
type EntryID string

// =============================================================================
// LEAVE TYPE - Reference data, edited rarely
// =============================================================================

// Gender restricts a leave type to employees of a recorded gender.
// GenderAll means no restriction (the common case).
type Gender string

const (
	GenderAll    Gender = "all"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// LeaveType describes a kind of leave (casual, sick, maternity, ...).
// RequiresApproval/AutoApprove are defaults; the policy rule may override.
type LeaveType struct {
	ID               LeaveTypeID
	Name             string
	IsPaid           bool
	ApplicableGender Gender
	RequiresApproval bool
	AutoApprove      bool
}

// AppliesTo reports whether the leave type is open to the given gender.
// An unrestricted type applies to everyone; a restricted type fails closed
// when the employee's gender is unrecorded.
func (lt LeaveType) AppliesTo(g Gender) bool {
	if lt.ApplicableGender == GenderAll || lt.ApplicableGender == "" {
		return true
	}
	return lt.ApplicableGender == g
}

// =============================================================================
// EMPLOYEE - Read-only directory view
// =============================================================================

// JoiningCategory selects which policy family applies to an employee.
type JoiningCategory string

const (
	CategoryNewJoinee JoiningCategory = "new_joinee"
	CategoryIntern    JoiningCategory = "intern"
	CategoryPermanent JoiningCategory = "permanent"
)

// Employee is the directory record this engine consumes. The engine never
// writes employee data; it is owned by the employee directory collaborator.
type Employee struct {
	ID              EmployeeID
	Name            string
	Gender          Gender
	JoiningCategory JoiningCategory
	DateOfJoining   time.Time
	ProbationEnd    time.Time // zero = no probation period

	// Explicit policy override. When set, policy resolution skips the
	// joining-category lookup entirely.
	LeavePolicyID *PolicyID
}

// InProbation reports whether the employee is still within probation at asOf.
func (e *Employee) InProbation(asOf time.Time) bool {
	if e.ProbationEnd.IsZero() {
		return false
	}
	return DateOnly(asOf).Before(DateOnly(e.ProbationEnd))
}

// EmployeeDirectory is the external collaborator for employee lookup.
// The sqlite store ships an implementation for standalone deployments.
type EmployeeDirectory interface {
	Employee(ctx context.Context, id EmployeeID) (*Employee, error)
	Employees(ctx context.Context) ([]Employee, error)
}
