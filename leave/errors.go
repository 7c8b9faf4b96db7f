/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every rejected transition surfaces its specific kind so callers (the UI)
  can message the employee accurately; nothing is silently swallowed.

ERROR CATEGORIES:
  1. Resolution errors - No policy / leave type not offered / ineligible
  2. Validation errors - Bad date ranges, overlaps, insufficient balance
  3. Concurrency errors - Lost races on the ledger or a request row

USAGE:
  if errors.Is(err, leave.ErrInsufficientBalance) { ... }

  var short *leave.InsufficientBalanceError
  if errors.As(err, &short) { show(short.Available) }
*/
package leave

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoPolicyAssigned is returned when no active policy resolves for the
	// employee's joining category and no override is set.
	ErrNoPolicyAssigned = errors.New("no leave policy assigned")

	// ErrLeaveTypeNotOffered is returned when the resolved policy carries no
	// rule for the requested leave type. Distinct from ErrNoPolicyAssigned.
	ErrLeaveTypeNotOffered = errors.New("leave type not offered by policy")

	// ErrIneligibleByPolicy is returned for probation or gender restrictions.
	ErrIneligibleByPolicy = errors.New("ineligible by policy")

	// ErrInsufficientBalance is returned when a paid-leave debit would exceed
	// the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidDateRange covers end-before-start and zero-working-day spans.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrOverlappingRequest is returned when the span collides with an
	// existing pending or approved request.
	ErrOverlappingRequest = errors.New("overlapping leave request")

	// ErrConcurrentModification is returned when a guarded transition lost a
	// race. Callers should re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateEntry is returned by the store when a ledger entry with the
	// same idempotency key already exists.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrAccrualAlreadyApplied marks an accrual period that was credited by a
	// previous batch run. Treated as a no-op success, but logged.
	ErrAccrualAlreadyApplied = errors.New("accrual already applied for period")

	// ErrInvalidTransition is returned for a request transition outside the
	// state machine (e.g. approving a rejected request).
	ErrInvalidTransition = errors.New("invalid request transition")

	// ErrPartialNotAllowed is returned when an approver narrows the span but
	// the rule forbids partial leave.
	ErrPartialNotAllowed = errors.New("partial approval not allowed by policy")

	ErrEmployeeNotFound  = errors.New("employee not found")
	ErrLeaveTypeNotFound = errors.New("leave type not found")
	ErrRequestNotFound   = errors.New("leave request not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the exact shortfall.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	LeaveType  LeaveTypeID
	Available  Days
	Requested  Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %s, requested %s",
		e.LeaveType, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// OverlapError identifies the request that blocks a new submission.
type OverlapError struct {
	EmployeeID EmployeeID
	ExistingID RequestID
	Start, End time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("requested span overlaps request %s (%s to %s)",
		e.ExistingID, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingRequest }

// IneligibleError states why the policy excludes the employee.
type IneligibleError struct {
	EmployeeID EmployeeID
	LeaveType  LeaveTypeID
	Reason     string // "gender_restriction" or "probation"
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("employee %s is not eligible for %s: %s", e.EmployeeID, e.LeaveType, e.Reason)
}

func (e *IneligibleError) Unwrap() error { return ErrIneligibleByPolicy }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrOverlappingRequest) ||
		errors.Is(err, ErrIneligibleByPolicy) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPartialNotAllowed)
}

// IsNotFound returns true if the error indicates a missing record or rule.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoPolicyAssigned) ||
		errors.Is(err, ErrLeaveTypeNotOffered) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrLeaveTypeNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
