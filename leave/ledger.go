/*
ledger.go - Append-only balance ledger

PURPOSE:
  The ledger is the immutable source of truth for leave balances. Every
  accrual credit, carry-forward, forfeiture, manual grant, debit, and
  reversal is an entry; balance is always the signed sum of entries, never
  a stored counter that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete.
  2. PER-CYCLE: balance is computed over the cycle containing asOf. A
     carry-forward credit at cycle start imports whatever survived the
     previous cycle, so prior cycles never need to be re-summed.
  3. IDEMPOTENT: the same accrual period can never be credited twice; the
     idempotency key is the marker.

CORRECTIONS:
  A mistaken debit is not edited - a LeaveReversal offsets it and both stay
  in the ledger. Manual corrections are counter-grants.

EXAMPLE FLOW (12 days/year, yearly accrual, cap 4):
  cycle 1: AccrualCredit +12, LeaveDebit -6      -> end balance 6
  rollover: Forfeiture -2 (cycle 1), CarryForwardCredit +4 (cycle 2)
  cycle 2 opens at 4 + the new year's accrual.
*/
package leave

import (
	"context"
	"time"
)

// =============================================================================
// ENTRY - One immutable balance change
// =============================================================================

type EntryKind string

const (
	EntryAccrualCredit EntryKind = "accrual_credit"      // Scheduled entitlement credit
	EntryCarryForward  EntryKind = "carry_forward_credit" // Unused balance imported into a new cycle
	EntryForfeiture    EntryKind = "forfeiture"           // Unused balance dropped at cycle end
	EntryManualGrant   EntryKind = "manual_grant"         // HR/Admin grant or clawback
	EntryLeaveDebit    EntryKind = "leave_debit"          // Approved leave
	EntryLeaveReversal EntryKind = "leave_reversal"       // Withdrawal offsetting a debit
)

// Entry is one signed balance change for (employee, leave type, cycle).
type Entry struct {
	ID          EntryID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID

	// CycleStart pins the entry to its accrual cycle.
	CycleStart time.Time

	// EffectiveAt is the date the change takes effect (a monthly credit's
	// completion date, an approved leave's start date, ...).
	EffectiveAt time.Time

	Delta Days
	Kind  EntryKind

	// ReferenceID links debits/reversals to their request and manual grants
	// to their grant record.
	ReferenceID string
	Reason      string

	// IdempotencyKey is set on accrual and rollover entries; the store
	// rejects duplicates, which is the accrual batch's re-run guard.
	IdempotencyKey string

	CreatedBy string
	CreatedAt time.Time
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// BalanceLedger exposes balance queries and validated appends over a Store.
type BalanceLedger struct {
	store Store
}

func NewBalanceLedger(store Store) *BalanceLedger {
	return &BalanceLedger{store: store}
}

// Append adds one entry, enforcing idempotency key uniqueness.
func (l *BalanceLedger) Append(ctx context.Context, e Entry) error {
	if e.IdempotencyKey != "" {
		exists, err := l.store.EntryExists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateEntry
		}
	}
	return l.store.AppendEntry(ctx, e)
}

// Entries returns the full audit trail for (employee, leave type).
func (l *BalanceLedger) Entries(ctx context.Context, emp EmployeeID, lt LeaveTypeID) ([]Entry, error) {
	return l.store.Entries(ctx, emp, lt)
}

// CurrentBalance is the signed sum of the entries in the cycle containing
// asOf whose effective date is <= asOf. Used for display; transition gating
// happens inside the workflow's transaction.
func (l *BalanceLedger) CurrentBalance(ctx context.Context, emp *Employee, lt LeaveTypeID, asOf time.Time) (Days, Cycle, error) {
	cycle := CycleFor(emp.DateOfJoining, asOf)
	balance, err := cycleBalanceAsOf(ctx, l.store, emp.ID, lt, cycle, asOf)
	return balance, cycle, err
}

// Summary breaks the current cycle down by entry kind for display.
func (l *BalanceLedger) Summary(ctx context.Context, emp *Employee, lt LeaveTypeID, asOf time.Time) (*BalanceSummary, error) {
	cycle := CycleFor(emp.DateOfJoining, asOf)
	entries, err := l.store.EntriesInCycle(ctx, emp.ID, lt, cycle.Start)
	if err != nil {
		return nil, err
	}

	s := &BalanceSummary{EmployeeID: emp.ID, LeaveTypeID: lt, Cycle: cycle}
	at := DateOnly(asOf)
	for _, e := range entries {
		if DateOnly(e.EffectiveAt).After(at) {
			continue
		}
		s.Balance = s.Balance.Add(e.Delta)
		switch e.Kind {
		case EntryAccrualCredit:
			s.Accrued = s.Accrued.Add(e.Delta)
		case EntryCarryForward:
			s.CarriedForward = s.CarriedForward.Add(e.Delta)
		case EntryForfeiture:
			s.Forfeited = s.Forfeited.Add(e.Delta.Neg())
		case EntryManualGrant:
			s.Granted = s.Granted.Add(e.Delta)
		case EntryLeaveDebit:
			s.Used = s.Used.Add(e.Delta.Neg())
		case EntryLeaveReversal:
			s.Used = s.Used.Sub(e.Delta)
		}
	}
	return s, nil
}

// BalanceSummary is the per-cycle breakdown behind the balance endpoint.
type BalanceSummary struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Cycle       Cycle

	Balance        Days
	Accrued        Days
	CarriedForward Days
	Granted        Days
	Used           Days // net of reversals
	Forfeited      Days
}

// =============================================================================
// SHARED SUM HELPERS (also used inside workflow transactions)
// =============================================================================

// cycleBalanceAsOf sums a cycle's entries effective on or before asOf.
func cycleBalanceAsOf(ctx context.Context, s Store, emp EmployeeID, lt LeaveTypeID, cycle Cycle, asOf time.Time) (Days, error) {
	entries, err := s.EntriesInCycle(ctx, emp, lt, cycle.Start)
	if err != nil {
		return Days{}, err
	}
	balance := ZeroDays()
	at := DateOnly(asOf)
	for _, e := range entries {
		if DateOnly(e.EffectiveAt).After(at) {
			continue
		}
		balance = balance.Add(e.Delta)
	}
	return balance, nil
}

// cycleBalanceCommitted sums every entry in the cycle, including debits for
// future-dated approved leave. This is the gating sum: two approvals racing
// for the same balance both count each other's committed debits, so the
// second serializes into an insufficient-balance failure instead of
// silently overdrawing.
func cycleBalanceCommitted(ctx context.Context, s Store, emp EmployeeID, lt LeaveTypeID, cycle Cycle) (Days, error) {
	entries, err := s.EntriesInCycle(ctx, emp, lt, cycle.Start)
	if err != nil {
		return Days{}, err
	}
	balance := ZeroDays()
	for _, e := range entries {
		balance = balance.Add(e.Delta)
	}
	return balance, nil
}
