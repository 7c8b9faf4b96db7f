/*
workflow.go - Leave request workflow

PURPOSE:
  Orchestrates the request lifecycle: submission validation, the approval
  decision, and withdrawal. Every transition that changes balance runs the
  guarded request update and its ledger entry inside one store transaction.

SUBMISSION CHECKS (in order):
  1. start <= end
  2. policy resolution (gender, assignment, offering)
  3. probation eligibility
  4. working-day count > 0
  5. no overlapping open request (inside the transaction)
  6. paid leave: committed cycle balance covers the requested days
     (inside the transaction, so racing submissions serialize)

BALANCE GATING:
  The gate sums every entry in the cycle, including debits whose effective
  date is still in the future. Two approvals racing for the same balance
  each see the other's committed debit, so the loser fails with
  insufficient balance instead of overdrawing.

AUTO-APPROVE:
  When the rule auto-approves, submission inserts the request already
  Approved and writes its debit in the same transaction. There is no
  intermediate Pending row.
*/
package leave

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Workflow drives leave requests through their state machine.
type Workflow struct {
	directory EmployeeDirectory
	catalog   *Catalog
	resolver  *Resolver
	store     TxStore
	calendar  WorkingCalendar

	now func() time.Time
}

func NewWorkflow(directory EmployeeDirectory, catalog *Catalog, store TxStore, calendar WorkingCalendar) *Workflow {
	return &Workflow{
		directory: directory,
		catalog:   catalog,
		resolver:  NewResolver(catalog),
		store:     store,
		calendar:  calendar,
		now:       time.Now,
	}
}

// SubmitInput carries one submission.
type SubmitInput struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
}

// Decision is an approver's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DecideInput carries one approval or rejection. The approved span fields
// are optional; when set they must narrow the requested span and the rule
// must allow partial leave.
type DecideInput struct {
	RequestID RequestID
	Decision  Decision
	ActorID   string
	Note      string

	ApprovedStart *time.Time
	ApprovedEnd   *time.Time
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit validates and records a new leave request. Auto-approved requests
// are inserted Approved with their debit in the same transaction.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (*Request, error) {
	start, end := DateOnly(in.StartDate), DateOnly(in.EndDate)
	if end.Before(start) {
		return nil, ErrInvalidDateRange
	}

	emp, err := w.directory.Employee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	leaveType, err := w.catalog.LeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	rule, err := w.resolver.Resolve(ctx, emp, leaveType, start)
	if err != nil {
		return nil, err
	}
	if !rule.AvailableDuringProbation && emp.InProbation(w.now()) {
		return nil, &IneligibleError{EmployeeID: emp.ID, LeaveType: leaveType.ID, Reason: "probation"}
	}

	requestedDays, err := WorkingDaysBetween(ctx, w.calendar, start, end)
	if err != nil {
		return nil, err
	}
	if requestedDays.IsZero() {
		return nil, ErrInvalidDateRange
	}

	now := w.now()
	req := &Request{
		ID:            RequestID(uuid.NewString()),
		EmployeeID:    emp.ID,
		LeaveTypeID:   leaveType.ID,
		StartDate:     start,
		EndDate:       end,
		RequestedDays: requestedDays,
		Reason:        in.Reason,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = w.store.WithTx(ctx, func(tx Store) error {
		if err := w.checkOverlap(ctx, tx, emp.ID, start, end); err != nil {
			return err
		}

		cycle := CycleFor(emp.DateOfJoining, start)
		if leaveType.IsPaid {
			if err := w.checkBalance(ctx, tx, emp, leaveType.ID, cycle, requestedDays); err != nil {
				return err
			}
		}

		if !rule.AutoApprove {
			return tx.InsertRequest(ctx, *req)
		}

		decidedAt := now
		req.Status = StatusApproved
		req.ApprovedStart = start
		req.ApprovedEnd = end
		req.ApprovedDays = requestedDays
		req.DecidedBy = "system"
		req.DecidedAt = &decidedAt
		if err := tx.InsertRequest(ctx, *req); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, w.debitEntry(req, cycle, now))
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// =============================================================================
// DECISION
// =============================================================================

// Decide approves or rejects a pending request. Approval appends exactly
// one debit entry atomically with the status transition. Lookups happen
// before the transaction; the guarded update catches any race on the row.
func (w *Workflow) Decide(ctx context.Context, in DecideInput) (*Request, error) {
	req, err := w.store.GetRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	target := StatusApproved
	if in.Decision == DecisionReject {
		target = StatusRejected
	}
	if !req.CanTransition(target) {
		return nil, ErrInvalidTransition
	}

	now := w.now()
	req.DecidedBy = in.ActorID
	req.DecidedAt = &now
	req.DecisionNote = in.Note
	req.UpdatedAt = now

	if in.Decision == DecisionReject {
		req.Status = StatusRejected
		if err := w.store.UpdateRequest(ctx, *req, StatusPending); err != nil {
			return nil, err
		}
		return req, nil
	}

	emp, err := w.directory.Employee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	leaveType, err := w.catalog.LeaveType(ctx, req.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	rule, err := w.resolver.Resolve(ctx, emp, leaveType, req.StartDate)
	if err != nil {
		return nil, err
	}

	approvedStart, approvedEnd, approvedDays, err := w.approvedSpan(ctx, req, rule, in)
	if err != nil {
		return nil, err
	}

	cycle := CycleFor(emp.DateOfJoining, approvedStart)
	req.Status = StatusApproved
	req.ApprovedStart = approvedStart
	req.ApprovedEnd = approvedEnd
	req.ApprovedDays = approvedDays

	err = w.store.WithTx(ctx, func(tx Store) error {
		if leaveType.IsPaid {
			if err := w.checkBalance(ctx, tx, emp, leaveType.ID, cycle, approvedDays); err != nil {
				return err
			}
		}
		if err := tx.UpdateRequest(ctx, *req, StatusPending); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, w.debitEntry(req, cycle, now))
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// approvedSpan resolves the span and day count the debit is written from.
func (w *Workflow) approvedSpan(ctx context.Context, req *Request, rule PolicyRule, in DecideInput) (time.Time, time.Time, Days, error) {
	start, end := req.StartDate, req.EndDate
	if in.ApprovedStart != nil {
		start = DateOnly(*in.ApprovedStart)
	}
	if in.ApprovedEnd != nil {
		end = DateOnly(*in.ApprovedEnd)
	}
	if end.Before(start) || start.Before(req.StartDate) || end.After(req.EndDate) {
		return time.Time{}, time.Time{}, Days{}, ErrInvalidDateRange
	}

	days, err := WorkingDaysBetween(ctx, w.calendar, start, end)
	if err != nil {
		return time.Time{}, time.Time{}, Days{}, err
	}
	if days.IsZero() {
		return time.Time{}, time.Time{}, Days{}, ErrInvalidDateRange
	}
	if days.LessThan(req.RequestedDays) && !rule.AllowPartialLeave {
		return time.Time{}, time.Time{}, Days{}, ErrPartialNotAllowed
	}
	return start, end, days, nil
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

// Withdraw cancels a request. A pending request is closed as rejected with
// the employee as actor; an approved one moves to Withdrawn and a reversal
// entry restores the debited balance.
func (w *Workflow) Withdraw(ctx context.Context, id RequestID, actorID string) (*Request, error) {
	req, err := w.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	now := w.now()

	switch {
	case req.Status == StatusPending:
		req.Status = StatusRejected
		req.DecidedBy = actorID
		req.DecidedAt = &now
		req.DecisionNote = "withdrawn by employee"
		req.UpdatedAt = now
		if err := w.store.UpdateRequest(ctx, *req, StatusPending); err != nil {
			return nil, err
		}
		return req, nil

	case req.CanTransition(StatusWithdrawn):
		emp, err := w.directory.Employee(ctx, req.EmployeeID)
		if err != nil {
			return nil, err
		}
		req.Status = StatusWithdrawn
		req.WithdrawnAt = &now
		req.UpdatedAt = now

		cycle := CycleFor(emp.DateOfJoining, req.ApprovedStart)
		reversal := Entry{
			ID:          EntryID(uuid.NewString()),
			EmployeeID:  req.EmployeeID,
			LeaveTypeID: req.LeaveTypeID,
			CycleStart:  cycle.Start,
			EffectiveAt: req.ApprovedStart,
			Delta:       req.ApprovedDays,
			Kind:        EntryLeaveReversal,
			ReferenceID: string(req.ID),
			Reason:      "leave withdrawn",
			CreatedBy:   actorID,
			CreatedAt:   now,
		}
		err = w.store.WithTx(ctx, func(tx Store) error {
			if err := tx.UpdateRequest(ctx, *req, StatusApproved); err != nil {
				return err
			}
			return tx.AppendEntry(ctx, reversal)
		})
		if err != nil {
			return nil, err
		}
		return req, nil

	default:
		return nil, ErrInvalidTransition
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Request returns one request by ID.
func (w *Workflow) Request(ctx context.Context, id RequestID) (*Request, error) {
	return w.store.GetRequest(ctx, id)
}

// History returns the employee's requests, newest first.
func (w *Workflow) History(ctx context.Context, emp EmployeeID) ([]Request, error) {
	return w.store.RequestsByEmployee(ctx, emp)
}

// PendingQueue returns all pending requests, oldest first.
func (w *Workflow) PendingQueue(ctx context.Context) ([]Request, error) {
	return w.store.PendingRequests(ctx)
}

// =============================================================================
// INTERNALS
// =============================================================================

func (w *Workflow) checkOverlap(ctx context.Context, tx Store, emp EmployeeID, start, end time.Time) error {
	existing, err := tx.OverlappingRequests(ctx, emp, start, end)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.IsOpen() {
			return &OverlapError{EmployeeID: emp, ExistingID: r.ID, Start: r.StartDate, End: r.EndDate}
		}
	}
	return nil
}

func (w *Workflow) checkBalance(ctx context.Context, tx Store, emp *Employee, lt LeaveTypeID, cycle Cycle, needed Days) error {
	available, err := cycleBalanceCommitted(ctx, tx, emp.ID, lt, cycle)
	if err != nil {
		return err
	}
	if available.LessThan(needed) {
		return &InsufficientBalanceError{EmployeeID: emp.ID, LeaveType: lt, Available: available, Requested: needed}
	}
	return nil
}

func (w *Workflow) debitEntry(req *Request, cycle Cycle, now time.Time) Entry {
	return Entry{
		ID:          EntryID(uuid.NewString()),
		EmployeeID:  req.EmployeeID,
		LeaveTypeID: req.LeaveTypeID,
		CycleStart:  cycle.Start,
		EffectiveAt: req.ApprovedStart,
		Delta:       req.ApprovedDays.Neg(),
		Kind:        EntryLeaveDebit,
		ReferenceID: string(req.ID),
		Reason:      req.Reason,
		CreatedBy:   req.DecidedBy,
		CreatedAt:   now,
	}
}
