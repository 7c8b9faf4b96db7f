/*
request.go - Leave request entity and state machine

PURPOSE:
  A leave request moves through a small state machine:

    Pending ──▶ Approved ──▶ Withdrawn (terminal)
        │
        └─────▶ Rejected (terminal)

  State changes that touch the ledger (approval's debit, withdrawal's
  reversal) are executed by the workflow inside one transaction with the
  guarded status update, so a request is never Approved without its debit.

PARTIAL APPROVAL:
  An approver may approve a narrower span or fewer days than requested
  when the rule allows partial leave. The approved fields are what the
  debit is written from; the requested fields stay for the audit trail.
*/
package leave

import "time"

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusWithdrawn RequestStatus = "withdrawn"
)

// Request is one employee's ask for a span of leave.
type Request struct {
	ID          RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID

	// Requested span, inclusive calendar dates.
	StartDate time.Time
	EndDate   time.Time

	// Working days inside the requested span, computed at submission.
	RequestedDays Days

	Reason string
	Status RequestStatus

	// Approved span and day count; equal to the requested values unless the
	// approver narrowed them. Zero until the request is decided.
	ApprovedStart time.Time
	ApprovedEnd   time.Time
	ApprovedDays  Days

	// Decision tracking.
	DecidedBy    string
	DecidedAt    *time.Time
	DecisionNote string

	// WithdrawnAt is set when an approved request is withdrawn.
	WithdrawnAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransition reports whether the state machine allows moving from the
// request's current status to the target.
func (r *Request) CanTransition(to RequestStatus) bool {
	switch r.Status {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusWithdrawn && r.WithdrawnAt == nil
	default:
		return false
	}
}

// IsOpen reports whether the request still holds or may hold balance: a
// pending request or an approved one that has not been withdrawn.
func (r *Request) IsOpen() bool {
	switch r.Status {
	case StatusPending:
		return true
	case StatusApproved:
		return r.WithdrawnAt == nil
	default:
		return false
	}
}
