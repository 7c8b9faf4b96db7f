/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between domain logic and the database. The ledger
  surface is append-only: there is no update or delete for entries, ever.
  Corrections are new offsetting entries.

TRANSACTIONS:
  TxStore.WithTx is how the workflow makes "state transition + ledger
  effect" atomic: the guarded request update and the entry append run in
  one database transaction and commit or roll back together.

IDEMPOTENCY:
  Every accrual and rollover entry carries a deterministic idempotency key.
  The store enforces key uniqueness, which is what makes the accrual batch
  safe to re-run and safe to race with itself.

IMPLEMENTATIONS:
  - store/sqlite: production store (also implements EmployeeDirectory and
    CatalogSource)
*/
package leave

import (
	"context"
	"time"
)

// Store is the persistence surface the engine writes through.
// Ledger methods are append-only by construction.
type Store interface {
	// AppendEntry persists one ledger entry. Returns ErrDuplicateEntry if
	// the idempotency key already exists.
	AppendEntry(ctx context.Context, e Entry) error

	// AppendEntries persists several entries atomically.
	AppendEntries(ctx context.Context, es []Entry) error

	// Entries returns all entries for (employee, leave type), ordered by
	// effective date then insertion.
	Entries(ctx context.Context, emp EmployeeID, lt LeaveTypeID) ([]Entry, error)

	// EntriesInCycle returns the entries belonging to one accrual cycle.
	EntriesInCycle(ctx context.Context, emp EmployeeID, lt LeaveTypeID, cycleStart time.Time) ([]Entry, error)

	// EntryExists checks an idempotency key.
	EntryExists(ctx context.Context, idempotencyKey string) (bool, error)

	// InsertRequest persists a new leave request.
	InsertRequest(ctx context.Context, r Request) error

	// GetRequest returns a request or ErrRequestNotFound.
	GetRequest(ctx context.Context, id RequestID) (*Request, error)

	// RequestsByEmployee returns the employee's request history, newest first.
	RequestsByEmployee(ctx context.Context, emp EmployeeID) ([]Request, error)

	// PendingRequests returns the approver queue, oldest first.
	PendingRequests(ctx context.Context) ([]Request, error)

	// OverlappingRequests returns pending or non-withdrawn approved requests
	// for the employee whose span intersects [start, end].
	OverlappingRequests(ctx context.Context, emp EmployeeID, start, end time.Time) ([]Request, error)

	// UpdateRequest applies a transition guarded on the current status (and
	// on withdrawn_at being unset). Returns ErrConcurrentModification when
	// the guard matches no row.
	UpdateRequest(ctx context.Context, r Request, from RequestStatus) error

	// InsertGrant persists an immutable manual grant record.
	InsertGrant(ctx context.Context, g Grant) error

	// GrantsByEmployee returns the employee's grant history, newest first.
	GrantsByEmployee(ctx context.Context, emp EmployeeID) ([]Grant, error)
}

// TxStore adds transactional execution. If fn returns an error the
// transaction rolls back; otherwise it commits.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
