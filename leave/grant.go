/*
grant.go - Manual grant adjustments

PURPOSE:
  HR can credit extra days (compensation, joining bonus, corrections) or
  claw days back with a negative grant. Each grant is an immutable record
  plus exactly one ManualGrant ledger entry, written in one transaction.

NO REVERSALS:
  There is no "undo grant". A mistaken grant is corrected by a counter
  grant so the audit trail keeps both.
*/
package leave

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Grant is an immutable manual balance adjustment.
type Grant struct {
	ID          GrantID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID

	// Days may be negative for clawbacks.
	Days   Days
	Reason string

	GrantedBy string
	CreatedAt time.Time
}

// GrantService records manual grants against the ledger.
type GrantService struct {
	directory EmployeeDirectory
	catalog   *Catalog
	store     TxStore

	now func() time.Time
}

func NewGrantService(directory EmployeeDirectory, catalog *Catalog, store TxStore) *GrantService {
	return &GrantService{directory: directory, catalog: catalog, store: store, now: time.Now}
}

// Grant records the adjustment and its ledger entry atomically. The entry
// lands in the cycle containing the grant date.
func (s *GrantService) Grant(ctx context.Context, empID EmployeeID, lt LeaveTypeID, days Days, reason, grantedBy string) (*Grant, error) {
	if days.IsZero() {
		return nil, ErrInvalidDateRange
	}
	emp, err := s.directory.Employee(ctx, empID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.LeaveType(ctx, lt); err != nil {
		return nil, err
	}

	now := s.now()
	cycle := CycleFor(emp.DateOfJoining, now)
	g := &Grant{
		ID:          GrantID(uuid.NewString()),
		EmployeeID:  empID,
		LeaveTypeID: lt,
		Days:        days,
		Reason:      reason,
		GrantedBy:   grantedBy,
		CreatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertGrant(ctx, *g); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, Entry{
			ID:          EntryID(uuid.NewString()),
			EmployeeID:  empID,
			LeaveTypeID: lt,
			CycleStart:  cycle.Start,
			EffectiveAt: now,
			Delta:       days,
			Kind:        EntryManualGrant,
			ReferenceID: string(g.ID),
			Reason:      reason,
			CreatedBy:   grantedBy,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// History returns the employee's grants, newest first.
func (s *GrantService) History(ctx context.Context, emp EmployeeID) ([]Grant, error) {
	return s.store.GrantsByEmployee(ctx, emp)
}
