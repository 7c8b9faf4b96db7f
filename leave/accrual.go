/*
accrual.go - Entitlement accrual and cycle rollover

PURPOSE:
  Turns policy rules into ledger credits. The batch walks every cycle from
  an employee's joining date to asOf, credits what each rule owes, and
  rolls completed cycles over (carry-forward capped by the rule, the rest
  forfeited) with explicit ledger entries.

ACCRUAL MODES:
  Yearly:  the full annual entitlement lands once, effective at cycle
           start (or at probation end when the rule excludes probation).
  Monthly: annual/12 per completed month, with each cumulative total
           floored to the half-day step. Month m's credit is
           floor2(rate*m) - floor2(rate*(m-1)), so the credited total
           always equals the floored cumulative entitlement.

IDEMPOTENCY:
  Every credit and rollover entry carries a deterministic key:
    accrual:{emp}:{type}:{cycle}          (yearly)
    accrual:{emp}:{type}:{cycle}:m{NN}    (monthly)
    carry:{emp}:{type}:{cycle}            (rollover pair, keyed by the
    forfeit:{emp}:{type}:{cycle}           cycle being closed)
  The store's unique index on the key makes re-runs and concurrent runs
  no-ops for periods already credited.

ROLLOVER:
  unused = carried + forfeited, always. A non-positive closing balance
  rolls nothing; each cycle opens from its own carry-forward entry.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccrualEngine computes and records entitlement credits.
type AccrualEngine struct {
	directory EmployeeDirectory
	catalog   *Catalog
	resolver  *Resolver
	store     TxStore

	now func() time.Time
}

func NewAccrualEngine(directory EmployeeDirectory, catalog *Catalog, store TxStore) *AccrualEngine {
	return &AccrualEngine{
		directory: directory,
		catalog:   catalog,
		resolver:  NewResolver(catalog),
		store:     store,
		now:       time.Now,
	}
}

// =============================================================================
// ENTITLEMENT COMPUTATION (pure)
// =============================================================================

// EntitlementAsOf is the total entitlement a rule has earned an employee
// within one cycle by asOf, before any spending. Probation months earn
// nothing when the rule excludes probation.
func EntitlementAsOf(emp *Employee, rule PolicyRule, cycle Cycle, asOf time.Time) Days {
	total := ZeroDays()
	for _, c := range accrualCredits(emp, rule, cycle, asOf) {
		total = total.Add(c.Delta)
	}
	return total
}

// accrualCredit is one owed credit inside a cycle.
type accrualCredit struct {
	EffectiveAt time.Time
	Delta       Days
	Key         string
}

// accrualCredits lists the credits a rule owes for one cycle up to asOf.
func accrualCredits(emp *Employee, rule PolicyRule, cycle Cycle, asOf time.Time) []accrualCredit {
	at := DateOnly(asOf)

	switch rule.Accrual {
	case AccrualMonthly:
		var credits []accrualCredit
		prev := ZeroDays()
		for m := 1; m <= 12; m++ {
			// annual*m/12, not rate*m: dividing last keeps month 12 exact.
			cumulative := rule.AnnualDays.MulInt(m).DivInt(12).FloorToHalf()
			delta := cumulative.Sub(prev)
			prev = cumulative

			completed := cycle.Start.AddDate(0, m, 0)
			if completed.After(at) {
				break
			}
			if !rule.AvailableDuringProbation && completed.Before(DateOnly(emp.ProbationEnd)) {
				continue
			}
			if delta.IsZero() {
				continue
			}
			credits = append(credits, accrualCredit{
				EffectiveAt: completed,
				Delta:       delta,
				Key:         fmt.Sprintf("accrual:%s:%s:%s:m%02d", emp.ID, rule.LeaveTypeID, cycle.Key(), m),
			})
		}
		return credits

	default: // AccrualYearly
		effective := cycle.Start
		if !rule.AvailableDuringProbation && DateOnly(emp.ProbationEnd).After(effective) {
			effective = DateOnly(emp.ProbationEnd)
		}
		if effective.After(at) || effective.After(cycle.End) {
			return nil
		}
		return []accrualCredit{{
			EffectiveAt: effective,
			Delta:       rule.AnnualDays,
			Key:         fmt.Sprintf("accrual:%s:%s:%s", emp.ID, rule.LeaveTypeID, cycle.Key()),
		}}
	}
}

// =============================================================================
// BATCH RUN
// =============================================================================

// AccrualReport summarizes one batch run.
type AccrualReport struct {
	AsOf               time.Time
	EmployeesProcessed int
	EntriesAppended    int
	PeriodsSkipped     int
	Failures           []AccrualFailure
}

// AccrualFailure records one (employee, leave type) that could not accrue.
type AccrualFailure struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Err         error
}

// RunAccrual replays accrual for every employee up to asOf. It is
// idempotent: re-running over the same span appends nothing new, and
// periods already credited count as skipped. Failures for one employee do
// not abort the batch.
func (e *AccrualEngine) RunAccrual(ctx context.Context, asOf time.Time) (*AccrualReport, error) {
	employees, err := e.directory.Employees(ctx)
	if err != nil {
		return nil, err
	}

	report := &AccrualReport{AsOf: DateOnly(asOf)}
	for i := range employees {
		emp := &employees[i]
		if err := e.RunAccrualFor(ctx, emp, asOf, report); err != nil {
			// Employee-wide resolution failure (e.g. no policy assigned).
			report.Failures = append(report.Failures, AccrualFailure{EmployeeID: emp.ID, Err: err})
			continue
		}
		report.EmployeesProcessed++
	}
	return report, nil
}

// RunAccrualFor replays one employee's accrual up to asOf.
func (e *AccrualEngine) RunAccrualFor(ctx context.Context, emp *Employee, asOf time.Time, report *AccrualReport) error {
	at := DateOnly(asOf)
	if DateOnly(emp.DateOfJoining).After(at) {
		return nil
	}

	rules, err := e.resolver.OfferedRules(ctx, emp, at)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		leaveType, err := e.catalog.LeaveType(ctx, rule.LeaveTypeID)
		if err != nil {
			report.Failures = append(report.Failures, AccrualFailure{EmployeeID: emp.ID, LeaveTypeID: rule.LeaveTypeID, Err: err})
			continue
		}
		if !leaveType.AppliesTo(emp.Gender) {
			continue
		}
		if err := e.accrueRule(ctx, emp, rule, at, report); err != nil {
			report.Failures = append(report.Failures, AccrualFailure{EmployeeID: emp.ID, LeaveTypeID: rule.LeaveTypeID, Err: err})
		}
	}
	return nil
}

// accrueRule walks every cycle from joining to asOf: credits first, then
// rollover for each completed cycle.
func (e *AccrualEngine) accrueRule(ctx context.Context, emp *Employee, rule PolicyRule, asOf time.Time, report *AccrualReport) error {
	cycle := CycleFor(emp.DateOfJoining, emp.DateOfJoining)
	for !cycle.Start.After(asOf) {
		if err := e.applyCredits(ctx, emp, rule, cycle, asOf, report); err != nil {
			return err
		}
		if cycle.End.Before(asOf) {
			if err := e.rollover(ctx, emp, rule, cycle, report); err != nil {
				return err
			}
		}
		cycle = cycle.Next()
	}
	return nil
}

func (e *AccrualEngine) applyCredits(ctx context.Context, emp *Employee, rule PolicyRule, cycle Cycle, asOf time.Time, report *AccrualReport) error {
	now := e.now()
	for _, c := range accrualCredits(emp, rule, cycle, asOf) {
		err := e.store.AppendEntry(ctx, Entry{
			ID:             EntryID(uuid.NewString()),
			EmployeeID:     emp.ID,
			LeaveTypeID:    rule.LeaveTypeID,
			CycleStart:     cycle.Start,
			EffectiveAt:    c.EffectiveAt,
			Delta:          c.Delta,
			Kind:           EntryAccrualCredit,
			Reason:         "scheduled accrual",
			IdempotencyKey: c.Key,
			CreatedBy:      "accrual-batch",
			CreatedAt:      now,
		})
		switch {
		case err == nil:
			report.EntriesAppended++
		case isAlreadyApplied(err):
			report.PeriodsSkipped++
		default:
			return err
		}
	}
	return nil
}

// rollover closes a completed cycle: carry what the rule allows into the
// next cycle, forfeit the rest. Both entries land in one transaction so
// the conservation property (unused = carried + forfeited) can never be
// half-applied.
func (e *AccrualEngine) rollover(ctx context.Context, emp *Employee, rule PolicyRule, cycle Cycle, report *AccrualReport) error {
	carryKey := fmt.Sprintf("carry:%s:%s:%s", emp.ID, rule.LeaveTypeID, cycle.Key())
	forfeitKey := fmt.Sprintf("forfeit:%s:%s:%s", emp.ID, rule.LeaveTypeID, cycle.Key())

	done, err := e.store.EntryExists(ctx, carryKey)
	if err != nil {
		return err
	}
	if !done {
		done, err = e.store.EntryExists(ctx, forfeitKey)
		if err != nil {
			return err
		}
	}
	if done {
		report.PeriodsSkipped++
		return nil
	}

	unused, err := cycleBalanceCommitted(ctx, e.store, emp.ID, rule.LeaveTypeID, cycle)
	if err != nil {
		return err
	}
	if !unused.IsPositive() {
		return nil
	}

	carried := ZeroDays()
	if rule.CarryForwardAllowed {
		carried = unused.Min(rule.MaxCarryForward)
	}
	forfeited := unused.Sub(carried)

	next := cycle.Next()
	now := e.now()
	var entries []Entry
	if forfeited.IsPositive() {
		entries = append(entries, Entry{
			ID:             EntryID(uuid.NewString()),
			EmployeeID:     emp.ID,
			LeaveTypeID:    rule.LeaveTypeID,
			CycleStart:     cycle.Start,
			EffectiveAt:    cycle.End,
			Delta:          forfeited.Neg(),
			Kind:           EntryForfeiture,
			Reason:         "cycle-end forfeiture",
			IdempotencyKey: forfeitKey,
			CreatedBy:      "accrual-batch",
			CreatedAt:      now,
		})
	}
	if carried.IsPositive() {
		entries = append(entries, Entry{
			ID:             EntryID(uuid.NewString()),
			EmployeeID:     emp.ID,
			LeaveTypeID:    rule.LeaveTypeID,
			CycleStart:     next.Start,
			EffectiveAt:    next.Start,
			Delta:          carried,
			Kind:           EntryCarryForward,
			Reason:         "carry forward from " + cycle.Key(),
			IdempotencyKey: carryKey,
			CreatedBy:      "accrual-batch",
			CreatedAt:      now,
		})
	}
	if len(entries) == 0 {
		return nil
	}

	err = e.store.WithTx(ctx, func(tx Store) error {
		return tx.AppendEntries(ctx, entries)
	})
	switch {
	case err == nil:
		report.EntriesAppended += len(entries)
		return nil
	case isAlreadyApplied(err):
		// Another run rolled this cycle over between our check and write.
		report.PeriodsSkipped++
		return nil
	default:
		return err
	}
}

func isAlreadyApplied(err error) bool {
	return errors.Is(err, ErrDuplicateEntry) || errors.Is(err, ErrAccrualAlreadyApplied)
}
