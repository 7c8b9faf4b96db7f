package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// SHARED TEST FIXTURE
// =============================================================================

// fixture wires the whole engine over an in-memory store, the same shape
// cmd/server assembles in production.
type fixture struct {
	store    *sqlite.Store
	catalog  *leave.Catalog
	ledger   *leave.BalanceLedger
	workflow *leave.Workflow
	accrual  *leave.AccrualEngine
	grants   *leave.GrantService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	catalog := leave.NewCatalog(store, 0)
	return &fixture{
		store:    store,
		catalog:  catalog,
		ledger:   leave.NewBalanceLedger(store),
		workflow: leave.NewWorkflow(store, catalog, store, leave.WeekendCalendar{}),
		accrual:  leave.NewAccrualEngine(store, catalog, store),
		grants:   leave.NewGrantService(store, catalog, store),
	}
}

func (f *fixture) seedLeaveType(t *testing.T, lt leave.LeaveType) {
	t.Helper()
	require.NoError(t, f.store.SaveLeaveType(context.Background(), lt))
	f.catalog.Invalidate()
}

func (f *fixture) seedPolicy(t *testing.T, p leave.LeavePolicy, rules ...leave.PolicyRule) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SavePolicy(ctx, p))
	for _, r := range rules {
		r.PolicyID = p.ID
		require.NoError(t, f.store.SavePolicyRule(ctx, r))
	}
	f.catalog.Invalidate()
}

func (f *fixture) seedEmployee(t *testing.T, emp leave.Employee) {
	t.Helper()
	require.NoError(t, f.store.SaveEmployee(context.Background(), emp))
}

func (f *fixture) balance(t *testing.T, emp *leave.Employee, lt leave.LeaveTypeID, asOf time.Time) leave.Days {
	t.Helper()
	balance, _, err := f.ledger.CurrentBalance(context.Background(), emp, lt, asOf)
	require.NoError(t, err)
	return balance
}

func (f *fixture) runAccrual(t *testing.T, asOf time.Time) *leave.AccrualReport {
	t.Helper()
	report, err := f.accrual.RunAccrual(context.Background(), asOf)
	require.NoError(t, err)
	return report
}

// =============================================================================
// COMMON FIXTURES
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func days(v float64) leave.Days { return leave.DaysOf(v) }

// casualYearly is a permanent-staff policy with 12 yearly casual days and
// no carry-forward, available during probation.
func casualYearly(f *fixture, t *testing.T, autoApprove bool) (leave.LeaveTypeID, leave.PolicyID) {
	lt := leave.LeaveType{ID: "casual", Name: "Casual Leave", IsPaid: true, ApplicableGender: leave.GenderAll}
	f.seedLeaveType(t, lt)

	policy := leave.LeavePolicy{
		ID:              "permanent-std",
		Name:            "Permanent Staff",
		JoiningCategory: leave.CategoryPermanent,
		EffectiveFrom:   date(2024, time.January, 1),
		Status:          leave.PolicyActive,
	}
	f.seedPolicy(t, policy, leave.PolicyRule{
		LeaveTypeID:              lt.ID,
		AnnualDays:               days(12),
		Accrual:                  leave.AccrualYearly,
		AvailableDuringProbation: true,
		AllowPartialLeave:        true,
		RequiresApproval:         !autoApprove,
		AutoApprove:              autoApprove,
	})
	return lt.ID, policy.ID
}

func permanentEmployee(id string, joined time.Time) leave.Employee {
	return leave.Employee{
		ID:              leave.EmployeeID(id),
		Name:            "Test Employee " + id,
		Gender:          leave.GenderFemale,
		JoiningCategory: leave.CategoryPermanent,
		DateOfJoining:   joined,
	}
}
