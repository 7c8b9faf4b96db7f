package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testEntry(id string) leave.Entry {
	return leave.Entry{
		ID:          leave.EntryID(id),
		EmployeeID:  "emp-1",
		LeaveTypeID: "casual",
		CycleStart:  date(2024, time.July, 1),
		EffectiveAt: date(2024, time.July, 1),
		Delta:       leave.DaysOf(12),
		Kind:        leave.EntryAccrualCredit,
		Reason:      "scheduled accrual",
		CreatedBy:   "accrual-batch",
		CreatedAt:   time.Now(),
	}
}

func testRequest(id string) leave.Request {
	now := time.Now()
	return leave.Request{
		ID:            leave.RequestID(id),
		EmployeeID:    "emp-1",
		LeaveTypeID:   "casual",
		StartDate:     date(2025, time.March, 10),
		EndDate:       date(2025, time.March, 12),
		RequestedDays: leave.DaysOf(3),
		Reason:        "vacation",
		Status:        leave.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func TestAppendEntryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := testEntry("e-1")
	e.Delta = leave.MustParseDays("2.5")
	require.NoError(t, store.AppendEntry(ctx, e))

	entries, err := store.Entries(ctx, "emp-1", "casual")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, leave.EntryAccrualCredit, got.Kind)
	assert.True(t, e.Delta.Equal(got.Delta), "half-day precision survives storage")
	assert.Equal(t, e.CycleStart, got.CycleStart)
	assert.Equal(t, e.EffectiveAt, got.EffectiveAt)
}

func TestAppendEntryDuplicateIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testEntry("e-1")
	first.IdempotencyKey = "accrual:emp-1:casual:2024-07-01"
	require.NoError(t, store.AppendEntry(ctx, first))

	dup := testEntry("e-2")
	dup.IdempotencyKey = first.IdempotencyKey
	err := store.AppendEntry(ctx, dup)

	assert.ErrorIs(t, err, leave.ErrDuplicateEntry)

	exists, err := store.EntryExists(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEntriesInCycleFiltersByCycleStart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e1 := testEntry("e-1")
	require.NoError(t, store.AppendEntry(ctx, e1))

	e2 := testEntry("e-2")
	e2.CycleStart = date(2025, time.July, 1)
	e2.EffectiveAt = date(2025, time.July, 1)
	require.NoError(t, store.AppendEntry(ctx, e2))

	entries, err := store.EntriesInCycle(ctx, "emp-1", "casual", date(2024, time.July, 1))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, leave.EntryID("e-1"), entries[0].ID)
}

func TestAppendEntriesIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	blocker := testEntry("e-0")
	blocker.IdempotencyKey = "carry:emp-1:casual:2024-07-01"
	require.NoError(t, store.AppendEntry(ctx, blocker))

	// A batch whose second entry collides must leave no partial write
	fresh := testEntry("e-1")
	colliding := testEntry("e-2")
	colliding.IdempotencyKey = blocker.IdempotencyKey

	err := store.WithTx(ctx, func(tx leave.Store) error {
		return tx.AppendEntries(ctx, []leave.Entry{fresh, colliding})
	})
	require.ErrorIs(t, err, leave.ErrDuplicateEntry)

	entries, err := store.Entries(ctx, "emp-1", "casual")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rolled back batch must not leak entries")
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestRequestRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRequest("req-1")
	require.NoError(t, store.InsertRequest(ctx, r))

	got, err := store.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.EmployeeID, got.EmployeeID)
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.Equal(t, r.StartDate, got.StartDate)
	assert.Equal(t, r.EndDate, got.EndDate)
	assert.True(t, r.RequestedDays.Equal(got.RequestedDays))
	assert.Nil(t, got.DecidedAt)
	assert.Nil(t, got.WithdrawnAt)
}

func TestGetRequestNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRequest(context.Background(), "ghost")

	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

func TestUpdateRequestGuardsOnPriorStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := testRequest("req-1")
	require.NoError(t, store.InsertRequest(ctx, r))

	now := time.Now()
	r.Status = leave.StatusApproved
	r.ApprovedStart = r.StartDate
	r.ApprovedEnd = r.EndDate
	r.ApprovedDays = r.RequestedDays
	r.DecidedBy = "manager-1"
	r.DecidedAt = &now
	require.NoError(t, store.UpdateRequest(ctx, r, leave.StatusPending))

	// A second transition expecting Pending loses the race
	r.Status = leave.StatusRejected
	err := store.UpdateRequest(ctx, r, leave.StatusPending)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)

	got, err := store.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, "manager-1", got.DecidedBy)
}

func TestOverlappingRequestsMatchesOpenSpans(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending := testRequest("req-1")
	require.NoError(t, store.InsertRequest(ctx, pending))

	rejected := testRequest("req-2")
	rejected.StartDate = date(2025, time.April, 1)
	rejected.EndDate = date(2025, time.April, 3)
	rejected.Status = leave.StatusRejected
	require.NoError(t, store.InsertRequest(ctx, rejected))

	// Overlapping the pending span
	got, err := store.OverlappingRequests(ctx, "emp-1", date(2025, time.March, 12), date(2025, time.March, 14))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	// Overlapping only the rejected span finds nothing
	got, err = store.OverlappingRequests(ctx, "emp-1", date(2025, time.April, 1), date(2025, time.April, 3))
	require.NoError(t, err)
	assert.Empty(t, got)

	// Disjoint span finds nothing
	got, err = store.OverlappingRequests(ctx, "emp-1", date(2025, time.March, 17), date(2025, time.March, 19))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOverlappingRequestsUsesApprovedSpanForApproved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Approved for a narrowed span: Mar 10-11 of a Mar 10-14 request
	now := time.Now()
	r := testRequest("req-1")
	r.EndDate = date(2025, time.March, 14)
	r.Status = leave.StatusApproved
	r.ApprovedStart = date(2025, time.March, 10)
	r.ApprovedEnd = date(2025, time.March, 11)
	r.ApprovedDays = leave.DaysOf(2)
	r.DecidedBy = "manager-1"
	r.DecidedAt = &now
	require.NoError(t, store.InsertRequest(ctx, r))

	// The unapproved tail of the requested span is free again
	got, err := store.OverlappingRequests(ctx, "emp-1", date(2025, time.March, 12), date(2025, time.March, 14))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.OverlappingRequests(ctx, "emp-1", date(2025, time.March, 11), date(2025, time.March, 12))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.InsertRequest(ctx, testRequest("req-1")); err != nil {
			return err
		}
		return leave.ErrInvalidTransition
	})
	require.ErrorIs(t, err, leave.ErrInvalidTransition)

	_, err = store.GetRequest(ctx, "req-1")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

func TestWithTxCommitsRequestAndEntryTogether(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.InsertRequest(ctx, testRequest("req-1")); err != nil {
			return err
		}
		debit := testEntry("e-1")
		debit.Kind = leave.EntryLeaveDebit
		debit.Delta = leave.DaysOf(3).Neg()
		debit.ReferenceID = "req-1"
		return tx.AppendEntry(ctx, debit)
	})
	require.NoError(t, err)

	_, err = store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	entries, err := store.Entries(ctx, "emp-1", "casual")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// =============================================================================
// DIRECTORY AND CONFIG
// =============================================================================

func TestEmployeeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	policyID := leave.PolicyID("negotiated")
	emp := leave.Employee{
		ID:              "emp-1",
		Name:            "A. Verma",
		Gender:          leave.GenderFemale,
		JoiningCategory: leave.CategoryPermanent,
		DateOfJoining:   date(2024, time.July, 1),
		ProbationEnd:    date(2024, time.December, 28),
		LeavePolicyID:   &policyID,
	}
	require.NoError(t, store.SaveEmployee(ctx, emp))

	got, err := store.Employee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, emp.Name, got.Name)
	assert.Equal(t, emp.DateOfJoining, got.DateOfJoining)
	assert.Equal(t, emp.ProbationEnd, got.ProbationEnd)
	require.NotNil(t, got.LeavePolicyID)
	assert.Equal(t, policyID, *got.LeavePolicyID)

	_, err = store.Employee(ctx, "ghost")
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
}

func TestSaveEmployeeUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	emp := leave.Employee{
		ID:              "emp-1",
		Name:            "A. Verma",
		Gender:          leave.GenderFemale,
		JoiningCategory: leave.CategoryIntern,
		DateOfJoining:   date(2024, time.July, 1),
	}
	require.NoError(t, store.SaveEmployee(ctx, emp))

	emp.JoiningCategory = leave.CategoryPermanent
	require.NoError(t, store.SaveEmployee(ctx, emp))

	got, err := store.Employee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, leave.CategoryPermanent, got.JoiningCategory)

	all, err := store.Employees(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPolicyRuleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePolicy(ctx, leave.LeavePolicy{
		ID:              "permanent-std",
		Name:            "Permanent Staff",
		JoiningCategory: leave.CategoryPermanent,
		EffectiveFrom:   date(2024, time.January, 1),
		Status:          leave.PolicyActive,
	}))
	require.NoError(t, store.SavePolicyRule(ctx, leave.PolicyRule{
		PolicyID:                 "permanent-std",
		LeaveTypeID:              "casual",
		AnnualDays:               leave.DaysOf(12),
		Accrual:                  leave.AccrualMonthly,
		AvailableDuringProbation: true,
		AllowPartialLeave:        true,
		CarryForwardAllowed:      true,
		MaxCarryForward:          leave.DaysOf(4),
	}))

	rules, err := store.PolicyRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	assert.Equal(t, leave.AccrualMonthly, r.Accrual)
	assert.True(t, r.CarryForwardAllowed)
	assert.True(t, leave.DaysOf(4).Equal(r.MaxCarryForward))
}

func TestHolidaysRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	h := leave.Holiday{Date: date(2025, time.January, 26), Name: "Republic Day", Recurring: true}
	require.NoError(t, store.SaveHoliday(ctx, "hol-1", h))
	// Seeding twice is a no-op
	require.NoError(t, store.SaveHoliday(ctx, "hol-2", h))

	got, err := store.Holidays(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Republic Day", got[0].Name)
	assert.True(t, got[0].Recurring)
}
