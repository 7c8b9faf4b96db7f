package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
)

func submit(t *testing.T, f *fixture, emp leave.EmployeeID, lt leave.LeaveTypeID, start, end time.Time) *leave.Request {
	t.Helper()
	req, err := f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp,
		LeaveTypeID: lt,
		StartDate:   start,
		EndDate:     end,
		Reason:      "vacation",
	})
	require.NoError(t, err)
	return req
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmitAutoApproveDebitsImmediately(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, true) // auto-approve
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	// WHEN a 3-working-day request is submitted
	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))

	// THEN it is approved on the spot and the balance drops
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.Equal(t, "system", req.DecidedBy)
	assert.True(t, days(3).Equal(req.ApprovedDays))
	assert.True(t, days(9).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))
}

func TestSubmitRequiresApprovalStaysPending(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))

	assert.Equal(t, leave.StatusPending, req.Status)
	assert.True(t, days(3).Equal(req.RequestedDays))
	// No debit until approval.
	assert.True(t, days(12).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))

	pending, err := f.workflow.PendingQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)
}

func TestSubmitCountsWorkingDaysOnly(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	// Monday through next Monday spans a weekend
	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 17))

	assert.True(t, days(6).Equal(req.RequestedDays))
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	lt := leave.LeaveType{ID: "earned", Name: "Earned Leave", IsPaid: true, ApplicableGender: leave.GenderAll}
	f.seedLeaveType(t, lt)
	f.seedPolicy(t, leave.LeavePolicy{
		ID:              "permanent-std",
		Name:            "Permanent Staff",
		JoiningCategory: leave.CategoryPermanent,
		EffectiveFrom:   date(2024, time.January, 1),
		Status:          leave.PolicyActive,
	}, leave.PolicyRule{
		LeaveTypeID:              lt.ID,
		AnnualDays:               days(12),
		Accrual:                  leave.AccrualMonthly,
		AvailableDuringProbation: true,
		AllowPartialLeave:        true,
	})
	emp := permanentEmployee("emp-1", date(2025, time.January, 1))
	f.seedEmployee(t, emp)

	// GIVEN 4 months completed, so 4.0 days accrued
	f.runAccrual(t, date(2025, time.May, 2))

	// WHEN requesting 5 working days
	_, err := f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp.ID,
		LeaveTypeID: lt.ID,
		StartDate:   date(2025, time.May, 5),
		EndDate:     date(2025, time.May, 9),
	})

	require.ErrorIs(t, err, leave.ErrInsufficientBalance)
	var ib *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, days(4).Equal(ib.Available))
	assert.True(t, days(5).Equal(ib.Requested))
}

func TestSubmitRejectsOverlappingOpenRequest(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	first := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))

	// WHEN a second request touches the same span
	_, err := f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp.ID,
		LeaveTypeID: lt,
		StartDate:   date(2025, time.March, 12),
		EndDate:     date(2025, time.March, 14),
	})

	require.ErrorIs(t, err, leave.ErrOverlappingRequest)
	var ov *leave.OverlapError
	require.ErrorAs(t, err, &ov)
	assert.Equal(t, first.ID, ov.ExistingID)
}

func TestSubmitAllowsNewRequestAfterRejection(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	first := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))
	_, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID: first.ID,
		Decision:  leave.DecisionReject,
		ActorID:   "manager-1",
		Note:      "coverage needed",
	})
	require.NoError(t, err)

	// Rejected requests are closed and no longer block the span
	second := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))
	assert.Equal(t, leave.StatusPending, second.Status)
}

func TestSubmitRejectsGenderRestrictedType(t *testing.T) {
	f := newFixture(t)

	lt := leave.LeaveType{ID: "maternity", Name: "Maternity Leave", IsPaid: true, ApplicableGender: leave.GenderFemale}
	f.seedLeaveType(t, lt)
	f.seedPolicy(t, leave.LeavePolicy{
		ID:              "permanent-std",
		Name:            "Permanent Staff",
		JoiningCategory: leave.CategoryPermanent,
		EffectiveFrom:   date(2024, time.January, 1),
		Status:          leave.PolicyActive,
	}, leave.PolicyRule{
		LeaveTypeID:              lt.ID,
		AnnualDays:               days(26),
		Accrual:                  leave.AccrualYearly,
		AvailableDuringProbation: true,
	})
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	emp.Gender = leave.GenderMale
	f.seedEmployee(t, emp)

	_, err := f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp.ID,
		LeaveTypeID: lt.ID,
		StartDate:   date(2025, time.March, 10),
		EndDate:     date(2025, time.March, 12),
	})

	require.ErrorIs(t, err, leave.ErrIneligibleByPolicy)
	var ie *leave.IneligibleError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "gender_restriction", ie.Reason)
}

func TestSubmitRejectsDuringProbation(t *testing.T) {
	f := newFixture(t)

	lt := leave.LeaveType{ID: "casual", Name: "Casual Leave", IsPaid: true, ApplicableGender: leave.GenderAll}
	f.seedLeaveType(t, lt)
	f.seedPolicy(t, leave.LeavePolicy{
		ID:              "permanent-std",
		Name:            "Permanent Staff",
		JoiningCategory: leave.CategoryPermanent,
		EffectiveFrom:   date(2024, time.January, 1),
		Status:          leave.PolicyActive,
	}, leave.PolicyRule{
		LeaveTypeID: lt.ID,
		AnnualDays:  days(12),
		Accrual:     leave.AccrualYearly,
		// probation excluded
	})
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	emp.ProbationEnd = date(2099, time.January, 1)
	f.seedEmployee(t, emp)

	_, err := f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp.ID,
		LeaveTypeID: lt.ID,
		StartDate:   date(2025, time.March, 10),
		EndDate:     date(2025, time.March, 12),
	})

	require.ErrorIs(t, err, leave.ErrIneligibleByPolicy)
	var ie *leave.IneligibleError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "probation", ie.Reason)
}

func TestSubmitRejectsInvalidSpans(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	// end before start
	_, err := f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp.ID,
		LeaveTypeID: lt,
		StartDate:   date(2025, time.March, 12),
		EndDate:     date(2025, time.March, 10),
	})
	assert.ErrorIs(t, err, leave.ErrInvalidDateRange)

	// weekend-only span counts zero working days
	_, err = f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp.ID,
		LeaveTypeID: lt,
		StartDate:   date(2025, time.March, 15),
		EndDate:     date(2025, time.March, 16),
	})
	assert.ErrorIs(t, err, leave.ErrInvalidDateRange)
}

func TestSubmitUnknownEmployeeAndType(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)

	_, err := f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  "ghost",
		LeaveTypeID: lt,
		StartDate:   date(2025, time.March, 10),
		EndDate:     date(2025, time.March, 12),
	})
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)

	_, err = f.workflow.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:  emp.ID,
		LeaveTypeID: "sabbatical",
		StartDate:   date(2025, time.March, 10),
		EndDate:     date(2025, time.March, 12),
	})
	assert.ErrorIs(t, err, leave.ErrLeaveTypeNotFound)
}

func TestSubmitUnpaidLeaveSkipsBalanceGate(t *testing.T) {
	f := newFixture(t)

	lt := leave.LeaveType{ID: "unpaid", Name: "Unpaid Leave", IsPaid: false, ApplicableGender: leave.GenderAll}
	f.seedLeaveType(t, lt)
	f.seedPolicy(t, leave.LeavePolicy{
		ID:              "permanent-std",
		Name:            "Permanent Staff",
		JoiningCategory: leave.CategoryPermanent,
		EffectiveFrom:   date(2024, time.January, 1),
		Status:          leave.PolicyActive,
	}, leave.PolicyRule{
		LeaveTypeID:              lt.ID,
		Accrual:                  leave.AccrualYearly,
		AvailableDuringProbation: true,
		AllowPartialLeave:        true,
		AutoApprove:              true,
	})
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)

	// WHEN taking unpaid leave with no accrued balance at all
	req := submit(t, f, emp.ID, lt.ID, date(2025, time.March, 10), date(2025, time.March, 12))

	// THEN it approves and the tracked balance goes negative
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.True(t, f.balance(t, &emp, lt.ID, date(2025, time.March, 12)).IsNegative())
}

// =============================================================================
// DECISION
// =============================================================================

func TestDecideApproveFullSpan(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))

	got, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID,
		Decision:  leave.DecisionApprove,
		ActorID:   "manager-1",
	})

	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, "manager-1", got.DecidedBy)
	assert.True(t, days(3).Equal(got.ApprovedDays))
	assert.True(t, days(9).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))
}

func TestDecideApprovePartialSpan(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	// GIVEN a Monday-to-Friday request for 5 days
	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 14))

	// WHEN the approver narrows it to Monday-Wednesday
	approvedEnd := date(2025, time.March, 12)
	got, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID:   req.ID,
		Decision:    leave.DecisionApprove,
		ActorID:     "manager-1",
		ApprovedEnd: &approvedEnd,
	})

	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.True(t, days(5).Equal(got.RequestedDays))
	assert.True(t, days(3).Equal(got.ApprovedDays))
	assert.Equal(t, approvedEnd, got.ApprovedEnd)
	assert.True(t, days(9).Equal(f.balance(t, &emp, lt, date(2025, time.March, 14))))
}

func TestDecidePartialRejectedWhenRuleForbidsIt(t *testing.T) {
	f := newFixture(t)

	lt := leave.LeaveType{ID: "casual", Name: "Casual Leave", IsPaid: true, ApplicableGender: leave.GenderAll}
	f.seedLeaveType(t, lt)
	f.seedPolicy(t, leave.LeavePolicy{
		ID:              "permanent-std",
		Name:            "Permanent Staff",
		JoiningCategory: leave.CategoryPermanent,
		EffectiveFrom:   date(2024, time.January, 1),
		Status:          leave.PolicyActive,
	}, leave.PolicyRule{
		LeaveTypeID:              lt.ID,
		AnnualDays:               days(12),
		Accrual:                  leave.AccrualYearly,
		AvailableDuringProbation: true,
		AllowPartialLeave:        false,
	})
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt.ID, date(2025, time.March, 10), date(2025, time.March, 14))

	approvedEnd := date(2025, time.March, 12)
	_, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID:   req.ID,
		Decision:    leave.DecisionApprove,
		ActorID:     "manager-1",
		ApprovedEnd: &approvedEnd,
	})

	assert.ErrorIs(t, err, leave.ErrPartialNotAllowed)
}

func TestDecideApprovedSpanMustNarrowRequest(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))

	// approved span reaching past the requested end
	approvedEnd := date(2025, time.March, 14)
	_, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID:   req.ID,
		Decision:    leave.DecisionApprove,
		ActorID:     "manager-1",
		ApprovedEnd: &approvedEnd,
	})

	assert.ErrorIs(t, err, leave.ErrInvalidDateRange)
}

func TestDecideRejectLeavesBalanceUntouched(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))

	got, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID,
		Decision:  leave.DecisionReject,
		ActorID:   "manager-1",
		Note:      "coverage needed",
	})

	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, got.Status)
	assert.Equal(t, "coverage needed", got.DecisionNote)
	assert.True(t, days(12).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))
}

func TestDecideTwiceFailsCleanly(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))
	_, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID, Decision: leave.DecisionApprove, ActorID: "manager-1",
	})
	require.NoError(t, err)

	// Second decision on a settled request
	_, err = f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID: req.ID, Decision: leave.DecisionReject, ActorID: "manager-2",
	})
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	// And exactly one debit was written
	assert.True(t, days(9).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))
}

func TestDecideUnknownRequest(t *testing.T) {
	f := newFixture(t)
	casualYearly(f, t, false)

	_, err := f.workflow.Decide(context.Background(), leave.DecideInput{
		RequestID: "ghost", Decision: leave.DecisionApprove, ActorID: "manager-1",
	})

	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

func TestWithdrawApprovedRestoresBalance(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, true)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))
	require.True(t, days(9).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))

	got, err := f.workflow.Withdraw(context.Background(), req.ID, string(emp.ID))

	require.NoError(t, err)
	assert.Equal(t, leave.StatusWithdrawn, got.Status)
	require.NotNil(t, got.WithdrawnAt)

	// THEN a reversal entry restores the debit; both stay in the ledger
	assert.True(t, days(12).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))

	entries, err := f.ledger.Entries(context.Background(), emp.ID, lt)
	require.NoError(t, err)
	var kinds []leave.EntryKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, leave.EntryLeaveDebit)
	assert.Contains(t, kinds, leave.EntryLeaveReversal)
}

func TestWithdrawPendingClosesAsRejected(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))

	got, err := f.workflow.Withdraw(context.Background(), req.ID, string(emp.ID))

	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, got.Status)
	assert.Equal(t, "withdrawn by employee", got.DecisionNote)
	assert.True(t, days(12).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))
}

func TestWithdrawTwiceFails(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, true)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	req := submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))
	_, err := f.workflow.Withdraw(context.Background(), req.ID, string(emp.ID))
	require.NoError(t, err)

	_, err = f.workflow.Withdraw(context.Background(), req.ID, string(emp.ID))
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	// Balance restored exactly once.
	assert.True(t, days(12).Equal(f.balance(t, &emp, lt, date(2025, time.March, 12))))
}

func TestHistoryListsEmployeeRequests(t *testing.T) {
	f := newFixture(t)
	lt, _ := casualYearly(f, t, false)
	emp := permanentEmployee("emp-1", date(2024, time.July, 1))
	f.seedEmployee(t, emp)
	f.runAccrual(t, date(2025, time.March, 1))

	submit(t, f, emp.ID, lt, date(2025, time.March, 10), date(2025, time.March, 12))
	submit(t, f, emp.ID, lt, date(2025, time.April, 7), date(2025, time.April, 8))

	history, err := f.workflow.History(context.Background(), emp.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
