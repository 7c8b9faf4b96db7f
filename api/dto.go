/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags; handlers run the
  shared validator before touching domain logic, so malformed input never
  reaches the workflow.

SEE ALSO:
  - handlers.go: Uses these types
  - leave package: domain types these map from
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitLeaveRequest is the body for POST /api/employees/{id}/requests.
type SubmitLeaveRequest struct {
	LeaveType string `json:"leave_type" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
}

// DecideRequest is the body for POST /api/requests/{id}/approve and reject.
// The approved span fields are approve-only and optional.
type DecideRequest struct {
	ActorID       string `json:"actor_id" validate:"required"`
	Note          string `json:"note,omitempty" validate:"max=500"`
	ApprovedStart string `json:"approved_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ApprovedEnd   string `json:"approved_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// WithdrawRequest is the body for POST /api/requests/{id}/withdraw.
type WithdrawRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

// GrantRequest is the body for POST /api/grants. Days may be negative for
// clawbacks.
type GrantRequest struct {
	EmployeeID string  `json:"employee_id" validate:"required"`
	LeaveType  string  `json:"leave_type" validate:"required"`
	Days       float64 `json:"days" validate:"required"`
	Reason     string  `json:"reason" validate:"required,max=500"`
	GrantedBy  string  `json:"granted_by" validate:"required"`
}

// RunAccrualRequest is the body for POST /api/accrual/run. AsOf defaults to
// today when omitted.
type RunAccrualRequest struct {
	AsOf string `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// CreateEmployeeRequest is the body for POST /api/employees.
type CreateEmployeeRequest struct {
	ID              string `json:"id" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Gender          string `json:"gender,omitempty" validate:"omitempty,oneof=all male female other"`
	JoiningCategory string `json:"joining_category" validate:"required,oneof=new_joinee intern permanent"`
	DateOfJoining   string `json:"date_of_joining" validate:"required,datetime=2006-01-02"`
	ProbationEnd    string `json:"probation_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	LeavePolicyID   string `json:"leave_policy_id,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// BalanceDTO is the balance endpoint response: current-cycle balance broken
// down by entry kind.
type BalanceDTO struct {
	EmployeeID     string  `json:"employee_id"`
	LeaveType      string  `json:"leave_type"`
	CycleStart     string  `json:"cycle_start"`
	CycleEnd       string  `json:"cycle_end"`
	Balance        float64 `json:"balance"`
	Accrued        float64 `json:"accrued"`
	CarriedForward float64 `json:"carried_forward"`
	Granted        float64 `json:"granted"`
	Used           float64 `json:"used"`
	Forfeited      float64 `json:"forfeited"`
	AsOf           string  `json:"as_of"`
}

// RequestDTO is a leave request in API responses.
type RequestDTO struct {
	ID            string   `json:"id"`
	EmployeeID    string   `json:"employee_id"`
	LeaveType     string   `json:"leave_type"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	RequestedDays float64  `json:"requested_days"`
	Reason        string   `json:"reason,omitempty"`
	Status        string   `json:"status"`
	ApprovedStart *string  `json:"approved_start,omitempty"`
	ApprovedEnd   *string  `json:"approved_end,omitempty"`
	ApprovedDays  *float64 `json:"approved_days,omitempty"`
	DecidedBy     string   `json:"decided_by,omitempty"`
	DecidedAt     *string  `json:"decided_at,omitempty"`
	DecisionNote  string   `json:"decision_note,omitempty"`
	WithdrawnAt   *string  `json:"withdrawn_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

// EntryDTO is one ledger entry in the audit listing.
type EntryDTO struct {
	ID          string  `json:"id"`
	CycleStart  string  `json:"cycle_start"`
	EffectiveAt string  `json:"effective_at"`
	Delta       float64 `json:"delta"`
	Kind        string  `json:"kind"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// GrantDTO is a manual grant in API responses.
type GrantDTO struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employee_id"`
	LeaveType  string  `json:"leave_type"`
	Days       float64 `json:"days"`
	Reason     string  `json:"reason,omitempty"`
	GrantedBy  string  `json:"granted_by"`
	CreatedAt  string  `json:"created_at"`
}

// EmployeeDTO is a directory record in API responses.
type EmployeeDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Gender          string `json:"gender"`
	JoiningCategory string `json:"joining_category"`
	DateOfJoining   string `json:"date_of_joining"`
	ProbationEnd    string `json:"probation_end,omitempty"`
	LeavePolicyID   string `json:"leave_policy_id,omitempty"`
}

// LeaveTypeDTO is a leave type in catalog responses.
type LeaveTypeDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	IsPaid           bool   `json:"is_paid"`
	ApplicableGender string `json:"applicable_gender"`
	RequiresApproval bool   `json:"requires_approval"`
	AutoApprove      bool   `json:"auto_approve"`
}

// PolicyDTO is a policy with its rules in catalog responses.
type PolicyDTO struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	JoiningCategory string    `json:"joining_category"`
	EffectiveFrom   string    `json:"effective_from"`
	Status          string    `json:"status"`
	Rules           []RuleDTO `json:"rules"`
}

// RuleDTO is one policy rule in catalog responses.
type RuleDTO struct {
	LeaveType                string  `json:"leave_type"`
	AnnualDays               float64 `json:"annual_days"`
	AccrualFrequency         string  `json:"accrual_frequency"`
	AvailableDuringProbation bool    `json:"available_during_probation"`
	AllowPartialLeave        bool    `json:"allow_partial_leave"`
	CarryForwardAllowed      bool    `json:"carry_forward_allowed"`
	MaxCarryForward          float64 `json:"max_carry_forward"`
	RequiresApproval         bool    `json:"requires_approval"`
	AutoApprove              bool    `json:"auto_approve"`
}

// AccrualReportDTO summarizes one accrual batch run.
type AccrualReportDTO struct {
	AsOf               string            `json:"as_of"`
	EmployeesProcessed int               `json:"employees_processed"`
	EntriesAppended    int               `json:"entries_appended"`
	PeriodsSkipped     int               `json:"periods_skipped"`
	Failures           []AccrualErrorDTO `json:"failures,omitempty"`
}

// AccrualErrorDTO is one failed (employee, leave type) in a batch run.
type AccrualErrorDTO struct {
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type,omitempty"`
	Error      string `json:"error"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRequestDTO(r *leave.Request) RequestDTO {
	dto := RequestDTO{
		ID:            string(r.ID),
		EmployeeID:    string(r.EmployeeID),
		LeaveType:     string(r.LeaveTypeID),
		StartDate:     r.StartDate.Format(dateFormat),
		EndDate:       r.EndDate.Format(dateFormat),
		RequestedDays: r.RequestedDays.Float64(),
		Reason:        r.Reason,
		Status:        string(r.Status),
		DecidedBy:     r.DecidedBy,
		DecisionNote:  r.DecisionNote,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if !r.ApprovedStart.IsZero() {
		dto.ApprovedStart = strPtr(r.ApprovedStart.Format(dateFormat))
		dto.ApprovedEnd = strPtr(r.ApprovedEnd.Format(dateFormat))
		days := r.ApprovedDays.Float64()
		dto.ApprovedDays = &days
	}
	if r.DecidedAt != nil {
		dto.DecidedAt = strPtr(r.DecidedAt.Format(time.RFC3339))
	}
	if r.WithdrawnAt != nil {
		dto.WithdrawnAt = strPtr(r.WithdrawnAt.Format(time.RFC3339))
	}
	return dto
}

func toRequestDTOs(rs []leave.Request) []RequestDTO {
	dtos := make([]RequestDTO, 0, len(rs))
	for i := range rs {
		dtos = append(dtos, toRequestDTO(&rs[i]))
	}
	return dtos
}

func toEntryDTOs(es []leave.Entry) []EntryDTO {
	dtos := make([]EntryDTO, 0, len(es))
	for _, e := range es {
		dtos = append(dtos, EntryDTO{
			ID:          string(e.ID),
			CycleStart:  e.CycleStart.Format(dateFormat),
			EffectiveAt: e.EffectiveAt.Format(dateFormat),
			Delta:       e.Delta.Float64(),
			Kind:        string(e.Kind),
			ReferenceID: e.ReferenceID,
			Reason:      e.Reason,
			CreatedBy:   e.CreatedBy,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	return dtos
}

func toEmployeeDTO(emp *leave.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:              string(emp.ID),
		Name:            emp.Name,
		Gender:          string(emp.Gender),
		JoiningCategory: string(emp.JoiningCategory),
		DateOfJoining:   emp.DateOfJoining.Format(dateFormat),
	}
	if !emp.ProbationEnd.IsZero() {
		dto.ProbationEnd = emp.ProbationEnd.Format(dateFormat)
	}
	if emp.LeavePolicyID != nil {
		dto.LeavePolicyID = string(*emp.LeavePolicyID)
	}
	return dto
}

func strPtr(s string) *string { return &s }
