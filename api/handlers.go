/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                    List all employees
    POST   /api/employees                    Create/update directory record
    GET    /api/employees/{id}               Get employee details
    GET    /api/employees/{id}/balance       Current-cycle balance summary
    GET    /api/employees/{id}/ledger        Ledger audit trail
    GET    /api/employees/{id}/requests      Request history
    POST   /api/employees/{id}/requests      Submit leave
    GET    /api/employees/{id}/grants        Grant history

  Requests:
    GET    /api/requests/pending             Approver queue
    GET    /api/requests/{id}                Get one request
    POST   /api/requests/{id}/approve        Approve (optional partial span)
    POST   /api/requests/{id}/reject         Reject
    POST   /api/requests/{id}/withdraw       Withdraw

  Grants:
    POST   /api/grants                       Manual grant / clawback

  Accrual:
    POST   /api/accrual/run                  Idempotent batch trigger

  Catalog:
    GET    /api/leave-types                  List leave types
    GET    /api/policies                     List policies with rules

ERROR HANDLING:
  Domain errors map onto HTTP status via their sentinel:
  - 400: InvalidDateRange, body validation failures
  - 404: no policy / not offered / unknown employee, type, request
  - 409: InsufficientBalance, Overlap, ConcurrentModification
  - 422: IneligibleByPolicy (probation, gender restriction)
  - 500: everything else
  A re-run of an already-credited accrual period is a 200 no-op; the
  skipped periods show up in the report counters.

SECURITY NOTE:
  Identity is trusted from the request body (actor_id, granted_by); this
  service sits behind the application's own authorization layer.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

const dateFormat = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Catalog  *leave.Catalog
	Ledger   *leave.BalanceLedger
	Workflow *leave.Workflow
	Accrual  *leave.AccrualEngine
	Grants   *leave.GrantService

	validate *validator.Validate
}

// NewHandler wires the engine services over one sqlite store. The store
// doubles as employee directory, catalog source, and holiday source.
func NewHandler(store *sqlite.Store, catalogTTL time.Duration) *Handler {
	catalog := leave.NewCatalog(store, catalogTTL)
	calendar := leave.NewHolidayCalendar(store)

	return &Handler{
		Store:    store,
		Catalog:  catalog,
		Ledger:   leave.NewBalanceLedger(store),
		Workflow: leave.NewWorkflow(store, catalog, store, calendar),
		Accrual:  leave.NewAccrualEngine(store, catalog, store),
		Grants:   leave.NewGrantService(store, catalog, store),
		validate: validator.New(),
	}
}

// SeedConfig loads a validated configuration into the store and refreshes
// the catalog.
func (h *Handler) SeedConfig(ctx context.Context, cfg *factory.Config) error {
	if err := factory.Seed(ctx, h.Store, cfg); err != nil {
		return err
	}
	h.Catalog.Invalidate()
	return nil
}

// decode unmarshals and validates a request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

// ListEmployees returns all directory records.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.Employees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, 0, len(employees))
	for i := range employees {
		dtos = append(dtos, toEmployeeDTO(&employees[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns one directory record.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.Employee(r.Context(), leave.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates or updates a directory record.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	joined, _ := time.Parse(dateFormat, req.DateOfJoining)
	gender := leave.Gender(req.Gender)
	if gender == "" {
		gender = leave.GenderAll
	}
	emp := leave.Employee{
		ID:              leave.EmployeeID(req.ID),
		Name:            req.Name,
		Gender:          gender,
		JoiningCategory: leave.JoiningCategory(req.JoiningCategory),
		DateOfJoining:   joined,
	}
	if req.ProbationEnd != "" {
		emp.ProbationEnd, _ = time.Parse(dateFormat, req.ProbationEnd)
	}
	if req.LeavePolicyID != "" {
		id := leave.PolicyID(req.LeavePolicyID)
		emp.LeavePolicyID = &id
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(&emp))
}

// GetBalance returns the current-cycle balance summary.
// GET /api/employees/{id}/balance?leave_type=X&as_of=YYYY-MM-DD
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	leaveType := leave.LeaveTypeID(r.URL.Query().Get("leave_type"))
	if leaveType == "" {
		writeError(w, http.StatusBadRequest, "leave_type query parameter is required", nil)
		return
	}
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	emp, err := h.Store.Employee(ctx, leave.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := h.Catalog.LeaveType(ctx, leaveType); err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := h.Ledger.Summary(ctx, emp, leaveType, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		EmployeeID:     string(summary.EmployeeID),
		LeaveType:      string(summary.LeaveTypeID),
		CycleStart:     summary.Cycle.Start.Format(dateFormat),
		CycleEnd:       summary.Cycle.End.Format(dateFormat),
		Balance:        summary.Balance.Float64(),
		Accrued:        summary.Accrued.Float64(),
		CarriedForward: summary.CarriedForward.Float64(),
		Granted:        summary.Granted.Float64(),
		Used:           summary.Used.Float64(),
		Forfeited:      summary.Forfeited.Float64(),
		AsOf:           asOf.Format(dateFormat),
	})
}

// GetLedger returns the full audit trail for (employee, leave type).
// GET /api/employees/{id}/ledger?leave_type=X
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	leaveType := leave.LeaveTypeID(r.URL.Query().Get("leave_type"))
	if leaveType == "" {
		writeError(w, http.StatusBadRequest, "leave_type query parameter is required", nil)
		return
	}

	emp, err := h.Store.Employee(ctx, leave.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.Ledger.Entries(ctx, emp.ID, leaveType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// REQUEST ENDPOINTS
// =============================================================================

// SubmitRequest submits a new leave request.
// POST /api/employees/{id}/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, _ := time.Parse(dateFormat, req.StartDate)
	end, _ := time.Parse(dateFormat, req.EndDate)

	created, err := h.Workflow.Submit(r.Context(), leave.SubmitInput{
		EmployeeID:  leave.EmployeeID(chi.URLParam(r, "id")),
		LeaveTypeID: leave.LeaveTypeID(req.LeaveType),
		StartDate:   start,
		EndDate:     end,
		Reason:      req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// ListRequests returns the employee's request history.
// GET /api/employees/{id}/requests
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Workflow.History(r.Context(), leave.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// GetRequest returns one request.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Workflow.Request(r.Context(), leave.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListPendingRequests returns the approver queue, oldest first.
// GET /api/requests/pending
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Workflow.PendingQueue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// ApproveRequest approves a pending request.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionApprove)
}

// RejectRequest rejects a pending request.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionReject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision leave.Decision) {
	var req DecideRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := leave.DecideInput{
		RequestID: leave.RequestID(chi.URLParam(r, "id")),
		Decision:  decision,
		ActorID:   req.ActorID,
		Note:      req.Note,
	}
	if req.ApprovedStart != "" {
		t, _ := time.Parse(dateFormat, req.ApprovedStart)
		in.ApprovedStart = &t
	}
	if req.ApprovedEnd != "" {
		t, _ := time.Parse(dateFormat, req.ApprovedEnd)
		in.ApprovedEnd = &t
	}

	decided, err := h.Workflow.Decide(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(decided))
}

// WithdrawRequest withdraws a request.
// POST /api/requests/{id}/withdraw
func (h *Handler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	withdrawn, err := h.Workflow.Withdraw(r.Context(), leave.RequestID(chi.URLParam(r, "id")), req.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(withdrawn))
}

// =============================================================================
// GRANT ENDPOINTS
// =============================================================================

// CreateGrant records a manual grant or clawback.
// POST /api/grants
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	g, err := h.Grants.Grant(r.Context(),
		leave.EmployeeID(req.EmployeeID),
		leave.LeaveTypeID(req.LeaveType),
		leave.DaysOf(req.Days),
		req.Reason, req.GrantedBy,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, GrantDTO{
		ID:         string(g.ID),
		EmployeeID: string(g.EmployeeID),
		LeaveType:  string(g.LeaveTypeID),
		Days:       g.Days.Float64(),
		Reason:     g.Reason,
		GrantedBy:  g.GrantedBy,
		CreatedAt:  g.CreatedAt.Format(time.RFC3339),
	})
}

// ListGrants returns the employee's grant history.
// GET /api/employees/{id}/grants
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.Grants.History(r.Context(), leave.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list grants", err)
		return
	}

	dtos := make([]GrantDTO, 0, len(grants))
	for _, g := range grants {
		dtos = append(dtos, GrantDTO{
			ID:         string(g.ID),
			EmployeeID: string(g.EmployeeID),
			LeaveType:  string(g.LeaveTypeID),
			Days:       g.Days.Float64(),
			Reason:     g.Reason,
			GrantedBy:  g.GrantedBy,
			CreatedAt:  g.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ACCRUAL ENDPOINTS
// =============================================================================

// RunAccrual triggers the accrual batch. Re-running over an already
// credited span is a 200 no-op; the counters show what was skipped.
// POST /api/accrual/run
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req RunAccrualRequest
	if r.ContentLength > 0 {
		if err := h.decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf := time.Now()
	if req.AsOf != "" {
		asOf, _ = time.Parse(dateFormat, req.AsOf)
	}

	report, err := h.Accrual.RunAccrual(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Accrual run failed", err)
		return
	}
	if report.PeriodsSkipped > 0 {
		log.Printf("[Accrual] %d periods already applied, skipped", report.PeriodsSkipped)
	}

	writeJSON(w, http.StatusOK, toAccrualReportDTO(report))
}

func toAccrualReportDTO(report *leave.AccrualReport) AccrualReportDTO {
	dto := AccrualReportDTO{
		AsOf:               report.AsOf.Format(dateFormat),
		EmployeesProcessed: report.EmployeesProcessed,
		EntriesAppended:    report.EntriesAppended,
		PeriodsSkipped:     report.PeriodsSkipped,
	}
	for _, f := range report.Failures {
		dto.Failures = append(dto.Failures, AccrualErrorDTO{
			EmployeeID: string(f.EmployeeID),
			LeaveType:  string(f.LeaveTypeID),
			Error:      f.Err.Error(),
		})
	}
	return dto
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ListLeaveTypes returns all configured leave types.
// GET /api/leave-types
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Catalog.LeaveTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list leave types", err)
		return
	}

	dtos := make([]LeaveTypeDTO, 0, len(types))
	for _, lt := range types {
		dtos = append(dtos, LeaveTypeDTO{
			ID:               string(lt.ID),
			Name:             lt.Name,
			IsPaid:           lt.IsPaid,
			ApplicableGender: string(lt.ApplicableGender),
			RequiresApproval: lt.RequiresApproval,
			AutoApprove:      lt.AutoApprove,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPolicies returns all policies with their rules.
// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policies, err := h.Catalog.Policies(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, 0, len(policies))
	for _, p := range policies {
		rules, err := h.Catalog.RulesFor(ctx, p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load policy rules", err)
			return
		}
		dto := PolicyDTO{
			ID:              string(p.ID),
			Name:            p.Name,
			JoiningCategory: string(p.JoiningCategory),
			EffectiveFrom:   p.EffectiveFrom.Format(dateFormat),
			Status:          string(p.Status),
			Rules:           make([]RuleDTO, 0, len(rules)),
		}
		for _, rule := range rules {
			dto.Rules = append(dto.Rules, RuleDTO{
				LeaveType:                string(rule.LeaveTypeID),
				AnnualDays:               rule.AnnualDays.Float64(),
				AccrualFrequency:         string(rule.Accrual),
				AvailableDuringProbation: rule.AvailableDuringProbation,
				AllowPartialLeave:        rule.AllowPartialLeave,
				CarryForwardAllowed:      rule.CarryForwardAllowed,
				MaxCarryForward:          rule.MaxCarryForward.Float64(),
				RequiresApproval:         rule.RequiresApproval,
				AutoApprove:              rule.AutoApprove,
			})
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func parseAsOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now(), true
	}
	asOf, err := time.Parse(dateFormat, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return time.Time{}, false
	}
	return asOf, true
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leave.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, leave.ErrIneligibleByPolicy):
		writeError(w, http.StatusUnprocessableEntity, "Not eligible under policy", err)
	case errors.Is(err, leave.ErrInsufficientBalance),
		errors.Is(err, leave.ErrOverlappingRequest),
		errors.Is(err, leave.ErrConcurrentModification),
		errors.Is(err, leave.ErrDuplicateEntry):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, leave.ErrInvalidTransition),
		errors.Is(err, leave.ErrPartialNotAllowed):
		writeError(w, http.StatusConflict, "Invalid transition", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
