/*
Package factory provides JSON to Go leave configuration conversion.

PURPOSE:
  Converts JSON configuration into leave types, policies, rules, holidays,
  and seed employees. This enables policy configuration without code
  changes - HR can define policies in JSON, and the factory validates and
  loads them into the store.

WHY JSON?
  - Non-developers can modify policies
  - Easy integration with admin UI
  - Version control for policy definitions

JSON SCHEMA:
  {
    "leave_types": [
      {"id": "casual", "name": "Casual Leave", "is_paid": true}
    ],
    "policies": [
      {
        "id": "permanent-2025",
        "name": "Permanent Staff 2025",
        "joining_category": "permanent",
        "effective_from": "2025-01-01",
        "rules": [
          {
            "leave_type": "casual",
            "annual_days": 12,
            "accrual_frequency": "monthly",
            "carry_forward_allowed": true,
            "max_carry_forward": 4
          }
        ]
      }
    ],
    "holidays": [
      {"date": "2025-12-25", "name": "Christmas Day", "recurring": true}
    ]
  }

VALIDATION:
  Structural validation happens via go-playground/validator tags before
  anything is built, so a bad config fails loudly at startup rather than
  misbehaving at accrual time.

USAGE:
  cfg, err := factory.Parse(jsonBytes)
  if err != nil { log.Fatal(err) }
  err = factory.Seed(ctx, store, cfg)

SEE ALSO:
  - leave/policy.go: LeavePolicy and PolicyRule definitions
  - store/sqlite: Seed target
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/warp/leave-engine/leave"
)

const dateFormat = "2006-01-02"

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// Config is the root configuration document.
type Config struct {
	LeaveTypes []LeaveTypeJSON `json:"leave_types" validate:"required,min=1,dive"`
	Policies   []PolicyJSON    `json:"policies" validate:"dive"`
	Holidays   []HolidayJSON   `json:"holidays,omitempty" validate:"dive"`
	Employees  []EmployeeJSON  `json:"employees,omitempty" validate:"dive"`
}

// LeaveTypeJSON is the JSON representation of a leave type.
type LeaveTypeJSON struct {
	ID               string `json:"id" validate:"required"`
	Name             string `json:"name" validate:"required"`
	IsPaid           *bool  `json:"is_paid,omitempty"`
	ApplicableGender string `json:"applicable_gender,omitempty" validate:"omitempty,oneof=all male female other"`
	RequiresApproval *bool  `json:"requires_approval,omitempty"`
	AutoApprove      bool   `json:"auto_approve,omitempty"`
}

// PolicyJSON is the JSON representation of a policy with its rules.
type PolicyJSON struct {
	ID              string     `json:"id" validate:"required"`
	Name            string     `json:"name" validate:"required"`
	JoiningCategory string     `json:"joining_category" validate:"required,oneof=new_joinee intern permanent"`
	EffectiveFrom   string     `json:"effective_from" validate:"required,datetime=2006-01-02"`
	Status          string     `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	Rules           []RuleJSON `json:"rules" validate:"required,min=1,dive"`
}

// RuleJSON is the per-leave-type entitlement under a policy.
type RuleJSON struct {
	LeaveType                string  `json:"leave_type" validate:"required"`
	AnnualDays               float64 `json:"annual_days" validate:"gte=0"`
	AccrualFrequency         string  `json:"accrual_frequency,omitempty" validate:"omitempty,oneof=yearly monthly"`
	AvailableDuringProbation bool    `json:"available_during_probation,omitempty"`
	AllowPartialLeave        bool    `json:"allow_partial_leave,omitempty"`
	CarryForwardAllowed      bool    `json:"carry_forward_allowed,omitempty"`
	MaxCarryForward          float64 `json:"max_carry_forward,omitempty" validate:"gte=0"`
	RequiresApproval         *bool   `json:"requires_approval,omitempty"`
	AutoApprove              bool    `json:"auto_approve,omitempty"`
}

// HolidayJSON is one configured holiday.
type HolidayJSON struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required"`
	Recurring bool   `json:"recurring,omitempty"`
}

// EmployeeJSON seeds a directory record for standalone deployments.
type EmployeeJSON struct {
	ID              string `json:"id" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Gender          string `json:"gender,omitempty" validate:"omitempty,oneof=all male female other"`
	JoiningCategory string `json:"joining_category" validate:"required,oneof=new_joinee intern permanent"`
	DateOfJoining   string `json:"date_of_joining" validate:"required,datetime=2006-01-02"`
	ProbationEnd    string `json:"probation_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	LeavePolicyID   string `json:"leave_policy_id,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// Parse unmarshals and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := crossCheck(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// crossCheck verifies references that struct tags cannot express.
func crossCheck(cfg *Config) error {
	types := make(map[string]bool, len(cfg.LeaveTypes))
	for _, lt := range cfg.LeaveTypes {
		if types[lt.ID] {
			return fmt.Errorf("invalid config: duplicate leave type %q", lt.ID)
		}
		types[lt.ID] = true
	}

	policies := make(map[string]bool, len(cfg.Policies))
	for _, p := range cfg.Policies {
		if policies[p.ID] {
			return fmt.Errorf("invalid config: duplicate policy %q", p.ID)
		}
		policies[p.ID] = true

		seen := make(map[string]bool, len(p.Rules))
		for _, r := range p.Rules {
			if !types[r.LeaveType] {
				return fmt.Errorf("invalid config: policy %q references unknown leave type %q", p.ID, r.LeaveType)
			}
			if seen[r.LeaveType] {
				return fmt.Errorf("invalid config: policy %q has duplicate rule for %q", p.ID, r.LeaveType)
			}
			seen[r.LeaveType] = true
		}
	}

	for _, e := range cfg.Employees {
		if e.LeavePolicyID != "" && !policies[e.LeavePolicyID] {
			return fmt.Errorf("invalid config: employee %q references unknown policy %q", e.ID, e.LeavePolicyID)
		}
	}
	return nil
}

// =============================================================================
// DOMAIN CONVERSION
// =============================================================================

// BuildLeaveTypes converts the configured leave types.
func (c *Config) BuildLeaveTypes() []leave.LeaveType {
	out := make([]leave.LeaveType, 0, len(c.LeaveTypes))
	for _, lt := range c.LeaveTypes {
		gender := leave.Gender(lt.ApplicableGender)
		if gender == "" {
			gender = leave.GenderAll
		}
		out = append(out, leave.LeaveType{
			ID:               leave.LeaveTypeID(lt.ID),
			Name:             lt.Name,
			IsPaid:           boolOr(lt.IsPaid, true),
			ApplicableGender: gender,
			RequiresApproval: boolOr(lt.RequiresApproval, true),
			AutoApprove:      lt.AutoApprove,
		})
	}
	return out
}

// BuildPolicies converts the configured policies.
func (c *Config) BuildPolicies() []leave.LeavePolicy {
	out := make([]leave.LeavePolicy, 0, len(c.Policies))
	for _, p := range c.Policies {
		status := leave.PolicyStatus(p.Status)
		if status == "" {
			status = leave.PolicyActive
		}
		effective, _ := time.Parse(dateFormat, p.EffectiveFrom)
		out = append(out, leave.LeavePolicy{
			ID:              leave.PolicyID(p.ID),
			Name:            p.Name,
			JoiningCategory: leave.JoiningCategory(p.JoiningCategory),
			EffectiveFrom:   effective,
			Status:          status,
		})
	}
	return out
}

// BuildRules converts the configured policy rules.
func (c *Config) BuildRules() []leave.PolicyRule {
	var out []leave.PolicyRule
	for _, p := range c.Policies {
		for _, r := range p.Rules {
			freq := leave.AccrualFrequency(r.AccrualFrequency)
			if freq == "" {
				freq = leave.AccrualYearly
			}
			out = append(out, leave.PolicyRule{
				PolicyID:                 leave.PolicyID(p.ID),
				LeaveTypeID:              leave.LeaveTypeID(r.LeaveType),
				AnnualDays:               leave.DaysOf(r.AnnualDays),
				Accrual:                  freq,
				AvailableDuringProbation: r.AvailableDuringProbation,
				AllowPartialLeave:        r.AllowPartialLeave,
				CarryForwardAllowed:      r.CarryForwardAllowed,
				MaxCarryForward:          leave.DaysOf(r.MaxCarryForward),
				RequiresApproval:         boolOr(r.RequiresApproval, true),
				AutoApprove:              r.AutoApprove,
			})
		}
	}
	return out
}

// BuildHolidays converts the configured holidays.
func (c *Config) BuildHolidays() []leave.Holiday {
	out := make([]leave.Holiday, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		date, _ := time.Parse(dateFormat, h.Date)
		out = append(out, leave.Holiday{Date: date, Name: h.Name, Recurring: h.Recurring})
	}
	return out
}

// BuildEmployees converts the seed employees.
func (c *Config) BuildEmployees() []leave.Employee {
	out := make([]leave.Employee, 0, len(c.Employees))
	for _, e := range c.Employees {
		gender := leave.Gender(e.Gender)
		if gender == "" {
			gender = leave.GenderAll
		}
		joined, _ := time.Parse(dateFormat, e.DateOfJoining)
		emp := leave.Employee{
			ID:              leave.EmployeeID(e.ID),
			Name:            e.Name,
			Gender:          gender,
			JoiningCategory: leave.JoiningCategory(e.JoiningCategory),
			DateOfJoining:   joined,
		}
		if e.ProbationEnd != "" {
			emp.ProbationEnd, _ = time.Parse(dateFormat, e.ProbationEnd)
		}
		if e.LeavePolicyID != "" {
			id := leave.PolicyID(e.LeavePolicyID)
			emp.LeavePolicyID = &id
		}
		out = append(out, emp)
	}
	return out
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// =============================================================================
// SEEDING
// =============================================================================

// Seeder is the store surface the factory writes configuration through.
// store/sqlite.Store satisfies it.
type Seeder interface {
	SaveLeaveType(ctx context.Context, lt leave.LeaveType) error
	SavePolicy(ctx context.Context, p leave.LeavePolicy) error
	SavePolicyRule(ctx context.Context, r leave.PolicyRule) error
	SaveHoliday(ctx context.Context, id string, h leave.Holiday) error
	SaveEmployee(ctx context.Context, emp leave.Employee) error
}

// Seed writes a validated configuration into the store. Saves are upserts,
// so re-seeding with an edited config updates in place.
func Seed(ctx context.Context, dst Seeder, cfg *Config) error {
	for _, lt := range cfg.BuildLeaveTypes() {
		if err := dst.SaveLeaveType(ctx, lt); err != nil {
			return fmt.Errorf("failed to seed leave type %s: %w", lt.ID, err)
		}
	}
	for _, p := range cfg.BuildPolicies() {
		if err := dst.SavePolicy(ctx, p); err != nil {
			return fmt.Errorf("failed to seed policy %s: %w", p.ID, err)
		}
	}
	for _, r := range cfg.BuildRules() {
		if err := dst.SavePolicyRule(ctx, r); err != nil {
			return fmt.Errorf("failed to seed rule %s/%s: %w", r.PolicyID, r.LeaveTypeID, err)
		}
	}
	for _, h := range cfg.BuildHolidays() {
		if err := dst.SaveHoliday(ctx, uuid.NewString(), h); err != nil {
			return fmt.Errorf("failed to seed holiday %s: %w", h.Name, err)
		}
	}
	for _, emp := range cfg.BuildEmployees() {
		if err := dst.SaveEmployee(ctx, emp); err != nil {
			return fmt.Errorf("failed to seed employee %s: %w", emp.ID, err)
		}
	}
	return nil
}

// DefaultConfigJSON is a small working configuration for local runs:
// three leave types and one policy per joining category.
func DefaultConfigJSON() string {
	return `{
  "leave_types": [
    {"id": "casual", "name": "Casual Leave", "is_paid": true},
    {"id": "sick", "name": "Sick Leave", "is_paid": true, "auto_approve": true},
    {"id": "unpaid", "name": "Leave Without Pay", "is_paid": false}
  ],
  "policies": [
    {
      "id": "permanent-std",
      "name": "Permanent Staff",
      "joining_category": "permanent",
      "effective_from": "2024-01-01",
      "rules": [
        {"leave_type": "casual", "annual_days": 12, "accrual_frequency": "monthly",
         "available_during_probation": false, "allow_partial_leave": true,
         "carry_forward_allowed": true, "max_carry_forward": 4},
        {"leave_type": "sick", "annual_days": 8, "accrual_frequency": "yearly",
         "available_during_probation": true, "auto_approve": true},
        {"leave_type": "unpaid", "annual_days": 0, "available_during_probation": true,
         "allow_partial_leave": true}
      ]
    },
    {
      "id": "intern-std",
      "name": "Interns",
      "joining_category": "intern",
      "effective_from": "2024-01-01",
      "rules": [
        {"leave_type": "casual", "annual_days": 6, "accrual_frequency": "monthly",
         "available_during_probation": true},
        {"leave_type": "unpaid", "annual_days": 0, "available_during_probation": true}
      ]
    },
    {
      "id": "new-joinee-std",
      "name": "New Joinees",
      "joining_category": "new_joinee",
      "effective_from": "2024-01-01",
      "rules": [
        {"leave_type": "casual", "annual_days": 12, "accrual_frequency": "monthly",
         "available_during_probation": false},
        {"leave_type": "sick", "annual_days": 8, "accrual_frequency": "yearly",
         "available_during_probation": true, "auto_approve": true},
        {"leave_type": "unpaid", "annual_days": 0, "available_during_probation": true}
      ]
    }
  ]
}`
}
