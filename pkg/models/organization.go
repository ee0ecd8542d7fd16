// Package models contains domain types for reviewpilot-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan constants. The plan decides the monthly SMS quota.
const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"
)

// ValidPlans contains all valid plan values.
var ValidPlans = []string{PlanFree, PlanStarter, PlanPro}

// Organization is the tenant. Every other row belongs to exactly one organization.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlanQuotas maps a plan to its monthly SMS allowance.
type PlanQuotas map[string]int

// DefaultPlanQuotas are used when configuration does not override them.
var DefaultPlanQuotas = PlanQuotas{
	PlanFree:    50,
	PlanStarter: 500,
	PlanPro:     2500,
}

// PlanQuota returns the monthly SMS quota for plan. Unknown plans get the free quota.
func PlanQuota(quotas PlanQuotas, plan string) int {
	if q, ok := quotas[plan]; ok {
		return q
	}
	return quotas[PlanFree]
}
