// Package sla evaluates elapsed time against configured service-level
// budgets. Evaluation is advisory and side-effect-free.
package sla

import (
	"time"

	"demandflow/internal/domain"
)

// Result of an SLA check. AllowedHours/ActualHours are only meaningful
// when HasRule is true; the absence of a rule is not a violation.
type Result struct {
	Breached     bool    `json:"breached"`
	HasRule      bool    `json:"has_rule"`
	AllowedHours float64 `json:"allowed_hours,omitempty"`
	ActualHours  float64 `json:"actual_hours,omitempty"`
}

// Evaluate measures the demand's elapsed hours (startedAt, or createdAt
// when execution never started, up to finishedAt or now) against the rule
// configured for its category and complexity.
func Evaluate(d domain.Demand, rules []domain.SLAConfig, categories []domain.Category, now time.Time) Result {
	rule, ok := lookupRule(d, rules, categories)
	if !ok {
		return Result{}
	}
	res := Result{
		HasRule:      true,
		AllowedHours: rule.TargetHours,
		ActualHours:  ElapsedHours(d, now),
	}
	res.Breached = res.ActualHours > rule.TargetHours
	return res
}

// ElapsedHours returns the demand's elapsed wall-clock hours, from
// startedAt (or createdAt) to finishedAt (or now for open demands).
func ElapsedHours(d domain.Demand, now time.Time) float64 {
	start := d.CreatedAt
	if d.StartedAt != nil {
		start = *d.StartedAt
	}
	end := now
	if d.FinishedAt != nil {
		end = *d.FinishedAt
	}
	return end.Sub(start).Hours()
}

// AtRisk is the overrun heuristic for still-open work: an in-execution
// demand whose elapsed time already exceeds effort x buffer. It is a
// separate signal from the formal SLA check and needs no configured rule.
func AtRisk(d domain.Demand, buffer float64, now time.Time) bool {
	if d.Status != domain.StatusInExecution || d.StartedAt == nil {
		return false
	}
	elapsed := now.Sub(*d.StartedAt).Hours()
	return elapsed > d.EffortHours*buffer
}

func lookupRule(d domain.Demand, rules []domain.SLAConfig, categories []domain.Category) (domain.SLAConfig, bool) {
	// demands carry the category name; rules key on the category id
	categoryID := ""
	for _, c := range categories {
		if c.Name == d.Category {
			categoryID = c.ID
			break
		}
	}
	if categoryID == "" {
		return domain.SLAConfig{}, false
	}
	for _, r := range rules {
		if r.CategoryID == categoryID && r.Complexity == d.Complexity {
			return r, true
		}
	}
	return domain.SLAConfig{}, false
}
