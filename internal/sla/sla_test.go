package sla_test

import (
	"testing"
	"time"

	"demandflow/internal/domain"
	"demandflow/internal/sla"
)

var (
	day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	categories = []domain.Category{{ID: "cat-1", Name: "Integration"}}
	rules      = []domain.SLAConfig{
		{ID: "sla-1", CategoryID: "cat-1", Complexity: domain.ComplexityMedium, TargetHours: 48},
	}
)

func demand() domain.Demand {
	return domain.Demand{
		ID:          "d-1",
		Category:    "Integration",
		Complexity:  domain.ComplexityMedium,
		EffortHours: 40,
		CreatedAt:   day0,
	}
}

func TestEvaluateBreachOnCompletion(t *testing.T) {
	d := demand()
	started := day0.AddDate(0, 0, 2)
	finished := day0.AddDate(0, 0, 10)
	d.StartedAt = &started
	d.FinishedAt = &finished
	d.Status = domain.StatusCompleted

	res := sla.Evaluate(d, rules, categories, day0.AddDate(0, 0, 30))
	if !res.HasRule {
		t.Fatal("expected a matching rule")
	}
	if !res.Breached {
		t.Fatal("expected breach")
	}
	if res.ActualHours != 192 {
		t.Fatalf("actual = %v, want 192", res.ActualHours)
	}
	if res.AllowedHours != 48 {
		t.Fatalf("allowed = %v, want 48", res.AllowedHours)
	}
}

func TestEvaluateExactBudgetIsNotBreach(t *testing.T) {
	d := demand()
	started := day0
	finished := day0.Add(48 * time.Hour)
	d.StartedAt = &started
	d.FinishedAt = &finished

	res := sla.Evaluate(d, rules, categories, finished)
	if res.Breached {
		t.Fatal("exactly on budget must not breach")
	}
}

func TestEvaluateFallsBackToCreatedAt(t *testing.T) {
	d := demand()
	// never started; elapsed runs from creation to now
	now := day0.Add(60 * time.Hour)
	res := sla.Evaluate(d, rules, categories, now)
	if res.ActualHours != 60 {
		t.Fatalf("actual = %v, want 60", res.ActualHours)
	}
	if !res.Breached {
		t.Fatal("expected breach")
	}
}

func TestEvaluateNoRule(t *testing.T) {
	d := demand()
	d.Complexity = domain.ComplexityHigh
	res := sla.Evaluate(d, rules, categories, day0.AddDate(0, 1, 0))
	if res.HasRule || res.Breached {
		t.Fatalf("res = %+v, want zero result", res)
	}

	d = demand()
	d.Category = "Unknown"
	res = sla.Evaluate(d, rules, categories, day0.AddDate(0, 1, 0))
	if res.HasRule {
		t.Fatal("unknown category must not match a rule")
	}
}

func TestAtRisk(t *testing.T) {
	started := day0
	cases := []struct {
		name   string
		mutate func(*domain.Demand)
		now    time.Time
		want   bool
	}{
		{"in execution past buffer", func(d *domain.Demand) {
			d.Status = domain.StatusInExecution
			d.StartedAt = &started
		}, day0.Add(49 * time.Hour), true},
		{"in execution inside buffer", func(d *domain.Demand) {
			d.Status = domain.StatusInExecution
			d.StartedAt = &started
		}, day0.Add(47 * time.Hour), false},
		{"queued never at risk", func(d *domain.Demand) {
			d.Status = domain.StatusQueued
			d.StartedAt = &started
		}, day0.Add(300 * time.Hour), false},
		{"no start recorded", func(d *domain.Demand) {
			d.Status = domain.StatusInExecution
		}, day0.Add(300 * time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := demand() // effort 40, buffer 1.2 -> threshold 48h
			tc.mutate(&d)
			if got := sla.AtRisk(d, 1.2, tc.now); got != tc.want {
				t.Fatalf("AtRisk = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestElapsedHoursStopsAtFinish(t *testing.T) {
	d := demand()
	started := day0
	finished := day0.Add(10 * time.Hour)
	d.StartedAt = &started
	d.FinishedAt = &finished
	if got := sla.ElapsedHours(d, day0.AddDate(1, 0, 0)); got != 10 {
		t.Fatalf("elapsed = %v, want 10", got)
	}
}
