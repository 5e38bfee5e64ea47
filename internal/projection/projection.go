// Package projection turns a backlog of demands into a synthetic,
// non-overlapping schedule per assignee. It is a single-resource FIFO
// simulation: one unit of assignee capacity services one demand at a
// time, which keeps the projection deterministic and order-preserving.
package projection

import (
	"sort"
	"time"

	"demandflow/internal/domain"
)

// Slot is a demand placed on the timeline. Projected slots are synthetic
// estimates for work that has not started; the rest reflect recorded
// timestamps.
type Slot struct {
	Demand    domain.Demand `json:"demand"`
	Start     time.Time     `json:"start" format:"date-time"`
	End       time.Time     `json:"end" format:"date-time"`
	Projected bool          `json:"projected"`
}

// Row is one assignee's schedule.
type Row struct {
	PersonID string `json:"person_id"`
	Slots    []Slot `json:"slots"`
}

// Plan simulates every listed person's queue. People without demands are
// omitted.
func Plan(demands []domain.Demand, people []domain.Person, now time.Time, dayHours float64) []Row {
	var rows []Row
	for _, p := range people {
		slots := ForPerson(demands, p.ID, now, dayHours)
		if len(slots) == 0 {
			continue
		}
		rows = append(rows, Row{PersonID: p.ID, Slots: slots})
	}
	return rows
}

// ForPerson schedules one assignee's non-archived demands:
// completed work keeps its recorded interval, active work runs from its
// start for its effort duration (never ending in the past), and pending
// work is placed FIFO by creation time behind a cursor that begins at now
// and never schedules ahead of active work.
func ForPerson(demands []domain.Demand, personID string, now time.Time, dayHours float64) []Slot {
	var mine []domain.Demand
	for _, d := range demands {
		if d.PersonID == personID && d.Status != domain.StatusArchived {
			mine = append(mine, d)
		}
	}
	if len(mine) == 0 {
		return nil
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.Before(mine[j].CreatedAt)
	})

	cursor := now
	for _, d := range mine {
		if !isActive(d.Status) {
			continue
		}
		_, end := activeInterval(d, now, dayHours)
		if end.After(cursor) {
			cursor = end
		}
	}

	slots := make([]Slot, 0, len(mine))
	for _, d := range mine {
		var s Slot
		s.Demand = d
		switch {
		case d.Status == domain.StatusCompleted:
			s.Start = startOf(d)
			if d.FinishedAt != nil {
				s.End = *d.FinishedAt
			} else {
				s.End = s.Start
			}
			if !s.End.After(s.Start) {
				// degenerate record, clamp to a one-day bar
				s.End = s.Start.AddDate(0, 0, 1)
			}
		case isActive(d.Status):
			s.Start, s.End = activeInterval(d, now, dayHours)
		default:
			s.Projected = true
			s.Start = cursor
			s.End = addDays(cursor, effortDays(d.EffortHours, dayHours))
			cursor = s.End
		}
		slots = append(slots, s)
	}
	return slots
}

func isActive(s domain.Status) bool {
	return s == domain.StatusInExecution || s == domain.StatusValidation
}

func startOf(d domain.Demand) time.Time {
	if d.StartedAt != nil {
		return *d.StartedAt
	}
	return d.CreatedAt
}

func activeInterval(d domain.Demand, now time.Time, dayHours float64) (time.Time, time.Time) {
	start := startOf(d)
	end := addDays(start, effortDays(d.EffortHours, dayHours))
	if end.Before(now) {
		end = now
	}
	return start, end
}

// effortDays converts effort hours to schedule days with a one-day floor.
func effortDays(effortHours, dayHours float64) float64 {
	days := effortHours / dayHours
	if days < 1 {
		return 1
	}
	return days
}

func addDays(t time.Time, days float64) time.Time {
	return t.Add(time.Duration(days * 24 * float64(time.Hour)))
}
