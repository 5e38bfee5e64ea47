package workflow

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"demandflow/internal/domain"
)

// ErrStateConflict marks an invalid transition attempt. The demand is
// returned unchanged and nothing is logged.
var ErrStateConflict = errors.New("invalid status transition")

// ValidationError is a missing/invalid required field, rejected before any
// mutation is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Options carries the fields some transitions require. Breach data comes
// from the SLA evaluator; the transition engine itself never measures time.
type Options struct {
	Justification      string
	DeliverySummary    string
	DelayJustification string
	SLABreached        bool
	ActualHours        float64
	AllowedHours       float64
}

// Apply validates and applies one status transition, stamping timestamps
// and appending audit entries. The input demand is not modified.
func Apply(d domain.Demand, target domain.Status, actor string, now time.Time, opts Options) (domain.Demand, error) {
	if !target.Valid() {
		return d, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", target)}
	}
	if d.Status == domain.StatusArchived {
		// archived demands only leave via Restore
		return d, fmt.Errorf("%w: demand is archived", ErrStateConflict)
	}
	if target == d.Status {
		return d, fmt.Errorf("%w: already %s", ErrStateConflict, target)
	}
	if target == domain.StatusArchived && opts.Justification == "" {
		return d, ValidationError{Field: "justification", Reason: "is required to archive"}
	}
	if target == domain.StatusCompleted {
		if opts.DeliverySummary == "" {
			return d, ValidationError{Field: "delivery_summary", Reason: "is required to complete"}
		}
		if opts.SLABreached && opts.DelayJustification == "" {
			return d, ValidationError{Field: "delay_justification", Reason: "is required when the SLA is exceeded"}
		}
	}

	out := d.Clone()
	from := out.Status
	out.Status = target

	if target == domain.StatusInExecution && out.StartedAt == nil {
		t := now
		out.StartedAt = &t
	}
	switch {
	case target == domain.StatusCompleted:
		t := now
		out.FinishedAt = &t
	case from == domain.StatusCompleted:
		// leaving completed should not normally occur
		out.FinishedAt = nil
	}

	out.Logs = append(out.Logs, domain.WorkflowEntry{From: from, To: target, Timestamp: now})
	if out.StatusTimestamps == nil {
		out.StatusTimestamps = map[domain.Status]time.Time{}
	}
	out.StatusTimestamps[target] = now

	switch target {
	case domain.StatusArchived:
		out.CancellationReason = opts.Justification
		out.History = append(out.History, domain.HistoryEntry{
			Timestamp: now,
			Action:    domain.ActionCancellation,
			Details:   fmt.Sprintf("Archived. Reason: %s", opts.Justification),
			Actor:     actor,
		})
	case domain.StatusCompleted:
		out.DeliverySummary = opts.DeliverySummary
		out.History = append(out.History, domain.HistoryEntry{
			Timestamp: now,
			Action:    domain.ActionCompletion,
			Details:   fmt.Sprintf("Delivered. %s", excerpt(opts.DeliverySummary, 50)),
			Actor:     actor,
		})
		if opts.SLABreached {
			out.DelayJustification = opts.DelayJustification
			out.History = append(out.History, domain.HistoryEntry{
				Timestamp: now,
				Action:    domain.ActionCompletion,
				Details: fmt.Sprintf("SLA exceeded (%.0fh vs %.0fh allowed). Justification: %s",
					opts.ActualHours, opts.AllowedHours, opts.DelayJustification),
				Actor: actor,
			})
		}
	}
	return out, nil
}

// Restore moves an archived demand back to the queue, clearing its
// cancellation reason.
func Restore(d domain.Demand, actor string, now time.Time) (domain.Demand, error) {
	if d.Status != domain.StatusArchived {
		return d, fmt.Errorf("%w: only archived demands can be restored", ErrStateConflict)
	}
	out := d.Clone()
	from := out.Status
	out.Status = domain.StatusQueued
	out.CancellationReason = ""
	out.Logs = append(out.Logs, domain.WorkflowEntry{From: from, To: domain.StatusQueued, Timestamp: now})
	if out.StatusTimestamps == nil {
		out.StatusTimestamps = map[domain.Status]time.Time{}
	}
	out.StatusTimestamps[domain.StatusQueued] = now
	out.History = append(out.History, domain.HistoryEntry{
		Timestamp: now,
		Action:    domain.ActionRestoration,
		Details:   "Restored from archive to queue",
		Actor:     actor,
	})
	return out, nil
}

// TogglePriority flips the priority flag. Not a status transition; it is
// valid in any workflow state.
func TogglePriority(d domain.Demand, actor string, now time.Time) domain.Demand {
	out := d.Clone()
	out.IsPriority = !out.IsPriority
	details := "Unmarked as priority"
	if out.IsPriority {
		details = "Marked as priority"
	}
	out.History = append(out.History, domain.HistoryEntry{
		Timestamp: now,
		Action:    domain.ActionPrioritization,
		Details:   details,
		Actor:     actor,
	})
	return out
}

// Next returns the following lifecycle state, clamped at Completed.
// Archived has no position in the linear sequence and maps to itself.
func Next(s domain.Status) domain.Status {
	idx := lifecycleIndex(s)
	if idx < 0 {
		return s
	}
	if idx+1 >= len(domain.Lifecycle) {
		return domain.Lifecycle[len(domain.Lifecycle)-1]
	}
	return domain.Lifecycle[idx+1]
}

// Prev returns the preceding lifecycle state, clamped at Intake.
func Prev(s domain.Status) domain.Status {
	idx := lifecycleIndex(s)
	if idx < 0 {
		return s
	}
	if idx-1 < 0 {
		return domain.Lifecycle[0]
	}
	return domain.Lifecycle[idx-1]
}

func lifecycleIndex(s domain.Status) int {
	for i, st := range domain.Lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// excerpt truncates to max runes so multibyte text is never cut mid-rune.
func excerpt(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
