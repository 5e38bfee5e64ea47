package domain

import "time"

// Status is a demand's workflow state.
type Status string

const (
	StatusIntake        Status = "intake"
	StatusQualification Status = "qualification"
	StatusQueued        Status = "queued"
	StatusInExecution   Status = "in_execution"
	StatusValidation    Status = "validation"
	StatusCompleted     Status = "completed"
	StatusArchived      Status = "archived"
)

// Lifecycle lists the non-archived states in workflow order.
var Lifecycle = []Status{
	StatusIntake,
	StatusQualification,
	StatusQueued,
	StatusInExecution,
	StatusValidation,
	StatusCompleted,
}

func (s Status) Valid() bool {
	if s == StatusArchived {
		return true
	}
	for _, st := range Lifecycle {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether no further automatic transitions leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusArchived
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

type DemandType string

const (
	TypeSystem DemandType = "system"
	TypeTask   DemandType = "task"
)

// WorkflowEntry records one status transition. The slice on Demand is
// append-only; storage order is insertion order.
type WorkflowEntry struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Timestamp time.Time `json:"timestamp" format:"date-time"`
}

type HistoryAction string

const (
	ActionCreation       HistoryAction = "creation"
	ActionEdit           HistoryAction = "edit"
	ActionCancellation   HistoryAction = "cancellation"
	ActionCompletion     HistoryAction = "completion"
	ActionPrioritization HistoryAction = "prioritization"
	ActionRestoration    HistoryAction = "restoration"
	ActionDeletion       HistoryAction = "deletion"
)

// HistoryEntry is a human-readable audit line. Append-only, like Logs.
type HistoryEntry struct {
	Timestamp time.Time     `json:"timestamp" format:"date-time"`
	Action    HistoryAction `json:"action"`
	Details   string        `json:"details"`
	Actor     string        `json:"actor"`
}

type Demand struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	PersonID        string     `json:"person_id"`
	CoordinationID  string     `json:"coordination_id"`
	RequesterName   string     `json:"requester_name,omitempty"`
	RequesterAreaID string     `json:"requester_area_id"`
	Category        string     `json:"category"`
	Type            DemandType `json:"type" enum:"system,task"`
	Status          Status     `json:"status" enum:"intake,qualification,queued,in_execution,validation,completed,archived"`
	Complexity      Complexity `json:"complexity" enum:"low,medium,high"`
	EffortHours     float64    `json:"effort_hours"`

	AgreedDeadline *time.Time `json:"agreed_deadline,omitempty" format:"date-time"`
	CreatedAt      time.Time  `json:"created_at" format:"date-time"`
	StartedAt      *time.Time `json:"started_at,omitempty" format:"date-time"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" format:"date-time"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	DelayJustification string `json:"delay_justification,omitempty"`
	DeliverySummary    string `json:"delivery_summary,omitempty"`
	IsPriority         bool   `json:"is_priority"`

	Logs             []WorkflowEntry      `json:"logs"`
	History          []HistoryEntry       `json:"history"`
	StatusTimestamps map[Status]time.Time `json:"status_timestamps,omitempty"`
}

// Clone returns a deep copy, so snapshots can be mutated and rolled back
// without aliasing the append-only logs.
func (d Demand) Clone() Demand {
	out := d
	if d.AgreedDeadline != nil {
		t := *d.AgreedDeadline
		out.AgreedDeadline = &t
	}
	if d.StartedAt != nil {
		t := *d.StartedAt
		out.StartedAt = &t
	}
	if d.FinishedAt != nil {
		t := *d.FinishedAt
		out.FinishedAt = &t
	}
	out.Logs = append([]WorkflowEntry(nil), d.Logs...)
	out.History = append([]HistoryEntry(nil), d.History...)
	if d.StatusTimestamps != nil {
		out.StatusTimestamps = make(map[Status]time.Time, len(d.StatusTimestamps))
		for k, v := range d.StatusTimestamps {
			out.StatusTimestamps[k] = v
		}
	}
	return out
}

// CloneDemands deep-copies a demand collection.
func CloneDemands(in []Demand) []Demand {
	if in == nil {
		return nil
	}
	out := make([]Demand, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}

// Person is an executing team member.
type Person struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role,omitempty"`
	CoordinationID string `json:"coordination_id"`
}

// Coordination is an executing team; distinct from the requesting Area.
type Coordination struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Area is an organizational unit that originates requests.
type Area struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SLAConfig is a time budget for a (category, complexity) pair.
// At most one rule per pair.
type SLAConfig struct {
	ID          string     `json:"id"`
	CategoryID  string     `json:"category_id"`
	Complexity  Complexity `json:"complexity" enum:"low,medium,high"`
	TargetHours float64    `json:"target_hours"`
}

// Event is one row of the global append-only store audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
