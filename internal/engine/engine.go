// Package engine orchestrates the demand workflow: it owns the session
// snapshot, routes mutations through the optimistic coordinator, and
// serves the derived views (projection, allocation, heatmap, SLA).
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"demandflow/internal/capacity"
	"demandflow/internal/config"
	"demandflow/internal/domain"
	"demandflow/internal/interval"
	"demandflow/internal/projection"
	"demandflow/internal/session"
	"demandflow/internal/sla"
	"demandflow/internal/store"
	"demandflow/internal/workflow"
)

type Engine struct {
	Store  store.Store
	Config *config.Config
	// Now is injectable for tests.
	Now func() time.Time
	// Actor is recorded on history entries.
	Actor string

	session *session.Coordinator
}

func New(st store.Store, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		Store:   st,
		Config:  cfg,
		Now:     time.Now,
		Actor:   "local-user",
		session: session.NewCoordinator(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) params() capacity.Params {
	return capacity.Params{
		DayHours:     e.Config.Capacity.DayHours,
		MinimumHours: e.Config.Capacity.MinimumHours,
		WeeklyHours:  e.Config.Capacity.WeeklyHours,
	}
}

// Refresh reloads the full snapshot from the store.
func (e *Engine) Refresh(ctx context.Context) error {
	var snap session.Snapshot
	var err error
	if snap.Demands, err = e.Store.ListDemands(ctx); err != nil {
		return fmt.Errorf("load demands: %w", err)
	}
	if snap.People, err = e.Store.ListPeople(ctx); err != nil {
		return fmt.Errorf("load people: %w", err)
	}
	if snap.Coordinations, err = e.Store.ListCoordinations(ctx); err != nil {
		return fmt.Errorf("load coordinations: %w", err)
	}
	if snap.Areas, err = e.Store.ListAreas(ctx); err != nil {
		return fmt.Errorf("load areas: %w", err)
	}
	if snap.Categories, err = e.Store.ListCategories(ctx); err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	if snap.SLAs, err = e.Store.ListSLAConfigs(ctx); err != nil {
		return fmt.Errorf("load sla configs: %w", err)
	}
	e.session.Replace(snap)
	return nil
}

// Snapshot returns the current session view.
func (e *Engine) Snapshot() session.Snapshot {
	return e.session.Snapshot()
}

// Demands returns all demands, sorted by creation time.
func (e *Engine) Demands() []domain.Demand {
	out := e.session.Demands()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Demand returns one demand by id.
func (e *Engine) Demand(id string) (domain.Demand, error) {
	for _, d := range e.session.Demands() {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Demand{}, fmt.Errorf("demand %s: %w", id, store.ErrNotFound)
}

// CreateDemandOptions carries the writable fields of a new demand.
type CreateDemandOptions struct {
	Title           string
	Description     string
	PersonID        string
	CoordinationID  string
	RequesterName   string
	RequesterAreaID string
	Category        string
	Type            domain.DemandType
	Complexity      domain.Complexity
	EffortHours     float64
	AgreedDeadline  *time.Time
	IsPriority      bool
}

// CreateDemand registers a new demand in intake.
func (e *Engine) CreateDemand(ctx context.Context, opts CreateDemandOptions) (domain.Demand, error) {
	if err := validateDemandFields(opts.Title, opts.EffortHours); err != nil {
		return domain.Demand{}, err
	}
	if opts.Type == "" {
		opts.Type = domain.TypeTask
	}
	if opts.Complexity == "" {
		opts.Complexity = domain.ComplexityMedium
	}
	now := e.now()
	d := domain.Demand{
		ID:              uuid.NewString(),
		Title:           opts.Title,
		Description:     opts.Description,
		PersonID:        opts.PersonID,
		CoordinationID:  opts.CoordinationID,
		RequesterName:   opts.RequesterName,
		RequesterAreaID: opts.RequesterAreaID,
		Category:        opts.Category,
		Type:            opts.Type,
		Status:          domain.StatusIntake,
		Complexity:      opts.Complexity,
		EffortHours:     opts.EffortHours,
		AgreedDeadline:  opts.AgreedDeadline,
		CreatedAt:       now,
		IsPriority:      opts.IsPriority,
		Logs:            []domain.WorkflowEntry{},
		History: []domain.HistoryEntry{{
			Timestamp: now,
			Action:    domain.ActionCreation,
			Details:   "Demand registered",
			Actor:     e.Actor,
		}},
		StatusTimestamps: map[domain.Status]time.Time{domain.StatusIntake: now},
	}
	err := e.session.Mutate(ctx,
		func(demands []domain.Demand) ([]domain.Demand, error) {
			return append(demands, d), nil
		},
		func(ctx context.Context) error {
			_, err := e.Store.CreateDemand(ctx, d)
			return err
		})
	if err != nil {
		return domain.Demand{}, err
	}
	return d, nil
}

// UpdateDemandOptions carries a partial edit; nil fields are unchanged.
type UpdateDemandOptions struct {
	Title           *string
	Description     *string
	PersonID        *string
	CoordinationID  *string
	RequesterName   *string
	RequesterAreaID *string
	Category        *string
	Type            *domain.DemandType
	Complexity      *domain.Complexity
	EffortHours     *float64
	AgreedDeadline  *time.Time
	ClearDeadline   bool
}

// UpdateDemand applies a field edit and records it in the history.
func (e *Engine) UpdateDemand(ctx context.Context, id string, opts UpdateDemandOptions) (domain.Demand, error) {
	return e.mutateDemand(ctx, id, func(d domain.Demand) (domain.Demand, error) {
		if opts.Title != nil {
			d.Title = *opts.Title
		}
		if opts.Description != nil {
			d.Description = *opts.Description
		}
		if opts.PersonID != nil {
			d.PersonID = *opts.PersonID
		}
		if opts.CoordinationID != nil {
			d.CoordinationID = *opts.CoordinationID
		}
		if opts.RequesterName != nil {
			d.RequesterName = *opts.RequesterName
		}
		if opts.RequesterAreaID != nil {
			d.RequesterAreaID = *opts.RequesterAreaID
		}
		if opts.Category != nil {
			d.Category = *opts.Category
		}
		if opts.Type != nil {
			d.Type = *opts.Type
		}
		if opts.Complexity != nil {
			d.Complexity = *opts.Complexity
		}
		if opts.EffortHours != nil {
			d.EffortHours = *opts.EffortHours
		}
		if opts.AgreedDeadline != nil {
			t := *opts.AgreedDeadline
			d.AgreedDeadline = &t
		}
		if opts.ClearDeadline {
			d.AgreedDeadline = nil
		}
		if err := validateDemandFields(d.Title, d.EffortHours); err != nil {
			return d, err
		}
		d.History = append(d.History, domain.HistoryEntry{
			Timestamp: e.now(),
			Action:    domain.ActionEdit,
			Details:   "Fields updated",
			Actor:     e.Actor,
		})
		return d, nil
	})
}

// StatusOptions carries the justifications some transitions require.
type StatusOptions struct {
	Justification      string
	DeliverySummary    string
	DelayJustification string
}

// ChangeStatus moves a demand to target. Completion runs the SLA check
// first so a breach can demand its delay justification.
func (e *Engine) ChangeStatus(ctx context.Context, id string, target domain.Status, opts StatusOptions) (domain.Demand, error) {
	snap := e.session.Snapshot()
	now := e.now()
	return e.mutateDemand(ctx, id, func(d domain.Demand) (domain.Demand, error) {
		wopts := workflow.Options{
			Justification:      opts.Justification,
			DeliverySummary:    opts.DeliverySummary,
			DelayJustification: opts.DelayJustification,
		}
		if target == domain.StatusCompleted {
			res := sla.Evaluate(d, snap.SLAs, snap.Categories, now)
			if res.HasRule && res.Breached {
				wopts.SLABreached = true
				wopts.ActualHours = res.ActualHours
				wopts.AllowedHours = res.AllowedHours
			}
		}
		return workflow.Apply(d, target, e.Actor, now, wopts)
	})
}

// Advance steps a demand to the next lifecycle state. Stepping past
// Completed is a no-op: the demand is returned unchanged.
func (e *Engine) Advance(ctx context.Context, id string, opts StatusOptions) (domain.Demand, error) {
	d, err := e.Demand(id)
	if err != nil {
		return domain.Demand{}, err
	}
	target := workflow.Next(d.Status)
	if target == d.Status {
		return d, nil
	}
	return e.ChangeStatus(ctx, id, target, opts)
}

// Retreat steps a demand to the previous lifecycle state. Stepping back
// from Intake is a no-op: the demand is returned unchanged.
func (e *Engine) Retreat(ctx context.Context, id string, opts StatusOptions) (domain.Demand, error) {
	d, err := e.Demand(id)
	if err != nil {
		return domain.Demand{}, err
	}
	target := workflow.Prev(d.Status)
	if target == d.Status {
		return d, nil
	}
	return e.ChangeStatus(ctx, id, target, opts)
}

// Archive soft-deletes a demand with a mandatory justification.
func (e *Engine) Archive(ctx context.Context, id, justification string) (domain.Demand, error) {
	return e.ChangeStatus(ctx, id, domain.StatusArchived, StatusOptions{Justification: justification})
}

// Restore returns an archived demand to the queue.
func (e *Engine) Restore(ctx context.Context, id string) (domain.Demand, error) {
	now := e.now()
	return e.mutateDemand(ctx, id, func(d domain.Demand) (domain.Demand, error) {
		return workflow.Restore(d, e.Actor, now)
	})
}

// TogglePriority flips a demand's priority flag.
func (e *Engine) TogglePriority(ctx context.Context, id string) (domain.Demand, error) {
	now := e.now()
	return e.mutateDemand(ctx, id, func(d domain.Demand) (domain.Demand, error) {
		return workflow.TogglePriority(d, e.Actor, now), nil
	})
}

// DeleteDemand permanently removes a demand. Unlike Archive this is not
// recoverable; the audit trail survives only in the event log.
func (e *Engine) DeleteDemand(ctx context.Context, id string) error {
	return e.session.Mutate(ctx,
		func(demands []domain.Demand) ([]domain.Demand, error) {
			for i, d := range demands {
				if d.ID == id {
					return append(demands[:i], demands[i+1:]...), nil
				}
			}
			return demands, fmt.Errorf("demand %s: %w", id, store.ErrNotFound)
		},
		func(ctx context.Context) error {
			return e.Store.DeleteDemand(ctx, id)
		})
}

// mutateDemand runs a single-demand transform through the coordinator and
// persists the result as a full-record replace.
func (e *Engine) mutateDemand(ctx context.Context, id string, fn func(domain.Demand) (domain.Demand, error)) (domain.Demand, error) {
	var out domain.Demand
	err := e.session.Mutate(ctx,
		func(demands []domain.Demand) ([]domain.Demand, error) {
			for i, d := range demands {
				if d.ID != id {
					continue
				}
				next, err := fn(d)
				if err != nil {
					return demands, err
				}
				demands[i] = next
				out = next.Clone()
				return demands, nil
			}
			return demands, fmt.Errorf("demand %s: %w", id, store.ErrNotFound)
		},
		func(ctx context.Context) error {
			_, err := e.Store.UpdateDemand(ctx, out)
			return err
		})
	if err != nil {
		return domain.Demand{}, err
	}
	return out, nil
}

func validateDemandFields(title string, effortHours float64) error {
	if utf8.RuneCountInString(title) < 3 {
		return workflow.ValidationError{Field: "title", Reason: "must be at least 3 characters"}
	}
	if effortHours < 0 || effortHours > 10000 {
		return workflow.ValidationError{Field: "effort_hours", Reason: "must be between 0 and 10000"}
	}
	return nil
}

// --- derived views ---

// Projection simulates the FIFO schedule for every assignee.
func (e *Engine) Projection() []projection.Row {
	snap := e.session.Snapshot()
	return projection.Plan(snap.Demands, snap.People, e.now(), e.Config.Capacity.DayHours)
}

// Allocation reports utilization over a window. A zero window defaults to
// the four weeks starting now.
func (e *Engine) Allocation(window interval.Interval) capacity.Report {
	if window.Empty() {
		now := e.now()
		window = interval.Interval{Start: now, End: now.AddDate(0, 0, 28)}
	}
	snap := e.session.Snapshot()
	return capacity.Allocation(snap.Demands, snap.People, snap.Coordinations, window, e.params())
}

// Heatmap buckets load into 7-day columns over a span. A zero span
// defaults to the twelve weeks starting now.
func (e *Engine) Heatmap(span interval.Interval) capacity.Heatmap {
	if span.Empty() {
		now := e.now()
		span = interval.Interval{Start: now, End: now.AddDate(0, 0, 7*12-1)}
	}
	snap := e.session.Snapshot()
	return capacity.WeeklyHeatmap(snap.Demands, snap.People, snap.Coordinations, span, e.params())
}

// EvaluateSLA runs the SLA check for one demand.
func (e *Engine) EvaluateSLA(id string) (sla.Result, error) {
	d, err := e.Demand(id)
	if err != nil {
		return sla.Result{}, err
	}
	snap := e.session.Snapshot()
	return sla.Evaluate(d, snap.SLAs, snap.Categories, e.now()), nil
}

// DelayReason says why a demand shows up in the delayed view.
type DelayReason string

const (
	DelayBreached DelayReason = "sla_breached"
	DelayAtRisk   DelayReason = "at_risk"
)

// DelayedDemand pairs a demand with its delay classification.
type DelayedDemand struct {
	Demand domain.Demand `json:"demand"`
	Reason DelayReason   `json:"reason"`
	Result sla.Result    `json:"sla"`
}

// Delayed lists demands that completed past their SLA budget and open
// in-execution demands past the at-risk threshold.
func (e *Engine) Delayed() []DelayedDemand {
	snap := e.session.Snapshot()
	now := e.now()
	var out []DelayedDemand
	for _, d := range snap.Demands {
		if d.Status == domain.StatusArchived {
			continue
		}
		res := sla.Evaluate(d, snap.SLAs, snap.Categories, now)
		switch {
		case res.HasRule && res.Breached:
			out = append(out, DelayedDemand{Demand: d, Reason: DelayBreached, Result: res})
		case sla.AtRisk(d, e.Config.SLA.AtRiskBuffer, now):
			out = append(out, DelayedDemand{Demand: d, Reason: DelayAtRisk, Result: res})
		}
	}
	return out
}

// Metrics is the flow summary for the whole collection.
type Metrics struct {
	Total            int                   `json:"total"`
	ByStatus         map[domain.Status]int `json:"by_status"`
	WIP              int                   `json:"wip"`
	Completed        int                   `json:"completed"`
	Archived         int                   `json:"archived"`
	Priority         int                   `json:"priority"`
	AvgLeadTimeDays  float64               `json:"avg_lead_time_days"`
	AvgCycleTimeDays float64               `json:"avg_cycle_time_days"`
	LatePercent      float64               `json:"late_percent"`
}

// ComputeMetrics aggregates flow metrics. Lead time runs from creation to
// finish; cycle time from execution start to finish. Late percent counts
// completed demands whose SLA check breached.
func (e *Engine) ComputeMetrics() Metrics {
	snap := e.session.Snapshot()
	now := e.now()
	m := Metrics{ByStatus: map[domain.Status]int{}}
	var leadSum, cycleSum float64
	var leadN, cycleN, late int
	for _, d := range snap.Demands {
		m.Total++
		m.ByStatus[d.Status]++
		if d.IsPriority {
			m.Priority++
		}
		switch d.Status {
		case domain.StatusInExecution, domain.StatusValidation:
			m.WIP++
		case domain.StatusArchived:
			m.Archived++
		case domain.StatusCompleted:
			m.Completed++
			if d.FinishedAt != nil {
				leadSum += d.FinishedAt.Sub(d.CreatedAt).Hours() / 24
				leadN++
				if d.StartedAt != nil {
					cycleSum += d.FinishedAt.Sub(*d.StartedAt).Hours() / 24
					cycleN++
				}
			}
			if res := sla.Evaluate(d, snap.SLAs, snap.Categories, now); res.HasRule && res.Breached {
				late++
			}
		}
	}
	if leadN > 0 {
		m.AvgLeadTimeDays = leadSum / float64(leadN)
	}
	if cycleN > 0 {
		m.AvgCycleTimeDays = cycleSum / float64(cycleN)
	}
	if m.Completed > 0 {
		m.LatePercent = float64(late) / float64(m.Completed) * 100
	}
	return m
}

// EventLister is implemented by stores that expose the audit log.
type EventLister interface {
	ListEvents(ctx context.Context, limit int) ([]domain.Event, error)
}

// Events returns the most recent audit events, newest first.
func (e *Engine) Events(ctx context.Context, limit int) ([]domain.Event, error) {
	el, ok := e.Store.(EventLister)
	if !ok {
		return nil, fmt.Errorf("store does not expose an event log")
	}
	return el.ListEvents(ctx, limit)
}

// --- reference entities ---
// Each write goes straight to the store; the snapshot catches up on the
// next Refresh, which these helpers trigger.

func (e *Engine) CreateArea(ctx context.Context, a domain.Area) (domain.Area, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	out, err := e.Store.CreateArea(ctx, a)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) UpdateArea(ctx context.Context, a domain.Area) (domain.Area, error) {
	out, err := e.Store.UpdateArea(ctx, a)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) DeleteArea(ctx context.Context, id string) error {
	if err := e.Store.DeleteArea(ctx, id); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

func (e *Engine) CreateCoordination(ctx context.Context, c domain.Coordination) (domain.Coordination, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	out, err := e.Store.CreateCoordination(ctx, c)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) UpdateCoordination(ctx context.Context, c domain.Coordination) (domain.Coordination, error) {
	out, err := e.Store.UpdateCoordination(ctx, c)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) DeleteCoordination(ctx context.Context, id string) error {
	if err := e.Store.DeleteCoordination(ctx, id); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

func (e *Engine) CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	out, err := e.Store.CreatePerson(ctx, p)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) UpdatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	out, err := e.Store.UpdatePerson(ctx, p)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) DeletePerson(ctx context.Context, id string) error {
	if err := e.Store.DeletePerson(ctx, id); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

func (e *Engine) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	out, err := e.Store.CreateCategory(ctx, c)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) UpdateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	out, err := e.Store.UpdateCategory(ctx, c)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) DeleteCategory(ctx context.Context, id string) error {
	if err := e.Store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

func (e *Engine) CreateSLAConfig(ctx context.Context, s domain.SLAConfig) (domain.SLAConfig, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	out, err := e.Store.CreateSLAConfig(ctx, s)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) UpdateSLAConfig(ctx context.Context, s domain.SLAConfig) (domain.SLAConfig, error) {
	out, err := e.Store.UpdateSLAConfig(ctx, s)
	if err != nil {
		return out, err
	}
	return out, e.Refresh(ctx)
}

func (e *Engine) DeleteSLAConfig(ctx context.Context, id string) error {
	if err := e.Store.DeleteSLAConfig(ctx, id); err != nil {
		return err
	}
	return e.Refresh(ctx)
}
