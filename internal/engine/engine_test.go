package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"demandflow/internal/config"
	"demandflow/internal/db"
	"demandflow/internal/domain"
	"demandflow/internal/engine"
	"demandflow/internal/interval"
	"demandflow/internal/migrate"
	"demandflow/internal/store"
	"demandflow/internal/store/sqlite"
	"demandflow/internal/workflow"
)

type testEnv struct {
	Engine *engine.Engine
	Store  *sqlite.Store
	Ctx    context.Context
	now    time.Time

	coordinationID string
	personID       string
	categoryID     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := sqlite.New(conn)
	eng := engine.New(st, config.Default())
	eng.Actor = "tester"
	env := &testEnv{Engine: eng, Store: st, Ctx: context.Background()}
	env.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return env.now }

	coord, err := eng.CreateCoordination(env.Ctx, domain.Coordination{Name: "Platform"})
	if err != nil {
		t.Fatalf("seed coordination: %v", err)
	}
	env.coordinationID = coord.ID
	person, err := eng.CreatePerson(env.Ctx, domain.Person{Name: "Ana", CoordinationID: coord.ID})
	if err != nil {
		t.Fatalf("seed person: %v", err)
	}
	env.personID = person.ID
	cat, err := eng.CreateCategory(env.Ctx, domain.Category{Name: "Integration"})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	env.categoryID = cat.ID
	if err := eng.Refresh(env.Ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) createDemand(t *testing.T, effort float64) domain.Demand {
	t.Helper()
	d, err := env.Engine.CreateDemand(env.Ctx, engine.CreateDemandOptions{
		Title:          "Integrate billing feed",
		PersonID:       env.personID,
		CoordinationID: env.coordinationID,
		Category:       "Integration",
		EffortHours:    effort,
	})
	if err != nil {
		t.Fatalf("create demand: %v", err)
	}
	return d
}

func TestCreateDemandPersists(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 16)

	if d.Status != domain.StatusIntake {
		t.Fatalf("status = %s", d.Status)
	}
	if len(d.History) != 1 || d.History[0].Action != domain.ActionCreation {
		t.Fatalf("history = %+v", d.History)
	}

	// a fresh engine over the same store sees it
	other := engine.New(env.Store, config.Default())
	if err := other.Refresh(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got, err := other.Demand(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != d.Title || !got.CreatedAt.Equal(d.CreatedAt) {
		t.Fatalf("reloaded %+v", got)
	}
}

func TestCreateDemandValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateDemand(env.Ctx, engine.CreateDemandOptions{Title: "ab"})
	var ve workflow.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("err = %v", err)
	}
	_, err = env.Engine.CreateDemand(env.Ctx, engine.CreateDemandOptions{Title: "valid", EffortHours: 10001})
	if !errors.As(err, &ve) || ve.Field != "effort_hours" {
		t.Fatalf("err = %v", err)
	}
	// length is measured in characters, not bytes
	_, err = env.Engine.CreateDemand(env.Ctx, engine.CreateDemandOptions{Title: "éé"})
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("two-character title: err = %v", err)
	}
	if _, err := env.Engine.CreateDemand(env.Ctx, engine.CreateDemandOptions{Title: "ééé"}); err != nil {
		t.Fatalf("three-character title rejected: %v", err)
	}
}

func TestLifecycleWithSLABreach(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateSLAConfig(env.Ctx, domain.SLAConfig{
		CategoryID:  env.categoryID,
		Complexity:  domain.ComplexityMedium,
		TargetHours: 48,
	}); err != nil {
		t.Fatal(err)
	}
	d := env.createDemand(t, 40)

	for _, target := range []domain.Status{domain.StatusQualification, domain.StatusQueued, domain.StatusInExecution, domain.StatusValidation} {
		var err error
		d, err = env.Engine.ChangeStatus(env.Ctx, d.ID, target, engine.StatusOptions{})
		if err != nil {
			t.Fatalf("to %s: %v", target, err)
		}
	}
	if d.StartedAt == nil {
		t.Fatal("startedAt not set")
	}

	env.advance(72 * time.Hour) // past the 48h budget

	_, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusCompleted, engine.StatusOptions{DeliverySummary: "done"})
	var ve workflow.ValidationError
	if !errors.As(err, &ve) || ve.Field != "delay_justification" {
		t.Fatalf("err = %v, want delay justification demand", err)
	}

	d, err = env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusCompleted, engine.StatusOptions{
		DeliverySummary:    "done",
		DelayJustification: "upstream outage",
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.FinishedAt == nil {
		t.Fatal("finishedAt not set")
	}
	if d.DelayJustification != "upstream outage" {
		t.Fatalf("delayJustification = %q", d.DelayJustification)
	}

	res, err := env.Engine.EvaluateSLA(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasRule || !res.Breached {
		t.Fatalf("sla = %+v", res)
	}
}

func TestAdvanceRetreatClamp(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 8)

	d, err := env.Engine.Advance(env.Ctx, d.ID, engine.StatusOptions{})
	if err != nil || d.Status != domain.StatusQualification {
		t.Fatalf("advance: %v (%s)", err, d.Status)
	}
	d, err = env.Engine.Retreat(env.Ctx, d.ID, engine.StatusOptions{})
	if err != nil || d.Status != domain.StatusIntake {
		t.Fatalf("retreat: %v (%s)", err, d.Status)
	}

	// stepping back from the floor quietly does nothing
	before, _ := env.Engine.Demand(d.ID)
	got, err := env.Engine.Retreat(env.Ctx, d.ID, engine.StatusOptions{})
	if err != nil {
		t.Fatalf("retreat at intake: %v", err)
	}
	if got.Status != domain.StatusIntake || len(got.Logs) != len(before.Logs) {
		t.Fatalf("retreat at intake changed demand: %+v", got)
	}
}

func TestAdvanceAtCompletedIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 8)
	for _, target := range []domain.Status{domain.StatusQualification, domain.StatusQueued, domain.StatusInExecution, domain.StatusValidation} {
		var err error
		d, err = env.Engine.ChangeStatus(env.Ctx, d.ID, target, engine.StatusOptions{})
		if err != nil {
			t.Fatal(err)
		}
	}
	d, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusCompleted, engine.StatusOptions{DeliverySummary: "done"})
	if err != nil {
		t.Fatal(err)
	}

	// no-op even without a delivery summary: the guard never runs
	got, err := env.Engine.Advance(env.Ctx, d.ID, engine.StatusOptions{})
	if err != nil {
		t.Fatalf("advance at completed: %v", err)
	}
	if got.Status != domain.StatusCompleted || len(got.Logs) != len(d.Logs) || len(got.History) != len(d.History) {
		t.Fatalf("advance at completed changed demand: %+v", got)
	}

	// the no-op must not touch the store either
	broken := engine.New(failingStore{Store: env.Store}, config.Default())
	broken.Now = env.Engine.Now
	if err := broken.Refresh(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := broken.Advance(env.Ctx, d.ID, engine.StatusOptions{}); err != nil {
		t.Fatalf("no-op advance hit the store: %v", err)
	}
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 8)

	d, err := env.Engine.Archive(env.Ctx, d.ID, "requester withdrew")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != domain.StatusArchived || d.CancellationReason != "requester withdrew" {
		t.Fatalf("archived = %+v", d)
	}

	d, err = env.Engine.Restore(env.Ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != domain.StatusQueued || d.CancellationReason != "" {
		t.Fatalf("restored = %+v", d)
	}

	// survives a reload
	other := engine.New(env.Store, config.Default())
	if err := other.Refresh(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got, err := other.Demand(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusQueued || len(got.History) != len(d.History) {
		t.Fatalf("reloaded = %+v", got)
	}
}

func TestDeleteDemand(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 8)
	if err := env.Engine.DeleteDemand(env.Ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Demand(d.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := env.Engine.DeleteDemand(env.Ctx, d.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("double delete err = %v", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 8)
	if _, err := env.Engine.TogglePriority(env.Ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Events(env.Ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	var created, updated bool
	for _, e := range events {
		if e.EntityID != d.ID {
			continue
		}
		switch e.Type {
		case "demand.created":
			created = true
		case "demand.updated":
			updated = true
		}
	}
	if !created || !updated {
		t.Fatalf("events missing: created=%v updated=%v", created, updated)
	}
}

// failingStore refuses demand updates, for rollback checks.
type failingStore struct {
	store.Store
}

var errStoreDown = errors.New("store down")

func (f failingStore) UpdateDemand(ctx context.Context, d domain.Demand) (domain.Demand, error) {
	return d, errStoreDown
}

func TestMutationRollsBackOnPersistFailure(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 8)

	broken := engine.New(failingStore{Store: env.Store}, config.Default())
	broken.Now = env.Engine.Now
	if err := broken.Refresh(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := broken.TogglePriority(env.Ctx, d.ID); !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v", err)
	}
	got, err := broken.Demand(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsPriority || len(got.History) != len(d.History) {
		t.Fatalf("rollback left %+v", got)
	}
}

func TestProjectionAndAllocationViews(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 16)
	if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusQualification, engine.StatusOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ChangeStatus(env.Ctx, d.ID, domain.StatusQueued, engine.StatusOptions{}); err != nil {
		t.Fatal(err)
	}

	rows := env.Engine.Projection()
	if len(rows) != 1 || rows[0].PersonID != env.personID {
		t.Fatalf("projection = %+v", rows)
	}
	if len(rows[0].Slots) != 1 || !rows[0].Slots[0].Projected {
		t.Fatalf("slots = %+v", rows[0].Slots)
	}

	rep := env.Engine.Allocation(interval.Interval{})
	if len(rep.People) != 1 {
		t.Fatalf("allocation people = %d", len(rep.People))
	}
	if rep.People[0].LoadHours == 0 {
		t.Fatal("expected queued demand to book load")
	}
	if len(rep.Coordinations) != 1 {
		t.Fatalf("allocation coordinations = %d", len(rep.Coordinations))
	}

	hm := env.Engine.Heatmap(interval.Interval{})
	if hm.PeopleIncluded != 1 || len(hm.Weeks) == 0 {
		t.Fatalf("heatmap = %+v", hm)
	}
}

func TestDelayedView(t *testing.T) {
	env := newTestEnv(t)
	d := env.createDemand(t, 10)
	for _, target := range []domain.Status{domain.StatusQualification, domain.StatusQueued, domain.StatusInExecution} {
		var err error
		d, err = env.Engine.ChangeStatus(env.Ctx, d.ID, target, engine.StatusOptions{})
		if err != nil {
			t.Fatal(err)
		}
	}
	// elapsed 20h > 10h x 1.2 buffer
	env.advance(20 * time.Hour)
	delayed := env.Engine.Delayed()
	if len(delayed) != 1 || delayed[0].Reason != engine.DelayAtRisk {
		t.Fatalf("delayed = %+v", delayed)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	first := env.createDemand(t, 8)
	env.createDemand(t, 8)

	for _, target := range []domain.Status{domain.StatusQualification, domain.StatusQueued, domain.StatusInExecution, domain.StatusValidation} {
		if _, err := env.Engine.ChangeStatus(env.Ctx, first.ID, target, engine.StatusOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	env.advance(48 * time.Hour)
	if _, err := env.Engine.ChangeStatus(env.Ctx, first.ID, domain.StatusCompleted, engine.StatusOptions{DeliverySummary: "done"}); err != nil {
		t.Fatal(err)
	}

	m := env.Engine.ComputeMetrics()
	if m.Total != 2 || m.Completed != 1 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.AvgLeadTimeDays != 2 {
		t.Fatalf("lead time = %v, want 2", m.AvgLeadTimeDays)
	}
	if m.AvgCycleTimeDays != 2 {
		t.Fatalf("cycle time = %v, want 2", m.AvgCycleTimeDays)
	}
	if m.ByStatus[domain.StatusIntake] != 1 {
		t.Fatalf("byStatus = %+v", m.ByStatus)
	}
}

func TestReferenceEntityCRUD(t *testing.T) {
	env := newTestEnv(t)
	area, err := env.Engine.CreateArea(env.Ctx, domain.Area{Name: "Finance"})
	if err != nil {
		t.Fatal(err)
	}
	area.Description = "finance requests"
	if _, err := env.Engine.UpdateArea(env.Ctx, area); err != nil {
		t.Fatal(err)
	}
	snap := env.Engine.Snapshot()
	if len(snap.Areas) != 1 || snap.Areas[0].Description != "finance requests" {
		t.Fatalf("areas = %+v", snap.Areas)
	}
	if err := env.Engine.DeleteArea(env.Ctx, area.ID); err != nil {
		t.Fatal(err)
	}
	if got := env.Engine.Snapshot().Areas; len(got) != 0 {
		t.Fatalf("areas after delete = %+v", got)
	}
	if err := env.Engine.DeleteArea(env.Ctx, area.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
