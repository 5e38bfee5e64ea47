package projection_test

import (
	"testing"
	"time"

	"demandflow/internal/domain"
	"demandflow/internal/projection"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func pending(id string, createdDaysAgo int, effort float64) domain.Demand {
	return domain.Demand{
		ID:          id,
		Title:       id,
		PersonID:    "p-1",
		Status:      domain.StatusQueued,
		EffortHours: effort,
		CreatedAt:   now.AddDate(0, 0, -createdDaysAgo),
	}
}

func TestPendingScheduledFIFO(t *testing.T) {
	demands := []domain.Demand{
		pending("d-2", 1, 16),
		pending("d-1", 2, 8),
	}
	slots := projection.ForPerson(demands, "p-1", now, 8)
	if len(slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(slots))
	}
	// d-1 is older, so it goes first
	if slots[0].Demand.ID != "d-1" || slots[1].Demand.ID != "d-2" {
		t.Fatalf("order = %s, %s", slots[0].Demand.ID, slots[1].Demand.ID)
	}
	if !slots[0].Start.Equal(now) {
		t.Fatalf("first start = %v, want %v", slots[0].Start, now)
	}
	if !slots[0].End.Equal(now.AddDate(0, 0, 1)) {
		t.Fatalf("first end = %v, want +1d", slots[0].End)
	}
	if !slots[1].Start.Equal(slots[0].End) {
		t.Fatalf("second start = %v, want %v", slots[1].Start, slots[0].End)
	}
	if !slots[1].End.Equal(now.AddDate(0, 0, 3)) {
		t.Fatalf("second end = %v, want +3d", slots[1].End)
	}
	for _, s := range slots {
		if !s.Projected {
			t.Fatalf("pending slot %s not marked projected", s.Demand.ID)
		}
	}
}

func TestNoOverlapWithinPerson(t *testing.T) {
	started := now.AddDate(0, 0, -1)
	active := pending("d-active", 5, 24)
	active.Status = domain.StatusInExecution
	active.StartedAt = &started
	demands := []domain.Demand{
		active,
		pending("d-a", 3, 8),
		pending("d-b", 2, 8),
	}
	slots := projection.ForPerson(demands, "p-1", now, 8)
	var projected []projection.Slot
	for _, s := range slots {
		if s.Projected {
			projected = append(projected, s)
		}
	}
	if len(projected) != 2 {
		t.Fatalf("projected = %d, want 2", len(projected))
	}
	// pending work starts after the active demand's end
	activeEnd := started.AddDate(0, 0, 3)
	if projected[0].Start.Before(activeEnd) {
		t.Fatalf("pending starts %v, before active end %v", projected[0].Start, activeEnd)
	}
	for i := 1; i < len(projected); i++ {
		if projected[i].Start.Before(projected[i-1].End) {
			t.Fatalf("slot %d overlaps previous", i)
		}
	}
}

func TestActiveIntervalNeverEndsInPast(t *testing.T) {
	started := now.AddDate(0, 0, -30)
	d := pending("d-late", 30, 8)
	d.Status = domain.StatusInExecution
	d.StartedAt = &started
	slots := projection.ForPerson([]domain.Demand{d}, "p-1", now, 8)
	if len(slots) != 1 {
		t.Fatalf("slots = %d", len(slots))
	}
	if slots[0].End.Before(now) {
		t.Fatalf("active end %v in the past", slots[0].End)
	}
}

func TestCompletedKeepsRecordedInterval(t *testing.T) {
	started := now.AddDate(0, 0, -10)
	finished := now.AddDate(0, 0, -5)
	d := pending("d-done", 12, 16)
	d.Status = domain.StatusCompleted
	d.StartedAt = &started
	d.FinishedAt = &finished
	slots := projection.ForPerson([]domain.Demand{d}, "p-1", now, 8)
	if len(slots) != 1 {
		t.Fatalf("slots = %d", len(slots))
	}
	if !slots[0].Start.Equal(started) || !slots[0].End.Equal(finished) {
		t.Fatalf("interval = [%v, %v]", slots[0].Start, slots[0].End)
	}
	if slots[0].Projected {
		t.Fatal("completed slot marked projected")
	}
}

func TestSubDayEffortGetsOneDayFloor(t *testing.T) {
	d := pending("d-small", 1, 2)
	slots := projection.ForPerson([]domain.Demand{d}, "p-1", now, 8)
	if got := slots[0].End.Sub(slots[0].Start); got != 24*time.Hour {
		t.Fatalf("duration = %v, want 24h", got)
	}
}

func TestArchivedExcluded(t *testing.T) {
	d := pending("d-arch", 1, 8)
	d.Status = domain.StatusArchived
	if slots := projection.ForPerson([]domain.Demand{d}, "p-1", now, 8); slots != nil {
		t.Fatalf("slots = %v, want none", slots)
	}
}

func TestPlanOmitsIdlePeople(t *testing.T) {
	people := []domain.Person{{ID: "p-1", Name: "Ana"}, {ID: "p-2", Name: "Bo"}}
	rows := projection.Plan([]domain.Demand{pending("d-1", 1, 8)}, people, now, 8)
	if len(rows) != 1 || rows[0].PersonID != "p-1" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestProjectionIsIdempotent(t *testing.T) {
	demands := []domain.Demand{pending("d-1", 2, 8), pending("d-2", 1, 16)}
	a := projection.ForPerson(demands, "p-1", now, 8)
	b := projection.ForPerson(demands, "p-1", now, 8)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			t.Fatalf("slot %d differs", i)
		}
	}
}
