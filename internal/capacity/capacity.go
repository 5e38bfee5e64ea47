// Package capacity buckets demanded load into time windows per person and
// per coordination, against a declared capacity.
//
// Load here is demanded load, not a conflict-free schedule: each demand
// contributes its naive interval (startedAt or createdAt, for its effort
// duration) independently, so overlapping demands for one person stack.
// The FIFO projection simulator answers the serialized-schedule question;
// the two views are intentionally distinct algorithms.
package capacity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"demandflow/internal/domain"
	"demandflow/internal/interval"
)

// Params are the configuration-collaborator values the aggregations are
// parameterized with.
type Params struct {
	DayHours     float64
	MinimumHours float64
	WeeklyHours  float64
}

// LoadStatus classifies a load/capacity pair for the allocation view.
type LoadStatus string

const (
	LoadNormal     LoadStatus = "normal"
	LoadHigh       LoadStatus = "high"
	LoadOverloaded LoadStatus = "overloaded"
)

// PersonLoad is one person's allocation over a window.
type PersonLoad struct {
	PersonID         string     `json:"person_id"`
	Name             string     `json:"name"`
	CoordinationID   string     `json:"coordination_id"`
	CoordinationName string     `json:"coordination_name,omitempty"`
	CapacityHours    float64    `json:"capacity_hours"`
	LoadHours        float64    `json:"load_hours"`
	AvailableHours   float64    `json:"available_hours"`
	Utilization      int        `json:"utilization"`
	Status           LoadStatus `json:"status"`
}

// CoordinationLoad sums constituent people's load and capacity before
// computing the ratio; it is not an average of per-person ratios.
type CoordinationLoad struct {
	CoordinationID string     `json:"coordination_id"`
	Name           string     `json:"name"`
	CapacityHours  float64    `json:"capacity_hours"`
	LoadHours      float64    `json:"load_hours"`
	Utilization    int        `json:"utilization"`
	Status         LoadStatus `json:"status"`
}

// Report is the dynamic-range allocation view: capacity derived from the
// window's working days.
type Report struct {
	Window        interval.Interval  `json:"-"`
	WindowStart   time.Time          `json:"window_start" format:"date-time"`
	WindowEnd     time.Time          `json:"window_end" format:"date-time"`
	CapacityHours float64            `json:"capacity_hours"`
	People        []PersonLoad       `json:"people"`
	Coordinations []CoordinationLoad `json:"coordinations"`
}

// Allocation reports per-person and per-coordination utilization for an
// arbitrary window. Capacity is workingDays x DayHours with a MinimumHours
// floor for degenerate windows.
func Allocation(demands []domain.Demand, people []domain.Person, coordinations []domain.Coordination, window interval.Interval, p Params) Report {
	capHours := float64(interval.WorkingDays(window.Start, window.End)) * p.DayHours
	if capHours < p.MinimumHours {
		capHours = p.MinimumHours
	}
	coordName := map[string]string{}
	for _, c := range coordinations {
		coordName[c.ID] = c.Name
	}

	rep := Report{Window: window, WindowStart: window.Start, WindowEnd: window.End, CapacityHours: capHours}
	byCoord := map[string]*CoordinationLoad{}
	for _, person := range people {
		load := math.Round(personLoad(demands, person.ID, window, p.DayHours))
		row := PersonLoad{
			PersonID:         person.ID,
			Name:             person.Name,
			CoordinationID:   person.CoordinationID,
			CoordinationName: coordName[person.CoordinationID],
			CapacityHours:    capHours,
			LoadHours:        load,
			AvailableHours:   math.Max(0, capHours-load),
			Utilization:      utilization(load, capHours),
			Status:           classify(load, capHours),
		}
		rep.People = append(rep.People, row)

		cl, ok := byCoord[person.CoordinationID]
		if !ok {
			cl = &CoordinationLoad{CoordinationID: person.CoordinationID, Name: coordName[person.CoordinationID]}
			byCoord[person.CoordinationID] = cl
		}
		cl.LoadHours += load
		cl.CapacityHours += capHours
	}
	sort.SliceStable(rep.People, func(i, j int) bool {
		return rep.People[i].Utilization > rep.People[j].Utilization
	})

	for _, cl := range byCoord {
		cl.Utilization = utilization(cl.LoadHours, cl.CapacityHours)
		cl.Status = classify(cl.LoadHours, cl.CapacityHours)
		rep.Coordinations = append(rep.Coordinations, *cl)
	}
	sort.SliceStable(rep.Coordinations, func(i, j int) bool {
		return rep.Coordinations[i].Utilization > rep.Coordinations[j].Utilization
	})
	return rep
}

// personLoad sums the hours of every loaded demand's interval that fall
// inside the window. Queued, in-execution and validation demands count;
// their intervals deliberately ignore the projection cursor.
func personLoad(demands []domain.Demand, personID string, window interval.Interval, dayHours float64) float64 {
	total := 0.0
	for _, d := range demands {
		if d.PersonID != personID || !loaded(d.Status) {
			continue
		}
		total += interval.OverlapHours(demandInterval(d, dayHours), window, dayHours)
	}
	return total
}

func loaded(s domain.Status) bool {
	return s == domain.StatusQueued || s == domain.StatusInExecution || s == domain.StatusValidation
}

// demandInterval is the naive per-demand interval shared with the
// projection simulator's step 1: start at startedAt (or createdAt) and run
// for the effort duration with a one-day floor.
func demandInterval(d domain.Demand, dayHours float64) interval.Interval {
	start := d.CreatedAt
	if d.StartedAt != nil {
		start = *d.StartedAt
	}
	days := d.EffortHours / dayHours
	if days < 1 {
		days = 1
	}
	return interval.Interval{Start: start, End: start.Add(time.Duration(days * 24 * float64(time.Hour)))}
}

func utilization(load, capHours float64) int {
	if capHours <= 0 {
		return 0
	}
	return int(math.Round(math.Min(100, load/capHours*100)))
}

func classify(load, capHours float64) LoadStatus {
	switch {
	case load > capHours:
		return LoadOverloaded
	case load > capHours*0.8:
		return LoadHigh
	default:
		return LoadNormal
	}
}

// Band classifies a heatmap cell's load/capacity ratio.
type Band string

const (
	BandEmpty      Band = "empty"
	BandLow        Band = "low"
	BandOptimal    Band = "optimal"
	BandHigh       Band = "high"
	BandOverloaded Band = "overloaded"
)

// BandFor maps a ratio to its heatmap band.
func BandFor(load, capHours float64) Band {
	if capHours <= 0 || load == 0 {
		return BandEmpty
	}
	ratio := load / capHours
	switch {
	case ratio < 0.5:
		return BandLow
	case ratio < 0.9:
		return BandOptimal
	case ratio <= 1.1:
		return BandHigh
	default:
		return BandOverloaded
	}
}

// Week is one 7-day heatmap bucket.
type Week struct {
	Label string    `json:"label"`
	Start time.Time `json:"start" format:"date-time"`
	End   time.Time `json:"end" format:"date-time"`
}

// HeatmapPersonRow is a person's weekly load series against the fixed
// weekly capacity.
type HeatmapPersonRow struct {
	PersonID      string    `json:"person_id"`
	Name          string    `json:"name"`
	CapacityHours float64   `json:"capacity_hours"`
	Loads         []float64 `json:"loads"`
	Bands         []Band    `json:"bands"`
}

// HeatmapCoordRow rolls a coordination's people up per week.
type HeatmapCoordRow struct {
	CoordinationID string             `json:"coordination_id"`
	Name           string             `json:"name"`
	CapacityHours  float64            `json:"capacity_hours"`
	Loads          []float64          `json:"loads"`
	Bands          []Band             `json:"bands"`
	People         []HeatmapPersonRow `json:"people"`
}

// Heatmap is the fixed-weekly-bucket load view: a time series per person,
// rolled up per coordination, with a grand-total row across all of them.
// Its capacity model (WeeklyHours per person) intentionally does not agree
// numerically with the dynamic-range Report.
type Heatmap struct {
	Weeks          []Week            `json:"weeks"`
	Coordinations  []HeatmapCoordRow `json:"coordinations"`
	TotalCapacity  float64           `json:"total_capacity"`
	Totals         []float64         `json:"totals"`
	TotalBands     []Band            `json:"total_bands"`
	PeopleIncluded int               `json:"people_included"`
}

// WeeklyHeatmap repeats the window aggregation once per 7-day bucket over
// the span. Coordinations without people are omitted.
func WeeklyHeatmap(demands []domain.Demand, people []domain.Person, coordinations []domain.Coordination, span interval.Interval, p Params) Heatmap {
	var hm Heatmap
	for cur := span.Start; !cur.After(span.End); cur = cur.AddDate(0, 0, 7) {
		hm.Weeks = append(hm.Weeks, Week{
			Label: fmt.Sprintf("%d/%d", cur.Day(), int(cur.Month())),
			Start: cur,
			End:   cur.AddDate(0, 0, 7),
		})
	}
	n := len(hm.Weeks)
	hm.Totals = make([]float64, n)

	for _, c := range coordinations {
		row := HeatmapCoordRow{CoordinationID: c.ID, Name: c.Name, Loads: make([]float64, n)}
		for _, person := range people {
			if person.CoordinationID != c.ID {
				continue
			}
			pr := HeatmapPersonRow{
				PersonID:      person.ID,
				Name:          person.Name,
				CapacityHours: p.WeeklyHours,
				Loads:         make([]float64, n),
				Bands:         make([]Band, n),
			}
			for i, w := range hm.Weeks {
				load := math.Round(personLoad(demands, person.ID, interval.Interval{Start: w.Start, End: w.End}, p.DayHours))
				pr.Loads[i] = load
				pr.Bands[i] = BandFor(load, p.WeeklyHours)
				row.Loads[i] += load
				hm.Totals[i] += load
			}
			row.People = append(row.People, pr)
		}
		if len(row.People) == 0 {
			continue
		}
		row.CapacityHours = p.WeeklyHours * float64(len(row.People))
		row.Bands = make([]Band, n)
		for i, load := range row.Loads {
			row.Bands[i] = BandFor(load, row.CapacityHours)
		}
		hm.PeopleIncluded += len(row.People)
		hm.Coordinations = append(hm.Coordinations, row)
	}

	hm.TotalCapacity = p.WeeklyHours * float64(hm.PeopleIncluded)
	hm.TotalBands = make([]Band, n)
	for i, load := range hm.Totals {
		hm.TotalBands[i] = BandFor(load, hm.TotalCapacity)
	}
	return hm
}
