// Package sqlite implements the persistence collaborator on an embedded
// SQLite database. Every write appends an audit event in the same
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"demandflow/internal/domain"
	"demandflow/internal/events"
	"demandflow/internal/store"
)

type Store struct {
	DB     *sql.DB
	Events events.Writer
	// ActorID is recorded on audit rows.
	ActorID string
}

func New(db *sql.DB) *Store {
	return &Store{DB: db, Events: events.Writer{DB: db}, ActorID: "local-user"}
}

var _ store.Store = (*Store)(nil)

// --- demands ---

const demandColumns = `id,title,description,person_id,coordination_id,requester_name,requester_area_id,category,type,status,complexity,effort_hours,agreed_deadline,created_at,started_at,finished_at,cancellation_reason,delay_justification,delivery_summary,is_priority,logs_json,history_json,status_timestamps_json`

func (s *Store) ListDemands(ctx context.Context) ([]domain.Demand, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+demandColumns+` FROM demands ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Demand
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CreateDemand(ctx context.Context, d domain.Demand) (domain.Demand, error) {
	args, err := demandArgs(d)
	if err != nil {
		return d, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO demands(`+demandColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...); err != nil {
		return d, fmt.Errorf("insert demand: %w", err)
	}
	if err := s.Events.Append(ctx, tx, "demand.created", "demand", d.ID, s.ActorID, events.EventPayload{"title": d.Title, "status": d.Status}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func (s *Store) UpdateDemand(ctx context.Context, d domain.Demand) (domain.Demand, error) {
	args, err := demandArgs(d)
	if err != nil {
		return d, err
	}
	// full-record replace keyed by id
	args = append(args[1:], d.ID)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE demands SET title=?,description=?,person_id=?,coordination_id=?,requester_name=?,requester_area_id=?,category=?,type=?,status=?,complexity=?,effort_hours=?,agreed_deadline=?,created_at=?,started_at=?,finished_at=?,cancellation_reason=?,delay_justification=?,delivery_summary=?,is_priority=?,logs_json=?,history_json=?,status_timestamps_json=? WHERE id=?`, args...)
	if err != nil {
		return d, fmt.Errorf("update demand: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return d, store.ErrNotFound
	}
	if err := s.Events.Append(ctx, tx, "demand.updated", "demand", d.ID, s.ActorID, events.EventPayload{"status": d.Status}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func (s *Store) DeleteDemand(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "demands", "demand", id)
}

func demandArgs(d domain.Demand) ([]any, error) {
	logsJSON, err := json.Marshal(d.Logs)
	if err != nil {
		return nil, fmt.Errorf("marshal logs: %w", err)
	}
	historyJSON, err := json.Marshal(d.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	if d.StatusTimestamps == nil {
		d.StatusTimestamps = map[domain.Status]time.Time{}
	}
	tsJSON, err := json.Marshal(d.StatusTimestamps)
	if err != nil {
		return nil, fmt.Errorf("marshal status timestamps: %w", err)
	}
	return []any{
		d.ID, d.Title, nullable(d.Description), d.PersonID, d.CoordinationID,
		nullable(d.RequesterName), nullable(d.RequesterAreaID), nullable(d.Category),
		string(d.Type), string(d.Status), string(d.Complexity), d.EffortHours,
		timePtr(d.AgreedDeadline), timeStr(d.CreatedAt), timePtr(d.StartedAt), timePtr(d.FinishedAt),
		nullable(d.CancellationReason), nullable(d.DelayJustification), nullable(d.DeliverySummary),
		boolInt(d.IsPriority), string(logsJSON), string(historyJSON), string(tsJSON),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDemand(row rowScanner) (domain.Demand, error) {
	var d domain.Demand
	var (
		description, requesterName, requesterAreaID, category sql.NullString
		agreedDeadline, createdAt, startedAt, finishedAt      sql.NullString
		cancellation, delay, summary                          sql.NullString
		priority                                              int
		logsJSON, historyJSON, tsJSON                         string
		typ, status, complexity                               string
	)
	err := row.Scan(&d.ID, &d.Title, &description, &d.PersonID, &d.CoordinationID,
		&requesterName, &requesterAreaID, &category, &typ, &status, &complexity, &d.EffortHours,
		&agreedDeadline, &createdAt, &startedAt, &finishedAt,
		&cancellation, &delay, &summary, &priority, &logsJSON, &historyJSON, &tsJSON)
	if err == sql.ErrNoRows {
		return d, store.ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Description = description.String
	d.RequesterName = requesterName.String
	d.RequesterAreaID = requesterAreaID.String
	d.Category = category.String
	d.Type = domain.DemandType(typ)
	d.Status = domain.Status(status)
	d.Complexity = domain.Complexity(complexity)
	d.CancellationReason = cancellation.String
	d.DelayJustification = delay.String
	d.DeliverySummary = summary.String
	d.IsPriority = priority != 0
	if d.CreatedAt, err = parseTime(createdAt.String); err != nil {
		return d, fmt.Errorf("demand %s created_at: %w", d.ID, err)
	}
	if d.AgreedDeadline, err = parseTimePtr(agreedDeadline); err != nil {
		return d, fmt.Errorf("demand %s agreed_deadline: %w", d.ID, err)
	}
	if d.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return d, fmt.Errorf("demand %s started_at: %w", d.ID, err)
	}
	if d.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return d, fmt.Errorf("demand %s finished_at: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(logsJSON), &d.Logs); err != nil {
		return d, fmt.Errorf("demand %s logs: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &d.History); err != nil {
		return d, fmt.Errorf("demand %s history: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(tsJSON), &d.StatusTimestamps); err != nil {
		return d, fmt.Errorf("demand %s status timestamps: %w", d.ID, err)
	}
	if d.Logs == nil {
		d.Logs = []domain.WorkflowEntry{}
	}
	if d.History == nil {
		d.History = []domain.HistoryEntry{}
	}
	return d, nil
}

// --- areas ---

func (s *Store) ListAreas(ctx context.Context) ([]domain.Area, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') FROM areas ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Area
	for rows.Next() {
		var a domain.Area
		if err := rows.Scan(&a.ID, &a.Name, &a.Description); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CreateArea(ctx context.Context, a domain.Area) (domain.Area, error) {
	err := s.insertRow(ctx, "area", a.ID, a.Name,
		`INSERT INTO areas(id,name,description) VALUES (?,?,?)`, a.ID, a.Name, nullable(a.Description))
	return a, err
}

func (s *Store) UpdateArea(ctx context.Context, a domain.Area) (domain.Area, error) {
	err := s.updateRow(ctx, "area", a.ID,
		`UPDATE areas SET name=?,description=? WHERE id=?`, a.Name, nullable(a.Description), a.ID)
	return a, err
}

func (s *Store) DeleteArea(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "areas", "area", id)
}

// --- coordinations ---

func (s *Store) ListCoordinations(ctx context.Context) ([]domain.Coordination, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') FROM coordinations ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Coordination
	for rows.Next() {
		var c domain.Coordination
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCoordination(ctx context.Context, c domain.Coordination) (domain.Coordination, error) {
	err := s.insertRow(ctx, "coordination", c.ID, c.Name,
		`INSERT INTO coordinations(id,name,description) VALUES (?,?,?)`, c.ID, c.Name, nullable(c.Description))
	return c, err
}

func (s *Store) UpdateCoordination(ctx context.Context, c domain.Coordination) (domain.Coordination, error) {
	err := s.updateRow(ctx, "coordination", c.ID,
		`UPDATE coordinations SET name=?,description=? WHERE id=?`, c.Name, nullable(c.Description), c.ID)
	return c, err
}

func (s *Store) DeleteCoordination(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "coordinations", "coordination", id)
}

// --- people ---

func (s *Store) ListPeople(ctx context.Context) ([]domain.Person, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,name,COALESCE(role,''),coordination_id FROM people ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Person
	for rows.Next() {
		var p domain.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.CoordinationID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	err := s.insertRow(ctx, "person", p.ID, p.Name,
		`INSERT INTO people(id,name,role,coordination_id) VALUES (?,?,?,?)`, p.ID, p.Name, nullable(p.Role), p.CoordinationID)
	return p, err
}

func (s *Store) UpdatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	err := s.updateRow(ctx, "person", p.ID,
		`UPDATE people SET name=?,role=?,coordination_id=? WHERE id=?`, p.Name, nullable(p.Role), p.CoordinationID, p.ID)
	return p, err
}

func (s *Store) DeletePerson(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "people", "person", id)
}

// --- categories ---

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,name FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	err := s.insertRow(ctx, "category", c.ID, c.Name,
		`INSERT INTO categories(id,name) VALUES (?,?)`, c.ID, c.Name)
	return c, err
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	err := s.updateRow(ctx, "category", c.ID,
		`UPDATE categories SET name=? WHERE id=?`, c.Name, c.ID)
	return c, err
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "categories", "category", id)
}

// --- sla configs ---

func (s *Store) ListSLAConfigs(ctx context.Context) ([]domain.SLAConfig, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,category_id,complexity,target_hours FROM sla_configs ORDER BY category_id, complexity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SLAConfig
	for rows.Next() {
		var c domain.SLAConfig
		var complexity string
		if err := rows.Scan(&c.ID, &c.CategoryID, &complexity, &c.TargetHours); err != nil {
			return nil, err
		}
		c.Complexity = domain.Complexity(complexity)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateSLAConfig(ctx context.Context, c domain.SLAConfig) (domain.SLAConfig, error) {
	err := s.insertRow(ctx, "sla_config", c.ID, c.CategoryID,
		`INSERT INTO sla_configs(id,category_id,complexity,target_hours) VALUES (?,?,?,?)`,
		c.ID, c.CategoryID, string(c.Complexity), c.TargetHours)
	return c, err
}

func (s *Store) UpdateSLAConfig(ctx context.Context, c domain.SLAConfig) (domain.SLAConfig, error) {
	err := s.updateRow(ctx, "sla_config", c.ID,
		`UPDATE sla_configs SET category_id=?,complexity=?,target_hours=? WHERE id=?`,
		c.CategoryID, string(c.Complexity), c.TargetHours, c.ID)
	return c, err
}

func (s *Store) DeleteSLAConfig(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "sla_configs", "sla_config", id)
}

// --- events ---

func (s *Store) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),COALESCE(actor_id,''),payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- helpers ---

func (s *Store) insertRow(ctx context.Context, kind, id, name, query string, args ...any) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	if err := s.Events.Append(ctx, tx, kind+".created", kind, id, s.ActorID, events.EventPayload{"name": name}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) updateRow(ctx context.Context, kind, id, query string, args ...any) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	if err := s.Events.Append(ctx, tx, kind+".updated", kind, id, s.ActorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) deleteRow(ctx context.Context, table, kind, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	if err := s.Events.Append(ctx, tx, kind+".deleted", kind, id, s.ActorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeStr(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
