package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"demandflow/internal/config"
	"demandflow/internal/db"
	"demandflow/internal/domain"
	"demandflow/internal/engine"
	"demandflow/internal/migrate"
	"demandflow/internal/store/sqlite"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(sqlite.New(conn), config.Default())
	e.Actor = "tester"
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestDemandLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands", map[string]any{
		"title":        "Ship billing feed",
		"effort_hours": 16,
	})
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", createRes.StatusCode, string(data))
	}
	var created domain.Demand
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal demand: %v", err)
	}
	if created.Status != domain.StatusIntake || created.Type != domain.TypeTask {
		t.Fatalf("created = %+v", created)
	}

	for _, target := range []string{"qualification", "queued", "in_execution", "validation"} {
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands/"+created.ID+"/status", map[string]any{
			"status": target,
		})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("to %s: %d %s", target, res.StatusCode, string(body))
		}
	}

	doneRes, doneBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands/"+created.ID+"/status", map[string]any{
		"status":           "completed",
		"delivery_summary": "shipped",
	})
	if doneRes.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", doneRes.StatusCode, string(doneBody))
	}
	var done domain.Demand
	if err := json.Unmarshal(doneBody, &done); err != nil {
		t.Fatalf("unmarshal done: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.FinishedAt == nil {
		t.Fatalf("done = %+v", done)
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/demands/"+created.ID, nil)
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", getRes.StatusCode, string(getBody))
	}
}

func TestValidationAndConflictEnvelopes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands", map[string]any{
		"title": "Retire legacy queue",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created domain.Demand
	_ = json.Unmarshal(data, &created)

	// archiving without justification is rejected with the field in details
	archRes, archBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands/"+created.ID+"/archive", map[string]any{})
	if archRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", archRes.StatusCode, string(archBody))
	}
	var apiErr apiErrorBody
	if err := json.Unmarshal(archBody, &apiErr); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if apiErr.Code != "bad_request" || apiErr.Details["field"] != "justification" {
		t.Fatalf("error = %+v", apiErr)
	}

	// repeating the current status is a conflict
	confRes, confBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands/"+created.ID+"/status", map[string]any{
		"status": "intake",
	})
	if confRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", confRes.StatusCode, string(confBody))
	}
	_ = json.Unmarshal(confBody, &apiErr)
	if apiErr.Code != "state_conflict" {
		t.Fatalf("error = %+v", apiErr)
	}

	missRes, missBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/demands/nope", nil)
	if missRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", missRes.StatusCode, string(missBody))
	}
	_ = json.Unmarshal(missBody, &apiErr)
	if apiErr.Code != "not_found" {
		t.Fatalf("error = %+v", apiErr)
	}
}

func TestArchiveRestoreAndDelete(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands", map[string]any{
		"title": "Cancelable request",
	})
	var created domain.Demand
	_ = json.Unmarshal(data, &created)

	archRes, archBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands/"+created.ID+"/archive", map[string]any{
		"justification": "requester withdrew",
	})
	if archRes.StatusCode != http.StatusOK {
		t.Fatalf("archive: %d %s", archRes.StatusCode, string(archBody))
	}
	var archived domain.Demand
	_ = json.Unmarshal(archBody, &archived)
	if archived.Status != domain.StatusArchived || archived.CancellationReason != "requester withdrew" {
		t.Fatalf("archived = %+v", archived)
	}

	restRes, restBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands/"+created.ID+"/restore", nil)
	if restRes.StatusCode != http.StatusOK {
		t.Fatalf("restore: %d %s", restRes.StatusCode, string(restBody))
	}
	var restored domain.Demand
	_ = json.Unmarshal(restBody, &restored)
	if restored.Status != domain.StatusQueued || restored.CancellationReason != "" {
		t.Fatalf("restored = %+v", restored)
	}

	delReq, err := http.NewRequest(http.MethodDelete, srv.URL+"/v0/demands/"+created.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	delRes, err := client.Do(delReq)
	if err != nil {
		t.Fatal(err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", delRes.StatusCode)
	}
	getRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/demands/"+created.ID, nil)
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %d", getRes.StatusCode)
	}
}

func TestReferenceCRUDOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/coordinations", map[string]any{
		"name": "Platform",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create coordination: %d %s", res.StatusCode, string(data))
	}
	var coord domain.Coordination
	_ = json.Unmarshal(data, &coord)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/people", map[string]any{
		"name":            "Ana",
		"coordination_id": coord.ID,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create person: %d %s", res.StatusCode, string(data))
	}
	var person domain.Person
	_ = json.Unmarshal(data, &person)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/people/"+person.ID, map[string]any{
		"id":              person.ID,
		"name":            "Ana B",
		"coordination_id": coord.ID,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update person: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/people", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list people: %d %s", res.StatusCode, string(data))
	}
	var people []domain.Person
	if err := json.Unmarshal(data, &people); err != nil {
		t.Fatalf("unmarshal people: %v", err)
	}
	if len(people) != 1 || people[0].Name != "Ana B" {
		t.Fatalf("people = %+v", people)
	}

	// names are required
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/areas", map[string]any{})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestViewsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/coordinations", map[string]any{"name": "Platform"})
	var coord domain.Coordination
	_ = json.Unmarshal(data, &coord)
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/people", map[string]any{"name": "Ana", "coordination_id": coord.ID})
	var person domain.Person
	_ = json.Unmarshal(data, &person)

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands", map[string]any{
		"title":           "Queued work",
		"person_id":       person.ID,
		"coordination_id": coord.ID,
		"effort_hours":    16,
	})
	var created domain.Demand
	_ = json.Unmarshal(data, &created)
	for _, target := range []string{"qualification", "queued"} {
		doJSON(t, client, http.MethodPost, srv.URL+"/v0/demands/"+created.ID+"/status", map[string]any{"status": target})
	}

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/views/projection", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("projection: %d %s", res.StatusCode, string(body))
	}

	from := time.Now().UTC().Format("2006-01-02")
	to := time.Now().UTC().Add(28 * 24 * time.Hour).Format("2006-01-02")
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/views/allocation?from="+from+"&to="+to, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("allocation: %d %s", res.StatusCode, string(body))
	}
	var report struct {
		People []struct {
			PersonID  string  `json:"person_id"`
			LoadHours float64 `json:"load_hours"`
		} `json:"people"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("unmarshal allocation: %v", err)
	}
	if len(report.People) != 1 || report.People[0].LoadHours == 0 {
		t.Fatalf("allocation = %+v", report)
	}

	// reversed window is rejected
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/views/allocation?from="+to+"&to="+from, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("reversed window: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/views/heatmap", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("heatmap: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/views/metrics", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=10", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(body))
	}
}
