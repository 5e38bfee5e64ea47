// Package demandflowsdk is the Go client for the demandflow HTTP API.
// It satisfies store.Store, so an engine can run against a remote server
// the same way it runs against the embedded database.
package demandflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"demandflow/internal/domain"
	"demandflow/internal/store"
)

// Client is a minimal demandflow HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

var _ store.Store = (*Client)(nil)

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// --- demands ---

func (c *Client) ListDemands(ctx context.Context) ([]domain.Demand, error) {
	var resp []domain.Demand
	err := c.do(ctx, http.MethodGet, "v0/demands", nil, &resp)
	return resp, err
}

// CreateDemand ships a full record to the import endpoint; the id is
// assigned by the caller, per the store contract.
func (c *Client) CreateDemand(ctx context.Context, d domain.Demand) (domain.Demand, error) {
	var resp domain.Demand
	err := c.do(ctx, http.MethodPost, "v0/demands/import", d, &resp)
	return resp, err
}

// UpdateDemand is a full-record replace.
func (c *Client) UpdateDemand(ctx context.Context, d domain.Demand) (domain.Demand, error) {
	var resp domain.Demand
	err := c.do(ctx, http.MethodPut, "v0/demands/"+url.PathEscape(d.ID), d, &resp)
	return resp, err
}

func (c *Client) DeleteDemand(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/demands/"+url.PathEscape(id), nil, nil)
}

// SetStatus transitions a demand. Justifications travel with the call.
func (c *Client) SetStatus(ctx context.Context, id string, status domain.Status, justification, deliverySummary, delayJustification string) (domain.Demand, error) {
	body := map[string]any{
		"status":              status,
		"justification":       justification,
		"delivery_summary":    deliverySummary,
		"delay_justification": delayJustification,
	}
	var resp domain.Demand
	err := c.do(ctx, http.MethodPost, "v0/demands/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// Archive soft-deletes a demand with a justification.
func (c *Client) Archive(ctx context.Context, id, justification string) (domain.Demand, error) {
	body := map[string]any{"justification": justification}
	var resp domain.Demand
	err := c.do(ctx, http.MethodPost, "v0/demands/"+url.PathEscape(id)+"/archive", body, &resp)
	return resp, err
}

// Restore returns an archived demand to the queue.
func (c *Client) Restore(ctx context.Context, id string) (domain.Demand, error) {
	var resp domain.Demand
	err := c.do(ctx, http.MethodPost, "v0/demands/"+url.PathEscape(id)+"/restore", struct{}{}, &resp)
	return resp, err
}

// TogglePriority flips a demand's priority flag.
func (c *Client) TogglePriority(ctx context.Context, id string) (domain.Demand, error) {
	var resp domain.Demand
	err := c.do(ctx, http.MethodPost, "v0/demands/"+url.PathEscape(id)+"/priority", struct{}{}, &resp)
	return resp, err
}

// --- reference entities ---

func (c *Client) ListAreas(ctx context.Context) ([]domain.Area, error) {
	var resp []domain.Area
	err := c.do(ctx, http.MethodGet, "v0/areas", nil, &resp)
	return resp, err
}

func (c *Client) CreateArea(ctx context.Context, a domain.Area) (domain.Area, error) {
	var resp domain.Area
	err := c.do(ctx, http.MethodPost, "v0/areas", a, &resp)
	return resp, err
}

func (c *Client) UpdateArea(ctx context.Context, a domain.Area) (domain.Area, error) {
	var resp domain.Area
	err := c.do(ctx, http.MethodPatch, "v0/areas/"+url.PathEscape(a.ID), a, &resp)
	return resp, err
}

func (c *Client) DeleteArea(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/areas/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListCoordinations(ctx context.Context) ([]domain.Coordination, error) {
	var resp []domain.Coordination
	err := c.do(ctx, http.MethodGet, "v0/coordinations", nil, &resp)
	return resp, err
}

func (c *Client) CreateCoordination(ctx context.Context, co domain.Coordination) (domain.Coordination, error) {
	var resp domain.Coordination
	err := c.do(ctx, http.MethodPost, "v0/coordinations", co, &resp)
	return resp, err
}

func (c *Client) UpdateCoordination(ctx context.Context, co domain.Coordination) (domain.Coordination, error) {
	var resp domain.Coordination
	err := c.do(ctx, http.MethodPatch, "v0/coordinations/"+url.PathEscape(co.ID), co, &resp)
	return resp, err
}

func (c *Client) DeleteCoordination(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/coordinations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListPeople(ctx context.Context) ([]domain.Person, error) {
	var resp []domain.Person
	err := c.do(ctx, http.MethodGet, "v0/people", nil, &resp)
	return resp, err
}

func (c *Client) CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	var resp domain.Person
	err := c.do(ctx, http.MethodPost, "v0/people", p, &resp)
	return resp, err
}

func (c *Client) UpdatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	var resp domain.Person
	err := c.do(ctx, http.MethodPatch, "v0/people/"+url.PathEscape(p.ID), p, &resp)
	return resp, err
}

func (c *Client) DeletePerson(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/people/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var resp []domain.Category
	err := c.do(ctx, http.MethodGet, "v0/categories", nil, &resp)
	return resp, err
}

func (c *Client) CreateCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	var resp domain.Category
	err := c.do(ctx, http.MethodPost, "v0/categories", cat, &resp)
	return resp, err
}

func (c *Client) UpdateCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	var resp domain.Category
	err := c.do(ctx, http.MethodPatch, "v0/categories/"+url.PathEscape(cat.ID), cat, &resp)
	return resp, err
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/categories/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListSLAConfigs(ctx context.Context) ([]domain.SLAConfig, error) {
	var resp []domain.SLAConfig
	err := c.do(ctx, http.MethodGet, "v0/sla-configs", nil, &resp)
	return resp, err
}

func (c *Client) CreateSLAConfig(ctx context.Context, s domain.SLAConfig) (domain.SLAConfig, error) {
	var resp domain.SLAConfig
	err := c.do(ctx, http.MethodPost, "v0/sla-configs", s, &resp)
	return resp, err
}

func (c *Client) UpdateSLAConfig(ctx context.Context, s domain.SLAConfig) (domain.SLAConfig, error) {
	var resp domain.SLAConfig
	err := c.do(ctx, http.MethodPatch, "v0/sla-configs/"+url.PathEscape(s.ID), s, &resp)
	return resp, err
}

func (c *Client) DeleteSLAConfig(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/sla-configs/"+url.PathEscape(id), nil, nil)
}

// --- events ---

// ListEvents returns recent audit events, newest first.
func (c *Client) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []domain.Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", endpoint, store.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
