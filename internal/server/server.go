// Package server exposes the demand engine over HTTP with an OpenAPI
// description. Same-shape routes back the Go SDK client.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"demandflow/internal/capacity"
	"demandflow/internal/domain"
	"demandflow/internal/engine"
	"demandflow/internal/interval"
	"demandflow/internal/projection"
	"demandflow/internal/sla"
	"demandflow/internal/store"
	"demandflow/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"demand 42: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the demandflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Demandflow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDemands(group, cfg.Engine)
	registerViews(group, cfg.Engine)
	registerReference(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve workflow.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, workflow.ErrStateConflict) {
		return newAPIError(http.StatusConflict, "state_conflict", err.Error(), nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "state_conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Demandflow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// CreateDemandRequest mirrors engine.CreateDemandOptions on the wire.
type CreateDemandRequest struct {
	Title           string     `json:"title" minLength:"3"`
	Description     string     `json:"description,omitempty"`
	PersonID        string     `json:"person_id"`
	CoordinationID  string     `json:"coordination_id"`
	RequesterName   string     `json:"requester_name,omitempty"`
	RequesterAreaID string     `json:"requester_area_id,omitempty"`
	Category        string     `json:"category,omitempty"`
	Type            string     `json:"type,omitempty" enum:"system,task,"`
	Complexity      string     `json:"complexity,omitempty" enum:"low,medium,high,"`
	EffortHours     float64    `json:"effort_hours" minimum:"0" maximum:"10000"`
	AgreedDeadline  *time.Time `json:"agreed_deadline,omitempty" format:"date-time"`
	IsPriority      bool       `json:"is_priority,omitempty"`
}

// UpdateDemandRequest is a partial edit; absent fields are unchanged.
type UpdateDemandRequest struct {
	Title           *string            `json:"title,omitempty"`
	Description     *string            `json:"description,omitempty"`
	PersonID        *string            `json:"person_id,omitempty"`
	CoordinationID  *string            `json:"coordination_id,omitempty"`
	RequesterName   *string            `json:"requester_name,omitempty"`
	RequesterAreaID *string            `json:"requester_area_id,omitempty"`
	Category        *string            `json:"category,omitempty"`
	Type            *domain.DemandType `json:"type,omitempty"`
	Complexity      *domain.Complexity `json:"complexity,omitempty"`
	EffortHours     *float64           `json:"effort_hours,omitempty"`
	AgreedDeadline  *time.Time         `json:"agreed_deadline,omitempty" format:"date-time"`
	ClearDeadline   bool               `json:"clear_deadline,omitempty"`
}

// StatusRequest carries the transition target and its justifications.
type StatusRequest struct {
	Status             domain.Status `json:"status"`
	Justification      string        `json:"justification,omitempty"`
	DeliverySummary    string        `json:"delivery_summary,omitempty"`
	DelayJustification string        `json:"delay_justification,omitempty"`
}

type demandBody struct {
	Body domain.Demand `json:"body"`
}

func registerDemands(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-demands",
		Method:      http.MethodGet,
		Path:        "/demands",
		Summary:     "List demands",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		PersonID string `query:"person_id"`
	}) (*struct {
		Body []domain.Demand `json:"body"`
	}, error) {
		out := []domain.Demand{}
		for _, d := range e.Demands() {
			if input.Status != "" && string(d.Status) != input.Status {
				continue
			}
			if input.PersonID != "" && d.PersonID != input.PersonID {
				continue
			}
			out = append(out, d)
		}
		return &struct {
			Body []domain.Demand `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-demand",
		Method:      http.MethodGet,
		Path:        "/demands/{id}",
		Summary:     "Get demand",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*demandBody, error) {
		d, err := e.Demand(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-demand",
		Method:        http.MethodPost,
		Path:          "/demands",
		Summary:       "Create demand",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateDemandRequest `json:"body"`
	}) (*demandBody, error) {
		d, err := e.CreateDemand(ctx, engine.CreateDemandOptions{
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			PersonID:        input.Body.PersonID,
			CoordinationID:  input.Body.CoordinationID,
			RequesterName:   input.Body.RequesterName,
			RequesterAreaID: input.Body.RequesterAreaID,
			Category:        input.Body.Category,
			Type:            domain.DemandType(input.Body.Type),
			Complexity:      domain.Complexity(input.Body.Complexity),
			EffortHours:     input.Body.EffortHours,
			AgreedDeadline:  input.Body.AgreedDeadline,
			IsPriority:      input.Body.IsPriority,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-demand",
		Method:      http.MethodPatch,
		Path:        "/demands/{id}",
		Summary:     "Update demand",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateDemandRequest `json:"body"`
	}) (*demandBody, error) {
		d, err := e.UpdateDemand(ctx, input.ID, engine.UpdateDemandOptions{
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			PersonID:        input.Body.PersonID,
			CoordinationID:  input.Body.CoordinationID,
			RequesterName:   input.Body.RequesterName,
			RequesterAreaID: input.Body.RequesterAreaID,
			Category:        input.Body.Category,
			Type:            input.Body.Type,
			Complexity:      input.Body.Complexity,
			EffortHours:     input.Body.EffortHours,
			AgreedDeadline:  input.Body.AgreedDeadline,
			ClearDeadline:   input.Body.ClearDeadline,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	// Record-style endpoints back the SDK's store.Store conformance:
	// the caller supplies the full record, ids included.
	huma.Register(api, huma.Operation{
		OperationID:   "import-demand",
		Method:        http.MethodPost,
		Path:          "/demands/import",
		Summary:       "Create demand from a full record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Demand `json:"body"`
	}) (*demandBody, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		d, err := e.Store.CreateDemand(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Refresh(ctx); err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-demand",
		Method:      http.MethodPut,
		Path:        "/demands/{id}",
		Summary:     "Replace demand record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body domain.Demand `json:"body"`
	}) (*demandBody, error) {
		input.Body.ID = input.ID
		d, err := e.Store.UpdateDemand(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Refresh(ctx); err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-demand",
		Method:      http.MethodDelete,
		Path:        "/demands/{id}",
		Summary:     "Delete demand permanently",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteDemand(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-demand-status",
		Method:      http.MethodPost,
		Path:        "/demands/{id}/status",
		Summary:     "Transition demand status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*demandBody, error) {
		d, err := e.ChangeStatus(ctx, input.ID, input.Body.Status, engine.StatusOptions{
			Justification:      input.Body.Justification,
			DeliverySummary:    input.Body.DeliverySummary,
			DelayJustification: input.Body.DelayJustification,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-demand",
		Method:      http.MethodPost,
		Path:        "/demands/{id}/advance",
		Summary:     "Step demand to the next lifecycle state",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*demandBody, error) {
		d, err := e.Advance(ctx, input.ID, engine.StatusOptions{
			DeliverySummary:    input.Body.DeliverySummary,
			DelayJustification: input.Body.DelayJustification,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retreat-demand",
		Method:      http.MethodPost,
		Path:        "/demands/{id}/retreat",
		Summary:     "Step demand to the previous lifecycle state",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*demandBody, error) {
		d, err := e.Retreat(ctx, input.ID, engine.StatusOptions{})
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-demand",
		Method:      http.MethodPost,
		Path:        "/demands/{id}/archive",
		Summary:     "Archive demand",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Justification string `json:"justification"`
		} `json:"body"`
	}) (*demandBody, error) {
		d, err := e.Archive(ctx, input.ID, input.Body.Justification)
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-demand",
		Method:      http.MethodPost,
		Path:        "/demands/{id}/restore",
		Summary:     "Restore archived demand to the queue",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*demandBody, error) {
		d, err := e.Restore(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-demand-priority",
		Method:      http.MethodPost,
		Path:        "/demands/{id}/priority",
		Summary:     "Toggle demand priority flag",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*demandBody, error) {
		d, err := e.TogglePriority(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &demandBody{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "demand-sla",
		Method:      http.MethodGet,
		Path:        "/demands/{id}/sla",
		Summary:     "Evaluate demand SLA",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body sla.Result `json:"body"`
	}, error) {
		res, err := e.EvaluateSLA(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body sla.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerViews(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "projection",
		Method:      http.MethodGet,
		Path:        "/views/projection",
		Summary:     "FIFO schedule projection per assignee",
	}, func(ctx context.Context, input *struct {
		PersonID string `query:"person_id"`
	}) (*struct {
		Body []projection.Row `json:"body"`
	}, error) {
		rows := e.Projection()
		if input.PersonID != "" {
			filtered := rows[:0]
			for _, r := range rows {
				if r.PersonID == input.PersonID {
					filtered = append(filtered, r)
				}
			}
			rows = filtered
		}
		if rows == nil {
			rows = []projection.Row{}
		}
		return &struct {
			Body []projection.Row `json:"body"`
		}{Body: rows}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "allocation",
		Method:      http.MethodGet,
		Path:        "/views/allocation",
		Summary:     "Capacity allocation over a window",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" doc:"Window start, RFC 3339 or YYYY-MM-DD"`
		To   string `query:"to" doc:"Window end, RFC 3339 or YYYY-MM-DD"`
	}) (*struct {
		Body capacity.Report `json:"body"`
	}, error) {
		window, err := parseWindow(input.From, input.To)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body capacity.Report `json:"body"`
		}{Body: e.Allocation(window)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "heatmap",
		Method:      http.MethodGet,
		Path:        "/views/heatmap",
		Summary:     "Weekly load heatmap",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From string `query:"from"`
		To   string `query:"to"`
	}) (*struct {
		Body capacity.Heatmap `json:"body"`
	}, error) {
		span, err := parseWindow(input.From, input.To)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body capacity.Heatmap `json:"body"`
		}{Body: e.Heatmap(span)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delayed",
		Method:      http.MethodGet,
		Path:        "/views/delayed",
		Summary:     "Breached and at-risk demands",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.DelayedDemand `json:"body"`
	}, error) {
		out := e.Delayed()
		if out == nil {
			out = []engine.DelayedDemand{}
		}
		return &struct {
			Body []engine.DelayedDemand `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "metrics",
		Method:      http.MethodGet,
		Path:        "/views/metrics",
		Summary:     "Flow metrics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Metrics `json:"body"`
	}, error) {
		return &struct {
			Body engine.Metrics `json:"body"`
		}{Body: e.ComputeMetrics()}, nil
	})
}

func parseWindow(from, to string) (interval.Interval, error) {
	if from == "" && to == "" {
		return interval.Interval{}, nil
	}
	start, err := parseDay(from)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("invalid from: %w", err)
	}
	end, err := parseDay(to)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("invalid to: %w", err)
	}
	if !end.After(start) {
		return interval.Interval{}, fmt.Errorf("invalid window: to must be after from")
	}
	return interval.Interval{Start: start, End: end}, nil
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit event log, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Events(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
