package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"demandflow/internal/domain"
	"demandflow/internal/engine"
)

// registerReference exposes CRUD for the reference entities: areas,
// coordinations, people, categories and SLA rules.
func registerReference(api huma.API, e *engine.Engine) {
	registerAreas(api, e)
	registerCoordinations(api, e)
	registerPeople(api, e)
	registerCategories(api, e)
	registerSLAConfigs(api, e)
}

type idPath struct {
	ID string `path:"id"`
}

func registerAreas(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-areas",
		Method:      http.MethodGet,
		Path:        "/areas",
		Summary:     "List areas",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Area `json:"body"`
	}, error) {
		snap := e.Snapshot()
		out := snap.Areas
		if out == nil {
			out = []domain.Area{}
		}
		return &struct {
			Body []domain.Area `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-area",
		Method:        http.MethodPost,
		Path:          "/areas",
		Summary:       "Create area",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Area `json:"body"`
	}) (*struct {
		Body domain.Area `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		out, err := e.CreateArea(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Area `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-area",
		Method:      http.MethodPatch,
		Path:        "/areas/{id}",
		Summary:     "Update area",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body domain.Area `json:"body"`
	}) (*struct {
		Body domain.Area `json:"body"`
	}, error) {
		input.Body.ID = input.ID
		out, err := e.UpdateArea(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Area `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-area",
		Method:      http.MethodDelete,
		Path:        "/areas/{id}",
		Summary:     "Delete area",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := e.DeleteArea(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCoordinations(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-coordinations",
		Method:      http.MethodGet,
		Path:        "/coordinations",
		Summary:     "List coordinations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Coordination `json:"body"`
	}, error) {
		snap := e.Snapshot()
		out := snap.Coordinations
		if out == nil {
			out = []domain.Coordination{}
		}
		return &struct {
			Body []domain.Coordination `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-coordination",
		Method:        http.MethodPost,
		Path:          "/coordinations",
		Summary:       "Create coordination",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Coordination `json:"body"`
	}) (*struct {
		Body domain.Coordination `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		out, err := e.CreateCoordination(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Coordination `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-coordination",
		Method:      http.MethodPatch,
		Path:        "/coordinations/{id}",
		Summary:     "Update coordination",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body domain.Coordination `json:"body"`
	}) (*struct {
		Body domain.Coordination `json:"body"`
	}, error) {
		input.Body.ID = input.ID
		out, err := e.UpdateCoordination(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Coordination `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-coordination",
		Method:      http.MethodDelete,
		Path:        "/coordinations/{id}",
		Summary:     "Delete coordination",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := e.DeleteCoordination(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPeople(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-people",
		Method:      http.MethodGet,
		Path:        "/people",
		Summary:     "List people",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Person `json:"body"`
	}, error) {
		snap := e.Snapshot()
		out := snap.People
		if out == nil {
			out = []domain.Person{}
		}
		return &struct {
			Body []domain.Person `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-person",
		Method:        http.MethodPost,
		Path:          "/people",
		Summary:       "Create person",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Person `json:"body"`
	}) (*struct {
		Body domain.Person `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		out, err := e.CreatePerson(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Person `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-person",
		Method:      http.MethodPatch,
		Path:        "/people/{id}",
		Summary:     "Update person",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body domain.Person `json:"body"`
	}) (*struct {
		Body domain.Person `json:"body"`
	}, error) {
		input.Body.ID = input.ID
		out, err := e.UpdatePerson(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Person `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-person",
		Method:      http.MethodDelete,
		Path:        "/people/{id}",
		Summary:     "Delete person",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := e.DeletePerson(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCategories(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Category `json:"body"`
	}, error) {
		snap := e.Snapshot()
		out := snap.Categories
		if out == nil {
			out = []domain.Category{}
		}
		return &struct {
			Body []domain.Category `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create category",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Category `json:"body"`
	}) (*struct {
		Body domain.Category `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		out, err := e.CreateCategory(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Category `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-category",
		Method:      http.MethodPatch,
		Path:        "/categories/{id}",
		Summary:     "Update category",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body domain.Category `json:"body"`
	}) (*struct {
		Body domain.Category `json:"body"`
	}, error) {
		input.Body.ID = input.ID
		out, err := e.UpdateCategory(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Category `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-category",
		Method:      http.MethodDelete,
		Path:        "/categories/{id}",
		Summary:     "Delete category",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := e.DeleteCategory(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSLAConfigs(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sla-configs",
		Method:      http.MethodGet,
		Path:        "/sla-configs",
		Summary:     "List SLA rules",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.SLAConfig `json:"body"`
	}, error) {
		snap := e.Snapshot()
		out := snap.SLAs
		if out == nil {
			out = []domain.SLAConfig{}
		}
		return &struct {
			Body []domain.SLAConfig `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-sla-config",
		Method:        http.MethodPost,
		Path:          "/sla-configs",
		Summary:       "Create SLA rule",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.SLAConfig `json:"body"`
	}) (*struct {
		Body domain.SLAConfig `json:"body"`
	}, error) {
		if input.Body.CategoryID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "category_id is required", nil)
		}
		if input.Body.TargetHours <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "target_hours must be positive", nil)
		}
		out, err := e.CreateSLAConfig(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SLAConfig `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sla-config",
		Method:      http.MethodPatch,
		Path:        "/sla-configs/{id}",
		Summary:     "Update SLA rule",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body domain.SLAConfig `json:"body"`
	}) (*struct {
		Body domain.SLAConfig `json:"body"`
	}, error) {
		input.Body.ID = input.ID
		out, err := e.UpdateSLAConfig(ctx, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SLAConfig `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-sla-config",
		Method:      http.MethodDelete,
		Path:        "/sla-configs/{id}",
		Summary:     "Delete SLA rule",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := e.DeleteSLAConfig(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
