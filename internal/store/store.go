// Package store defines the persistence collaborator the engine consumes.
// Implementations: the embedded SQLite store (store/sqlite) and the HTTP
// SDK client (sdk/go).
package store

import (
	"context"
	"errors"

	"demandflow/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store is the full persistence surface. Demand writes are full-record
// replaces keyed by id; ids are assigned by the caller before invocation.
type Store interface {
	ListDemands(ctx context.Context) ([]domain.Demand, error)
	CreateDemand(ctx context.Context, d domain.Demand) (domain.Demand, error)
	UpdateDemand(ctx context.Context, d domain.Demand) (domain.Demand, error)
	DeleteDemand(ctx context.Context, id string) error

	ListAreas(ctx context.Context) ([]domain.Area, error)
	CreateArea(ctx context.Context, a domain.Area) (domain.Area, error)
	UpdateArea(ctx context.Context, a domain.Area) (domain.Area, error)
	DeleteArea(ctx context.Context, id string) error

	ListCoordinations(ctx context.Context) ([]domain.Coordination, error)
	CreateCoordination(ctx context.Context, c domain.Coordination) (domain.Coordination, error)
	UpdateCoordination(ctx context.Context, c domain.Coordination) (domain.Coordination, error)
	DeleteCoordination(ctx context.Context, id string) error

	ListPeople(ctx context.Context) ([]domain.Person, error)
	CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error)
	UpdatePerson(ctx context.Context, p domain.Person) (domain.Person, error)
	DeletePerson(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	UpdateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListSLAConfigs(ctx context.Context) ([]domain.SLAConfig, error)
	CreateSLAConfig(ctx context.Context, s domain.SLAConfig) (domain.SLAConfig, error)
	UpdateSLAConfig(ctx context.Context, s domain.SLAConfig) (domain.SLAConfig, error)
	DeleteSLAConfig(ctx context.Context, id string) error
}
