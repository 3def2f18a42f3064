package repository

import (
	"context"

	"github.com/splax/servertracker/internal/domain"
)

// EnvironmentRepository persists environments. List results are ordered by id.
type EnvironmentRepository interface {
	CreateEnvironment(ctx context.Context, env *domain.Environment) error
	ListEnvironments(ctx context.Context) ([]domain.Environment, error)
	GetEnvironmentByID(ctx context.Context, id int64) (*domain.Environment, error)
	DeleteEnvironment(ctx context.Context, id int64) error
}

// ServerRepository persists servers. List results are ordered by id.
type ServerRepository interface {
	CreateServer(ctx context.Context, server *domain.Server) error
	ListServers(ctx context.Context) ([]domain.Server, error)
	GetServerByID(ctx context.Context, id int64) (*domain.Server, error)
	ListServersByEnvironment(ctx context.Context, environmentID int64) ([]domain.Server, error)
	UpdateServer(ctx context.Context, server *domain.Server) error
	DeleteServer(ctx context.Context, id int64) error
}

// Store bundles both repositories plus a liveness probe for health checks.
type Store interface {
	EnvironmentRepository
	ServerRepository
	Ping(ctx context.Context) error
	Close()
}
