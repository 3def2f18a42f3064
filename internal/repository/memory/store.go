// Package memory provides the volatile, process-local entity store.
package memory

import (
	"context"
	"time"

	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store keeps environments and servers in lock-free maps. It is safe for
// concurrent use without external locking.
type Store struct {
	envs    table[domain.Environment]
	servers table[domain.Server]
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		envs: table[domain.Environment]{
			idOf: func(e domain.Environment) int64 { return e.ID },
			withID: func(e domain.Environment, id int64) domain.Environment {
				e.ID = id
				return e
			},
		},
		servers: table[domain.Server]{
			idOf: func(s domain.Server) int64 { return s.ID },
			withID: func(s domain.Server, id int64) domain.Server {
				s.ID = id
				return s
			},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store holding the Development environment and a single
// server inside it.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()
	env := &domain.Environment{Name: "Development"}
	_ = s.CreateEnvironment(ctx, env)
	_ = s.CreateServer(ctx, &domain.Server{
		EnvironmentID:   env.ID,
		Name:            "Development Server",
		DomainName:      "dev.test.com",
		IPAddress:       "127.0.0.1",
		OperatingSystem: "linux-x64",
	})
	return s
}

// CreateEnvironment stores env and assigns its ID and CreatedAt.
func (s *Store) CreateEnvironment(ctx context.Context, env *domain.Environment) error {
	env.CreatedAt = s.now()
	stored := s.envs.insert(*env)
	env.ID = stored.ID
	return nil
}

// ListEnvironments returns every environment ordered by id.
func (s *Store) ListEnvironments(ctx context.Context) ([]domain.Environment, error) {
	return s.envs.list(nil), nil
}

// GetEnvironmentByID returns a single environment.
func (s *Store) GetEnvironmentByID(ctx context.Context, id int64) (*domain.Environment, error) {
	env, err := s.envs.get(id)
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// DeleteEnvironment removes an environment; unknown ids are ignored.
func (s *Store) DeleteEnvironment(ctx context.Context, id int64) error {
	s.envs.remove(id)
	return nil
}

// CreateServer stores server and assigns its ID and CreatedAt.
func (s *Store) CreateServer(ctx context.Context, server *domain.Server) error {
	server.CreatedAt = s.now()
	stored := s.servers.insert(*server)
	server.ID = stored.ID
	return nil
}

// ListServers returns every server ordered by id.
func (s *Store) ListServers(ctx context.Context) ([]domain.Server, error) {
	return s.servers.list(nil), nil
}

// GetServerByID returns a single server.
func (s *Store) GetServerByID(ctx context.Context, id int64) (*domain.Server, error) {
	server, err := s.servers.get(id)
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// ListServersByEnvironment returns the servers of one environment ordered by id.
func (s *Store) ListServersByEnvironment(ctx context.Context, environmentID int64) ([]domain.Server, error) {
	return s.servers.list(func(server domain.Server) bool {
		return server.EnvironmentID == environmentID
	}), nil
}

// UpdateServer replaces the mutable fields of an existing server. The id and
// creation time are kept; unknown ids yield repository.ErrNotFound.
func (s *Store) UpdateServer(ctx context.Context, server *domain.Server) error {
	updated, err := s.servers.replace(server.ID, func(current domain.Server) domain.Server {
		next := *server
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		return next
	})
	if err != nil {
		return err
	}
	server.CreatedAt = updated.CreatedAt
	return nil
}

// DeleteServer removes a server; unknown ids are ignored.
func (s *Store) DeleteServer(ctx context.Context, id int64) error {
	s.servers.remove(id)
	return nil
}

// Ping always succeeds for the volatile store.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}
