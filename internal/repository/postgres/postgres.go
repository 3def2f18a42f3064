package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL. Each method
// issues exactly one statement on a connection borrowed from the pool for
// the duration of that call.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.EnvironmentRepository = (*Repository)(nil)
	_ repository.ServerRepository      = (*Repository)(nil)
	_ repository.Store                 = (*Repository)(nil)
)

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases pooled connections.
func (r *Repository) Close() {
	r.pool.Close()
}

// CreateEnvironment inserts an environment.
func (r *Repository) CreateEnvironment(ctx context.Context, env *domain.Environment) error {
	const query = `INSERT INTO environments (name) VALUES ($1) RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, env.Name).Scan(&env.ID, &env.CreatedAt)
}

// ListEnvironments returns every environment ordered by id.
func (r *Repository) ListEnvironments(ctx context.Context) ([]domain.Environment, error) {
	const query = `SELECT id, name, created_at FROM environments ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envs := make([]domain.Environment, 0)
	for rows.Next() {
		var env domain.Environment
		if err := rows.Scan(&env.ID, &env.Name, &env.CreatedAt); err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

// GetEnvironmentByID fetches an environment.
func (r *Repository) GetEnvironmentByID(ctx context.Context, id int64) (*domain.Environment, error) {
	const query = `SELECT id, name, created_at FROM environments WHERE id = $1`
	var env domain.Environment
	if err := r.pool.QueryRow(ctx, query, id).Scan(&env.ID, &env.Name, &env.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &env, nil
}

// DeleteEnvironment removes an environment. Its servers are left untouched.
func (r *Repository) DeleteEnvironment(ctx context.Context, id int64) error {
	const query = `DELETE FROM environments WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// CreateServer inserts a server.
func (r *Repository) CreateServer(ctx context.Context, server *domain.Server) error {
	const query = `INSERT INTO servers (environment_id, name, domain_name, ip_address, operating_system)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, server.EnvironmentID, server.Name, server.DomainName, server.IPAddress, server.OperatingSystem).
		Scan(&server.ID, &server.CreatedAt)
}

// ListServers returns every server ordered by id.
func (r *Repository) ListServers(ctx context.Context) ([]domain.Server, error) {
	const query = `SELECT id, environment_id, name, domain_name, ip_address, operating_system, created_at
		FROM servers ORDER BY id`
	return r.queryServers(ctx, query)
}

// ListServersByEnvironment returns servers of one environment ordered by id.
func (r *Repository) ListServersByEnvironment(ctx context.Context, environmentID int64) ([]domain.Server, error) {
	const query = `SELECT id, environment_id, name, domain_name, ip_address, operating_system, created_at
		FROM servers WHERE environment_id = $1 ORDER BY id`
	return r.queryServers(ctx, query, environmentID)
}

// GetServerByID fetches a server.
func (r *Repository) GetServerByID(ctx context.Context, id int64) (*domain.Server, error) {
	const query = `SELECT id, environment_id, name, domain_name, ip_address, operating_system, created_at
		FROM servers WHERE id = $1`
	var s domain.Server
	if err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.EnvironmentID, &s.Name, &s.DomainName, &s.IPAddress, &s.OperatingSystem, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// UpdateServer replaces the mutable fields of a server.
func (r *Repository) UpdateServer(ctx context.Context, server *domain.Server) error {
	const query = `UPDATE servers
		SET environment_id = $1, name = $2, domain_name = $3, ip_address = $4, operating_system = $5
		WHERE id = $6
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, query, server.EnvironmentID, server.Name, server.DomainName, server.IPAddress, server.OperatingSystem, server.ID).
		Scan(&server.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// DeleteServer removes a server.
func (r *Repository) DeleteServer(ctx context.Context, id int64) error {
	const query = `DELETE FROM servers WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *Repository) queryServers(ctx context.Context, query string, args ...any) ([]domain.Server, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := make([]domain.Server, 0)
	for rows.Next() {
		var s domain.Server
		if err := rows.Scan(&s.ID, &s.EnvironmentID, &s.Name, &s.DomainName, &s.IPAddress, &s.OperatingSystem, &s.CreatedAt); err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}
