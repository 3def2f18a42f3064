// Package sqlite implements the durable entity store on an embedded SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
)

var _ repository.Store = (*Repository)(nil)

// Repository implements persistence interfaces on SQLite. Every method runs a
// single statement; idle connections are not retained, so each call opens and
// closes its own connection and there is no cross-call transaction.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database file at path. The schema is
// provisioned separately by the migrate package.
func Open(path string) (*Repository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "servertracker.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxIdleConns(0)
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB exposes the underlying handle for schema migrations.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Ping checks the database file is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database handle.
func (r *Repository) Close() {
	_ = r.db.Close()
}

// CreateEnvironment inserts an environment.
func (r *Repository) CreateEnvironment(ctx context.Context, env *domain.Environment) error {
	const query = `INSERT INTO environments (name, created_at) VALUES (?, ?)`
	createdAt := r.now()
	res, err := r.db.ExecContext(ctx, query, env.Name, formatTime(createdAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	env.ID = id
	env.CreatedAt = createdAt
	return nil
}

// ListEnvironments returns every environment ordered by id.
func (r *Repository) ListEnvironments(ctx context.Context) ([]domain.Environment, error) {
	const query = `SELECT id, name, created_at FROM environments ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envs := make([]domain.Environment, 0)
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

// GetEnvironmentByID fetches an environment.
func (r *Repository) GetEnvironmentByID(ctx context.Context, id int64) (*domain.Environment, error) {
	const query = `SELECT id, name, created_at FROM environments WHERE id = ?`
	env, err := scanEnvironment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &env, nil
}

// DeleteEnvironment removes an environment. Its servers are left untouched.
func (r *Repository) DeleteEnvironment(ctx context.Context, id int64) error {
	const query = `DELETE FROM environments WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// CreateServer inserts a server.
func (r *Repository) CreateServer(ctx context.Context, server *domain.Server) error {
	const query = `INSERT INTO servers (environment_id, name, domain_name, ip_address, operating_system, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	createdAt := r.now()
	res, err := r.db.ExecContext(ctx, query, server.EnvironmentID, server.Name, server.DomainName, server.IPAddress, server.OperatingSystem, formatTime(createdAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	server.ID = id
	server.CreatedAt = createdAt
	return nil
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
		FROM servers WHERE environment_id = ? ORDER BY id`
	return r.queryServers(ctx, query, environmentID)
}

// GetServerByID fetches a server.
func (r *Repository) GetServerByID(ctx context.Context, id int64) (*domain.Server, error) {
	const query = `SELECT id, environment_id, name, domain_name, ip_address, operating_system, created_at
		FROM servers WHERE id = ?`
	server, err := scanServer(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &server, nil
}

// UpdateServer replaces the mutable fields of a server.
func (r *Repository) UpdateServer(ctx context.Context, server *domain.Server) error {
	const query = `UPDATE servers
		SET environment_id = ?, name = ?, domain_name = ?, ip_address = ?, operating_system = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, server.EnvironmentID, server.Name, server.DomainName, server.IPAddress, server.OperatingSystem, server.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteServer removes a server.
func (r *Repository) DeleteServer(ctx context.Context, id int64) error {
	const query = `DELETE FROM servers WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *Repository) queryServers(ctx context.Context, query string, args ...any) ([]domain.Server, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := make([]domain.Server, 0)
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEnvironment(row scanner) (domain.Environment, error) {
	var (
		env       domain.Environment
		createdAt string
	)
	if err := row.Scan(&env.ID, &env.Name, &createdAt); err != nil {
		return domain.Environment{}, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return domain.Environment{}, err
	}
	env.CreatedAt = parsed
	return env, nil
}

func scanServer(row scanner) (domain.Server, error) {
	var (
		server    domain.Server
		createdAt string
	)
	if err := row.Scan(&server.ID, &server.EnvironmentID, &server.Name, &server.DomainName, &server.IPAddress, &server.OperatingSystem, &createdAt); err != nil {
		return domain.Server{}, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return domain.Server{}, err
	}
	server.CreatedAt = parsed
	return server, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", value, err)
	}
	return parsed.UTC(), nil
}
