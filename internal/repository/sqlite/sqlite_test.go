package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/splax/servertracker/internal/app/migrate"
	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
)

func openMigrated(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(repo.Close)

	runner, err := migrate.New(repo.DB(), migrate.DialectSQLite, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("migration runner: %v", err)
	}
	if err := runner.Ensure(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestMigrationSeedsDevelopmentEnvironment(t *testing.T) {
	repo := openMigrated(t)
	envs, err := repo.ListEnvironments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(envs) != 1 || envs[0].Name != "Development" || envs[0].ID != 1 {
		t.Fatalf("unexpected seeded environments: %+v", envs)
	}
	if envs[0].CreatedAt.IsZero() {
		t.Fatalf("expected seeded created_at to parse")
	}
}

func TestEnvironmentLifecycle(t *testing.T) {
	repo := openMigrated(t)
	ctx := context.Background()

	qa := &domain.Environment{Name: "QA"}
	if err := repo.CreateEnvironment(ctx, qa); err != nil {
		t.Fatalf("create: %v", err)
	}
	if qa.ID != 2 {
		t.Fatalf("expected id 2, got %d", qa.ID)
	}

	got, err := repo.GetEnvironmentByID(ctx, qa.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "QA" || !got.CreatedAt.Equal(qa.CreatedAt) {
		t.Fatalf("unexpected environment: %+v (want created_at %v)", got, qa.CreatedAt)
	}

	if err := repo.CreateEnvironment(ctx, &domain.Environment{Name: "QA"}); err == nil {
		t.Fatalf("expected duplicate name to violate the unique index")
	}

	for range 2 {
		if err := repo.DeleteEnvironment(ctx, qa.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if _, err := repo.GetEnvironmentByID(ctx, qa.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServerLifecycle(t *testing.T) {
	repo := openMigrated(t)
	ctx := context.Background()

	inputs := []domain.Server{
		{EnvironmentID: 1, Name: "web", DomainName: "web.local", IPAddress: "10.0.0.1", OperatingSystem: "linux"},
		{EnvironmentID: 2, Name: "db", DomainName: "db.local", IPAddress: "10.0.0.2", OperatingSystem: "linux"},
		{EnvironmentID: 1, Name: "cache", DomainName: "cache.local", IPAddress: "10.0.0.3", OperatingSystem: "bsd"},
	}
	for i := range inputs {
		if err := repo.CreateServer(ctx, &inputs[i]); err != nil {
			t.Fatalf("create %s: %v", inputs[i].Name, err)
		}
	}

	all, err := repo.ListServers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("servers not ordered by id")
		}
	}

	dev, err := repo.ListServersByEnvironment(ctx, 1)
	if err != nil {
		t.Fatalf("list by env: %v", err)
	}
	if len(dev) != 2 || dev[0].Name != "web" || dev[1].Name != "cache" {
		t.Fatalf("unexpected environment servers: %+v", dev)
	}

	update := inputs[1]
	update.Name = "db-primary"
	update.EnvironmentID = 1
	if err := repo.UpdateServer(ctx, &update); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetServerByID(ctx, update.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "db-primary" || got.EnvironmentID != 1 {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := repo.UpdateServer(ctx, &domain.Server{ID: 404, Name: "ghost"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	if err := repo.DeleteServer(ctx, update.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteServer(ctx, update.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := repo.GetServerByID(ctx, update.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteEnvironmentKeepsServers(t *testing.T) {
	repo := openMigrated(t)
	ctx := context.Background()

	server := &domain.Server{EnvironmentID: 1, Name: "orphan", DomainName: "o.local", IPAddress: "10.0.0.9", OperatingSystem: "linux"}
	if err := repo.CreateServer(ctx, server); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.DeleteEnvironment(ctx, 1); err != nil {
		t.Fatalf("delete environment: %v", err)
	}
	servers, err := repo.ListServersByEnvironment(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected orphaned server to remain, got %d", len(servers))
	}
}
