package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/servertracker/internal/app/migrate"
	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
)

// Runs only when TRACKER_TEST_DATABASE_URL points at a disposable database.
func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TRACKER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRACKER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	runner, err := migrate.OpenPostgres(dsn, log)
	if err != nil {
		t.Fatalf("migration runner: %v", err)
	}
	defer runner.Close()
	if err := runner.Ensure(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	repo := New(pool)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM servers`)
		_, _ = pool.Exec(context.Background(), `DELETE FROM environments WHERE name <> 'Development'`)
		repo.Close()
	})
	return repo
}

func TestServerRoundTrip(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	server := &domain.Server{EnvironmentID: 1, Name: "web", DomainName: "web.local", IPAddress: "10.0.0.1", OperatingSystem: "linux"}
	if err := repo.CreateServer(ctx, server); err != nil {
		t.Fatalf("create: %v", err)
	}
	if server.ID == 0 || server.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be assigned: %+v", server)
	}

	server.Name = "web-2"
	if err := repo.UpdateServer(ctx, server); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetServerByID(ctx, server.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "web-2" {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := repo.UpdateServer(ctx, &domain.Server{ID: -1}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteServer(ctx, server.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteServer(ctx, server.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestListEnvironmentsOrderedByID(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	for _, name := range []string{"QA", "Staging"} {
		if err := repo.CreateEnvironment(ctx, &domain.Environment{Name: name}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	envs, err := repo.ListEnvironments(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := 1; i < len(envs); i++ {
		if envs[i-1].ID >= envs[i].ID {
			t.Fatalf("environments not ordered by id: %+v", envs)
		}
	}
}
