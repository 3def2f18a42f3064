package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
	"github.com/splax/servertracker/internal/repository/memory"
	"github.com/splax/servertracker/internal/validation"
)

type stubValidator struct {
	result domain.ValidationResult
	calls  int
}

func (v *stubValidator) Validate(server *domain.Server) domain.ValidationResult {
	v.calls++
	return v.result
}

type stubServerRepository struct {
	createCalls int
	updateCalls int
	createErr   error
	updateErr   error
	deleteErr   error
	listErr     error
	servers     []domain.Server
}

func (s *stubServerRepository) CreateServer(ctx context.Context, server *domain.Server) error {
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	server.ID = int64(len(s.servers) + 1)
	s.servers = append(s.servers, *server)
	return nil
}

func (s *stubServerRepository) ListServers(ctx context.Context) ([]domain.Server, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.Server(nil), s.servers...), nil
}

func (s *stubServerRepository) GetServerByID(ctx context.Context, id int64) (*domain.Server, error) {
	return nil, repository.ErrNotFound
}

func (s *stubServerRepository) ListServersByEnvironment(ctx context.Context, environmentID int64) ([]domain.Server, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Server
	for _, server := range s.servers {
		if server.EnvironmentID == environmentID {
			out = append(out, server)
		}
	}
	return out, nil
}

func (s *stubServerRepository) UpdateServer(ctx context.Context, server *domain.Server) error {
	s.updateCalls++
	return s.updateErr
}

func (s *stubServerRepository) DeleteServer(ctx context.Context, id int64) error {
	return s.deleteErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serviceError(t *testing.T, err error) *domain.ServiceError {
	t.Helper()
	var svcErr *domain.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *domain.ServiceError, got %T (%v)", err, err)
	}
	return svcErr
}

func TestAddNewServerRejectsInvalidWithoutTouchingStore(t *testing.T) {
	validator := &stubValidator{result: domain.ValidationResult{Errors: []string{"first problem", "second problem"}}}
	repo := &stubServerRepository{}
	svc := New(repo, validator, discardLogger())

	err := svc.AddNewServer(context.Background(), &domain.Server{})
	svcErr := serviceError(t, err)
	if svcErr.Message != "first problem\nsecond problem" {
		t.Fatalf("expected joined validation errors, got %q", svcErr.Message)
	}
	if svcErr.Cause != nil {
		t.Fatalf("validation failures carry no cause, got %v", svcErr.Cause)
	}
	if repo.createCalls != 0 {
		t.Fatalf("store must not be called for invalid servers")
	}
}

func TestAddNewServerInvalidWithoutMessages(t *testing.T) {
	svc := New(&stubServerRepository{}, &stubValidator{result: domain.ValidationResult{Valid: false}}, discardLogger())
	err := svc.AddNewServer(context.Background(), &domain.Server{})
	if msg := serviceError(t, err).Message; !strings.Contains(msg, "did not pass validation") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAddNewServerWrapsStoreFault(t *testing.T) {
	fault := errors.New("simulated repository failure")
	repo := &stubServerRepository{createErr: fault}
	svc := New(repo, &stubValidator{result: domain.ValidationResult{Valid: true}}, discardLogger())

	err := svc.AddNewServer(context.Background(), &domain.Server{Name: "web"})
	svcErr := serviceError(t, err)
	if !strings.Contains(svcErr.Message, "Failed to add new server") {
		t.Fatalf("unexpected message %q", svcErr.Message)
	}
	if !errors.Is(err, fault) {
		t.Fatalf("expected cause to be preserved")
	}
}

func TestAddNewServerSucceeds(t *testing.T) {
	repo := &stubServerRepository{}
	svc := New(repo, &stubValidator{result: domain.ValidationResult{Valid: true}}, discardLogger())
	server := &domain.Server{Name: " web ", DomainName: " web.local", IPAddress: "10.0.0.1 ", OperatingSystem: "linux"}
	if err := svc.AddNewServer(context.Background(), server); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.servers[0].Name != "web" || repo.servers[0].DomainName != "web.local" || repo.servers[0].IPAddress != "10.0.0.1" {
		t.Fatalf("expected trimmed fields, got %+v", repo.servers[0])
	}
}

func TestUpdateServerValidatesFirst(t *testing.T) {
	repo := &stubServerRepository{}
	validator := &stubValidator{result: domain.ValidationResult{Errors: []string{"Name is null, empty or whitespace."}}}
	err := New(repo, validator, discardLogger()).UpdateServer(context.Background(), &domain.Server{ID: 1})
	if serviceError(t, err).Message != "Name is null, empty or whitespace." {
		t.Fatalf("unexpected error %v", err)
	}
	if repo.updateCalls != 0 {
		t.Fatalf("store must not be called for invalid servers")
	}
}

func TestUpdateServerUnknownID(t *testing.T) {
	repo := &stubServerRepository{updateErr: repository.ErrNotFound}
	err := New(repo, &stubValidator{result: domain.ValidationResult{Valid: true}}, discardLogger()).
		UpdateServer(context.Background(), &domain.Server{ID: 12})
	svcErr := serviceError(t, err)
	if svcErr.Message != "Server with ID 12 does not exist." || !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unexpected error %+v", svcErr)
	}
}

func TestUpdateServerStoreFault(t *testing.T) {
	fault := errors.New("locked")
	repo := &stubServerRepository{updateErr: fault}
	err := New(repo, &stubValidator{result: domain.ValidationResult{Valid: true}}, discardLogger()).
		UpdateServer(context.Background(), &domain.Server{ID: 4})
	svcErr := serviceError(t, err)
	if svcErr.Message != "Failed to update server with ID 4." || svcErr.Cause != fault {
		t.Fatalf("unexpected error %+v", svcErr)
	}
}

func TestDeleteServerWrapsFault(t *testing.T) {
	fault := errors.New("io")
	err := New(&stubServerRepository{deleteErr: fault}, validation.ServerValidator{}, discardLogger()).
		DeleteServer(context.Background(), 5)
	if svcErr := serviceError(t, err); svcErr.Cause != fault {
		t.Fatalf("expected cause %v, got %v", fault, svcErr.Cause)
	}
}

func TestGetAllServersFault(t *testing.T) {
	fault := errors.New("gone")
	servers, err := New(&stubServerRepository{listErr: fault}, validation.ServerValidator{}, discardLogger()).
		GetAllServers(context.Background())
	if servers != nil {
		t.Fatalf("expected no list alongside an error")
	}
	if svcErr := serviceError(t, err); svcErr.Message != "Failed to retrieve all servers" {
		t.Fatalf("unexpected message %q", svcErr.Message)
	}
}

func TestRoundTripAgainstMemoryStore(t *testing.T) {
	store := memory.New()
	svc := New(store, validation.ServerValidator{}, discardLogger())
	ctx := context.Background()

	input := domain.Server{EnvironmentID: 2, Name: "api", DomainName: "api.local", IPAddress: "192.168.1.10", OperatingSystem: "linux-arm64"}
	added := input
	if err := svc.AddNewServer(ctx, &added); err != nil {
		t.Fatalf("add: %v", err)
	}

	servers, err := svc.GetAllServers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	matches := 0
	for _, got := range servers {
		got.ID, got.CreatedAt = 0, input.CreatedAt
		if got == input {
			matches++
		}
	}
	if matches != 1 {
		t.Fatalf("expected exactly one stored copy of the input, got %d in %+v", matches, servers)
	}

	for range 2 {
		if err := svc.DeleteServer(ctx, added.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	scoped, err := svc.GetServersForEnvironment(ctx, 2)
	if err != nil {
		t.Fatalf("list for environment: %v", err)
	}
	if len(scoped) != 0 {
		t.Fatalf("expected no servers after delete, got %d", len(scoped))
	}
}

func TestAddNewServerReportsValidatorMessages(t *testing.T) {
	store := memory.New()
	svc := New(store, validation.ServerValidator{}, discardLogger())
	err := svc.AddNewServer(context.Background(), &domain.Server{DomainName: "x", IPAddress: "1.2.3.4", OperatingSystem: "linux"})
	if msg := serviceError(t, err).Message; !strings.Contains(msg, "Name is null, empty or whitespace") {
		t.Fatalf("unexpected message %q", msg)
	}
	servers, _ := store.ListServers(context.Background())
	if len(servers) != 0 {
		t.Fatalf("invalid server was stored")
	}
}
