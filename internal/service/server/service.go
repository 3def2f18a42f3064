package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
)

// Validator checks a server before it is written.
type Validator interface {
	Validate(server *domain.Server) domain.ValidationResult
}

// Service coordinates server operations. Every failure it returns is a
// *domain.ServiceError; invalid servers never reach the repository.
type Service struct {
	servers   repository.ServerRepository
	validator Validator
	logger    *slog.Logger
}

// New constructs a server service.
func New(servers repository.ServerRepository, validator Validator, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{servers: servers, validator: validator, logger: logger}
}

// AddNewServer validates and stores a new server.
func (s Service) AddNewServer(ctx context.Context, server *domain.Server) error {
	if err := s.validate(server); err != nil {
		return err
	}
	normalize(server)
	if err := s.servers.CreateServer(ctx, server); err != nil {
		s.logger.Error("failed to add server", "name", server.Name, "domain", server.DomainName, "error", err)
		return &domain.ServiceError{Message: "Failed to add new server.", Cause: err}
	}
	s.logger.Debug("server created", "server_id", server.ID, "name", server.Name, "domain", server.DomainName)
	return nil
}

// UpdateServer validates server and replaces the stored record with the same id.
func (s Service) UpdateServer(ctx context.Context, server *domain.Server) error {
	if err := s.validate(server); err != nil {
		return err
	}
	normalize(server)
	if err := s.servers.UpdateServer(ctx, server); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("rejecting update of unknown server", "server_id", server.ID)
			return &domain.ServiceError{Message: fmt.Sprintf("Server with ID %d does not exist.", server.ID), Cause: err}
		}
		s.logger.Error("failed to update server", "server_id", server.ID, "error", err)
		return &domain.ServiceError{Message: fmt.Sprintf("Failed to update server with ID %d.", server.ID), Cause: err}
	}
	s.logger.Debug("server updated", "server_id", server.ID)
	return nil
}

// DeleteServer removes a server. Deleting an unknown id succeeds.
func (s Service) DeleteServer(ctx context.Context, id int64) error {
	if err := s.servers.DeleteServer(ctx, id); err != nil {
		s.logger.Error("failed to delete server", "server_id", id, "error", err)
		return &domain.ServiceError{Message: fmt.Sprintf("Failed to delete server with ID %d", id), Cause: err}
	}
	s.logger.Debug("server deleted", "server_id", id)
	return nil
}

// GetAllServers returns every server ordered by id.
func (s Service) GetAllServers(ctx context.Context) ([]domain.Server, error) {
	servers, err := s.servers.ListServers(ctx)
	if err != nil {
		s.logger.Error("failed to list servers", "error", err)
		return nil, &domain.ServiceError{Message: "Failed to retrieve all servers", Cause: err}
	}
	return servers, nil
}

// GetServersForEnvironment returns the servers of one environment ordered by id.
func (s Service) GetServersForEnvironment(ctx context.Context, environmentID int64) ([]domain.Server, error) {
	servers, err := s.servers.ListServersByEnvironment(ctx, environmentID)
	if err != nil {
		s.logger.Error("failed to list servers for environment", "environment_id", environmentID, "error", err)
		return nil, &domain.ServiceError{
			Message: fmt.Sprintf("Failed to retrieve servers for environment with ID %d", environmentID),
			Cause:   err,
		}
	}
	return servers, nil
}

// GetServer returns a single server.
func (s Service) GetServer(ctx context.Context, id int64) (*domain.Server, error) {
	server, err := s.servers.GetServerByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.ServiceError{Message: fmt.Sprintf("Server with ID %d does not exist.", id), Cause: err}
		}
		s.logger.Error("failed to get server", "server_id", id, "error", err)
		return nil, &domain.ServiceError{Message: fmt.Sprintf("Failed to retrieve server with ID %d", id), Cause: err}
	}
	return server, nil
}

func (s Service) validate(server *domain.Server) error {
	result := s.validator.Validate(server)
	if result.Valid {
		return nil
	}
	msg := strings.Join(result.Errors, "\n")
	if msg == "" {
		msg = "Server did not pass validation."
	}
	s.logger.Info("server failed validation", "errors", result.Errors)
	return &domain.ServiceError{Message: msg}
}

func normalize(server *domain.Server) {
	server.Name = strings.TrimSpace(server.Name)
	server.DomainName = strings.TrimSpace(server.DomainName)
	server.IPAddress = strings.TrimSpace(server.IPAddress)
	server.OperatingSystem = strings.TrimSpace(server.OperatingSystem)
}
