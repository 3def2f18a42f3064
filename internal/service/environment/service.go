package environment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/splax/servertracker/internal/domain"
	"github.com/splax/servertracker/internal/repository"
)

// Service coordinates environment operations. Every failure it returns is a
// *domain.ServiceError.
type Service struct {
	envs   repository.EnvironmentRepository
	logger *slog.Logger
}

// New constructs an environment service.
func New(envs repository.EnvironmentRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{envs: envs, logger: logger}
}

// AddNewEnvironment validates and stores env. The name is trimmed before it
// is stored.
func (s Service) AddNewEnvironment(ctx context.Context, env *domain.Environment) error {
	if env == nil {
		s.logger.Info("rejecting new environment: instance is nil")
		return &domain.ServiceError{Message: "Cannot add empty or invalid environment."}
	}
	name := strings.TrimSpace(env.Name)
	if name == "" {
		s.logger.Info("rejecting new environment: missing name")
		return &domain.ServiceError{Message: "New environment is missing, or has an, invalid name."}
	}
	env.Name = name
	if err := s.envs.CreateEnvironment(ctx, env); err != nil {
		s.logger.Error("failed to add environment", "name", name, "error", err)
		return &domain.ServiceError{
			Message: fmt.Sprintf("Failed to add new environment '%s'", name),
			Cause:   err,
		}
	}
	s.logger.Debug("environment created", "environment_id", env.ID, "name", name)
	return nil
}

// DeleteEnvironment removes an environment. Deleting an unknown id succeeds.
func (s Service) DeleteEnvironment(ctx context.Context, id int64) error {
	if err := s.envs.DeleteEnvironment(ctx, id); err != nil {
		s.logger.Error("failed to delete environment", "environment_id", id, "error", err)
		return &domain.ServiceError{
			Message: fmt.Sprintf("Failed to delete environment with ID %d", id),
			Cause:   err,
		}
	}
	s.logger.Debug("environment deleted", "environment_id", id)
	return nil
}

// GetAllEnvironments returns every environment ordered by id.
func (s Service) GetAllEnvironments(ctx context.Context) ([]domain.Environment, error) {
	envs, err := s.envs.ListEnvironments(ctx)
	if err != nil {
		s.logger.Error("failed to list environments", "error", err)
		return nil, &domain.ServiceError{Message: "Failed to retrieve all environments", Cause: err}
	}
	s.logger.Debug("listed environments", "count", len(envs))
	return envs, nil
}

// GetEnvironment returns a single environment.
func (s Service) GetEnvironment(ctx context.Context, id int64) (*domain.Environment, error) {
	env, err := s.envs.GetEnvironmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.ServiceError{Message: fmt.Sprintf("Environment with ID %d does not exist.", id), Cause: err}
		}
		s.logger.Error("failed to get environment", "environment_id", id, "error", err)
		return nil, &domain.ServiceError{Message: fmt.Sprintf("Failed to retrieve environment with ID %d", id), Cause: err}
	}
	return env, nil
}
