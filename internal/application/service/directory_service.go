package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
)

// DirectoryService maintains the users and project roles permission
// resolution reads from
type DirectoryService interface {
	GetUser(ctx context.Context, id string) (*entity.User, error)
	UpsertUser(ctx context.Context, actor entity.Actor, user *entity.User) error
	AssignProjectManager(ctx context.Context, actor entity.Actor, projectID, userID string) error
	RemoveProjectManager(ctx context.Context, actor entity.Actor, projectID, userID string) error
}

type directoryServiceImpl struct {
	directory port.Directory
	logger    Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(directory port.Directory, logger Logger) DirectoryService {
	return &directoryServiceImpl{directory: directory, logger: logger}
}

func (s *directoryServiceImpl) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return s.directory.GetUser(ctx, id)
}

// UpsertUser creates or updates a user; management only
func (s *directoryServiceImpl) UpsertUser(ctx context.Context, actor entity.Actor, user *entity.User) error {
	if actor.Role != entity.RoleManagement {
		return &apperr.PermissionError{ActorID: actor.ID, Role: actor.Role.String(), Action: "manage users", Status: "n/a"}
	}
	if strings.TrimSpace(user.ID) == "" {
		return apperr.Validation("id", "user id is required")
	}
	if !user.Role.IsValid() {
		return apperr.Validation("role", "unknown role %q", user.Role)
	}
	if user.ManagerID == user.ID {
		return apperr.Validation("manager_id", "a user cannot manage themselves")
	}
	if user.ManagerID != "" {
		if _, err := s.directory.GetUser(ctx, user.ManagerID); err != nil {
			return fmt.Errorf("manager %s: %w", user.ManagerID, err)
		}
	}

	if err := s.directory.UpsertUser(ctx, user); err != nil {
		s.logger.Error("Failed to upsert user", "user_id", user.ID, "error", err)
		return err
	}
	s.logger.Info("User saved", "user_id", user.ID, "role", user.Role, "manager_id", user.ManagerID, "actor_id", actor.ID)
	return nil
}

// AssignProjectManager grants project-scoped approval authority
func (s *directoryServiceImpl) AssignProjectManager(ctx context.Context, actor entity.Actor, projectID, userID string) error {
	if err := s.checkProjectAdmin(actor); err != nil {
		return err
	}
	if strings.TrimSpace(projectID) == "" {
		return apperr.Validation("project_id", "project id is required")
	}
	if _, err := s.directory.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("user %s: %w", userID, err)
	}

	if err := s.directory.SetProjectRole(ctx, projectID, userID, entity.ProjectRoleManager); err != nil {
		s.logger.Error("Failed to assign project manager", "project_id", projectID, "user_id", userID, "error", err)
		return err
	}
	s.logger.Info("Project manager assigned", "project_id", projectID, "user_id", userID, "actor_id", actor.ID)
	return nil
}

// RemoveProjectManager revokes project-scoped approval authority
func (s *directoryServiceImpl) RemoveProjectManager(ctx context.Context, actor entity.Actor, projectID, userID string) error {
	if err := s.checkProjectAdmin(actor); err != nil {
		return err
	}
	if err := s.directory.RemoveProjectRole(ctx, projectID, userID); err != nil {
		return err
	}
	s.logger.Info("Project manager removed", "project_id", projectID, "user_id", userID, "actor_id", actor.ID)
	return nil
}

func (s *directoryServiceImpl) checkProjectAdmin(actor entity.Actor) error {
	if actor.Role == entity.RoleManagement || actor.Role == entity.RoleManager {
		return nil
	}
	return &apperr.PermissionError{ActorID: actor.ID, Role: actor.Role.String(), Action: "manage project roles", Status: "n/a"}
}
