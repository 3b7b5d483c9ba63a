package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/infrastructure/persistence/sqlite"
)

// DirectoryRepository implements port.Directory over the users and project_roles tables
type DirectoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sqlite.DB, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// RoleOf returns the user's global role
func (r *DirectoryRepository) RoleOf(ctx context.Context, userID string) (entity.Role, error) {
	var role string
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	return entity.Role(role), nil
}

// ManagerOf returns the user's direct manager, or "" when there is none
func (r *DirectoryRepository) ManagerOf(ctx context.Context, userID string) (string, error) {
	var managerID sql.NullString
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT manager_id FROM users WHERE id = ?`, userID).Scan(&managerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get manager: %w", err)
	}
	return managerID.String, nil
}

// ManagedProjectIDs lists the projects the user manages
func (r *DirectoryRepository) ManagedProjectIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT project_id FROM project_roles WHERE user_id = ? AND role = ? ORDER BY project_id`,
		userID, entity.ProjectRoleManager)
	if err != nil {
		r.logger.Error("Failed to list managed projects", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list managed projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetUser retrieves a user by ID
func (r *DirectoryRepository) GetUser(ctx context.Context, id string) (*entity.User, error) {
	var u entity.User
	var role string
	var managerID sql.NullString

	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, role, manager_id FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Name, &role, &managerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = entity.Role(role)
	u.ManagerID = managerID.String
	return &u, nil
}

// UpsertUser creates the user or replaces its name, role and manager
func (r *DirectoryRepository) UpsertUser(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, name, role, manager_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			manager_id = excluded.manager_id,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query, user.ID, user.Name, string(user.Role), nullString(user.ManagerID))
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// SetProjectRole grants or changes a user's role on a project
func (r *DirectoryRepository) SetProjectRole(ctx context.Context, projectID, userID, role string) error {
	query := `
		INSERT INTO project_roles (project_id, user_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role
	`
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, projectID, userID, role); err != nil {
		r.logger.Error("Failed to set project role",
			zap.String("project_id", projectID), zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to set project role: %w", err)
	}
	return nil
}

// RemoveProjectRole drops a user's role on a project
func (r *DirectoryRepository) RemoveProjectRole(ctx context.Context, projectID, userID string) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`DELETE FROM project_roles WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove project role: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("project role %s/%s: %w", projectID, userID, apperr.ErrNotFound)
	}
	return nil
}

// Verify interface compliance
var _ port.Directory = (*DirectoryRepository)(nil)
