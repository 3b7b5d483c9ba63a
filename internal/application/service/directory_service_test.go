package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
)

func newDirectoryFixture() (DirectoryService, *mockDirectory) {
	dir := newMockDirectory(
		entity.User{ID: "emp-1", Role: entity.RoleEmployee, ManagerID: "mgr-1"},
		entity.User{ID: "lead-1", Role: entity.RoleLead, ManagerID: "mgr-1"},
		entity.User{ID: "mgr-1", Role: entity.RoleManager, ManagerID: "exec-1"},
		entity.User{ID: "exec-1", Role: entity.RoleManagement},
	)
	return NewDirectoryService(dir, &mockLogger{}), dir
}

func TestUpsertUser(t *testing.T) {
	svc, dir := newDirectoryFixture()
	ctx := context.Background()

	user := &entity.User{ID: "emp-9", Name: "Nia", Role: entity.RoleEmployee, ManagerID: "mgr-1"}
	if err := svc.UpsertUser(ctx, management, user); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	role, err := dir.RoleOf(ctx, "emp-9")
	if err != nil || role != entity.RoleEmployee {
		t.Errorf("role = %s, err = %v", role, err)
	}
	managerID, _ := dir.ManagerOf(ctx, "emp-9")
	if managerID != "mgr-1" {
		t.Errorf("manager = %s, want mgr-1", managerID)
	}

	got, err := svc.GetUser(ctx, "emp-9")
	if err != nil || got.Name != "Nia" {
		t.Errorf("get user = %+v, %v", got, err)
	}
}

func TestUpsertUser_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		actor entity.Actor
		user  entity.User
		want  error
	}{
		{"manager may not manage users", manager, entity.User{ID: "x", Role: entity.RoleEmployee}, apperr.ErrPermissionDenied},
		{"missing id", management, entity.User{Role: entity.RoleEmployee}, apperr.ErrValidation},
		{"unknown role", management, entity.User{ID: "x", Role: "intern"}, apperr.ErrValidation},
		{"manages themselves", management, entity.User{ID: "x", Role: entity.RoleManager, ManagerID: "x"}, apperr.ErrValidation},
		{"unknown manager", management, entity.User{ID: "x", Role: entity.RoleEmployee, ManagerID: "ghost"}, apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newDirectoryFixture()
			user := tt.user
			err := svc.UpsertUser(context.Background(), tt.actor, &user)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestProjectManagerAssignment(t *testing.T) {
	svc, dir := newDirectoryFixture()
	ctx := context.Background()

	if err := svc.AssignProjectManager(ctx, manager, "p1", "lead-1"); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	projects, _ := dir.ManagedProjectIDs(ctx, "lead-1")
	if len(projects) != 1 || projects[0] != "p1" {
		t.Errorf("projects = %v, want [p1]", projects)
	}

	if err := svc.RemoveProjectManager(ctx, management, "p1", "lead-1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	projects, _ = dir.ManagedProjectIDs(ctx, "lead-1")
	if len(projects) != 0 {
		t.Errorf("projects = %v, want none", projects)
	}
}

func TestProjectManagerAssignment_Rejections(t *testing.T) {
	svc, _ := newDirectoryFixture()
	ctx := context.Background()

	if err := svc.AssignProjectManager(ctx, lead, "p1", "lead-1"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("lead assigning: expected permission denied, got %v", err)
	}
	if err := svc.AssignProjectManager(ctx, manager, " ", "lead-1"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank project: expected validation error, got %v", err)
	}
	if err := svc.AssignProjectManager(ctx, manager, "p1", "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user: expected not found, got %v", err)
	}
	if err := svc.RemoveProjectManager(ctx, employee, "p1", "lead-1"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("employee removing: expected permission denied, got %v", err)
	}
}
