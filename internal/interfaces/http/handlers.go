package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/timesheet-approval/internal/application/service"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
	"github.com/garyjia/timesheet-approval/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	timesheets service.TimesheetService
	billing    service.BillingService
	directory  service.DirectoryService
	logger     Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	timesheets service.TimesheetService,
	billing service.BillingService,
	directory service.DirectoryService,
	logger Logger,
) *Handlers {
	return &Handlers{
		timesheets: timesheets,
		billing:    billing,
		directory:  directory,
		logger:     logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ValidationDetail is attached to 422 responses
type ValidationDetail struct {
	Field   string  `json:"field,omitempty"`
	Date    string  `json:"date,omitempty"`
	Limit   float64 `json:"limit,omitempty"`
	Current float64 `json:"current,omitempty"`
	Adding  float64 `json:"adding,omitempty"`
	Total   float64 `json:"total,omitempty"`
}

// CreateTimesheetRequest is the body of POST /api/timesheets
type CreateTimesheetRequest struct {
	OwnerID   string `json:"owner_id"`
	WeekStart string `json:"week_start" binding:"required"`
}

// EntryRequest is one entry in PUT /api/timesheets/:id/entries. Dates are YYYY-MM-DD.
type EntryRequest struct {
	Date                  string           `json:"date"`
	Hours                 float64          `json:"hours"`
	Billable              bool             `json:"billable"`
	EntryType             entity.EntryType `json:"entry_type"`
	ProjectID             string           `json:"project_id"`
	TaskID                string           `json:"task_id"`
	CustomTaskDescription string           `json:"custom_task_description"`
	Description           string           `json:"description"`
}

// ReplaceEntriesRequest is the body of PUT /api/timesheets/:id/entries
type ReplaceEntriesRequest struct {
	Entries []EntryRequest `json:"entries"`
}

// UpsertUserRequest is the body of PUT /api/directory/users/:id
type UpsertUserRequest struct {
	Name      string      `json:"name"`
	Role      entity.Role `json:"role"`
	ManagerID string      `json:"manager_id"`
}

// PurgeResponse reports how many soft-deleted entries were removed
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateTimesheet handles POST /api/timesheets
func (h *Handlers) CreateTimesheet(c *gin.Context) {
	var req CreateTimesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	actor := actorFrom(c)
	if req.OwnerID == "" {
		req.OwnerID = actor.ID
	}

	weekStart, err := entity.ParseDate(req.WeekStart)
	if err != nil {
		h.fail(c, "create", apperr.Validation("week_start", "week_start must be YYYY-MM-DD, got %q", req.WeekStart))
		return
	}

	view, err := h.timesheets.Create(c.Request.Context(), actor, req.OwnerID, weekStart)
	if err != nil {
		h.fail(c, "create", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: view})
}

// GetTimesheet handles GET /api/timesheets/:id
func (h *Handlers) GetTimesheet(c *gin.Context) {
	view, err := h.timesheets.GetView(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// DeleteTimesheet handles DELETE /api/timesheets/:id
func (h *Handlers) DeleteTimesheet(c *gin.Context) {
	if err := h.timesheets.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.fail(c, "delete", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ReplaceEntries handles PUT /api/timesheets/:id/entries
func (h *Handlers) ReplaceEntries(c *gin.Context) {
	var req ReplaceEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	entries := make([]entity.TimeEntry, 0, len(req.Entries))
	for i, e := range req.Entries {
		entry := entity.TimeEntry{
			Hours:                 e.Hours,
			Billable:              e.Billable,
			EntryType:             e.EntryType,
			ProjectID:             e.ProjectID,
			TaskID:                e.TaskID,
			CustomTaskDescription: e.CustomTaskDescription,
			Description:           e.Description,
		}
		if e.Date != "" {
			date, err := entity.ParseDate(e.Date)
			if err != nil {
				h.fail(c, "replace_entries", apperr.Validation("date", "entry %d: date must be YYYY-MM-DD, got %q", i, e.Date))
				return
			}
			entry.Date = date
		}
		entries = append(entries, entry)
	}

	view, err := h.timesheets.ReplaceEntries(c.Request.Context(), actorFrom(c), c.Param("id"), entries)
	if err != nil {
		h.fail(c, "replace_entries", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// SubmitTimesheet handles POST /api/timesheets/:id/submit
func (h *Handlers) SubmitTimesheet(c *gin.Context) {
	view, err := h.timesheets.Submit(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "submit", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// DecideTimesheet handles POST /api/timesheets/:id/decision
func (h *Handlers) DecideTimesheet(c *gin.Context) {
	var decision service.Decision
	if err := c.ShouldBindJSON(&decision); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	decision.Action = service.DecisionAction(strings.ToLower(string(decision.Action)))

	view, err := h.timesheets.Decide(c.Request.Context(), actorFrom(c), c.Param("id"), decision)
	if err != nil {
		h.fail(c, "decide", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// GetHistory handles GET /api/timesheets/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	history, err := h.timesheets.History(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "history", err)
		return
	}
	if history == nil {
		history = []entity.HistoryRecord{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// PurgeDeletedEntries handles POST /api/timesheets/:id/purge
func (h *Handlers) PurgeDeletedEntries(c *gin.Context) {
	n, err := h.timesheets.PurgeDeletedEntries(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "purge", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: PurgeResponse{Purged: n}})
}

// BillTimesheet handles POST /api/timesheets/:id/bill
func (h *Handlers) BillTimesheet(c *gin.Context) {
	if err := requireRole(actorFrom(c), entity.RoleBilling, "bill"); err != nil {
		h.fail(c, "bill", err)
		return
	}

	view, err := h.billing.BillTimesheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "bill", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// RunBilling handles POST /api/billing/run?limit=N
func (h *Handlers) RunBilling(c *gin.Context) {
	if err := requireRole(actorFrom(c), entity.RoleBilling, "run billing"); err != nil {
		h.fail(c, "billing_run", err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = n
	}

	run, err := h.billing.BillFrozen(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "billing_run", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: run})
}

// ListOwnerTimesheets handles GET /api/owners/:owner_id/timesheets
func (h *Handlers) ListOwnerTimesheets(c *gin.Context) {
	list, err := h.timesheets.ListForOwner(c.Request.Context(), actorFrom(c), c.Param("owner_id"))
	if err != nil {
		h.fail(c, "list_owner", err)
		return
	}
	if list == nil {
		list = []*entity.Timesheet{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// StatusFlow handles GET /api/status-flow?status=S[&role=R]. Role defaults to the actor's.
func (h *Handlers) StatusFlow(c *gin.Context) {
	status := workflow.State(c.Query("status"))
	if !status.IsValid() {
		h.fail(c, "status_flow", apperr.Validation("status", "unknown status %q", status))
		return
	}

	role := actorFrom(c).Role
	if raw := c.Query("role"); raw != "" {
		role = entity.Role(raw)
		if !role.IsValid() {
			h.fail(c, "status_flow", apperr.Validation("role", "unknown role %q", raw))
			return
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: h.timesheets.StatusFlow(status, role)})
}

// GetUser handles GET /api/directory/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.directory.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_user", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// UpsertUser handles PUT /api/directory/users/:id
func (h *Handlers) UpsertUser(c *gin.Context) {
	var req UpsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user := &entity.User{
		ID:        c.Param("id"),
		Name:      req.Name,
		Role:      req.Role,
		ManagerID: req.ManagerID,
	}
	if err := h.directory.UpsertUser(c.Request.Context(), actorFrom(c), user); err != nil {
		h.fail(c, "upsert_user", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// AssignProjectManager handles PUT /api/directory/projects/:project_id/managers/:user_id
func (h *Handlers) AssignProjectManager(c *gin.Context) {
	err := h.directory.AssignProjectManager(c.Request.Context(), actorFrom(c), c.Param("project_id"), c.Param("user_id"))
	if err != nil {
		h.fail(c, "assign_project_manager", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RemoveProjectManager handles DELETE /api/directory/projects/:project_id/managers/:user_id
func (h *Handlers) RemoveProjectManager(c *gin.Context) {
	err := h.directory.RemoveProjectManager(c.Request.Context(), actorFrom(c), c.Param("project_id"), c.Param("user_id"))
	if err != nil {
		h.fail(c, "remove_project_manager", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

func requireRole(actor entity.Actor, role entity.Role, action string) error {
	if actor.Role == role {
		return nil
	}
	return &apperr.PermissionError{
		ActorID: actor.ID,
		Role:    actor.Role.String(),
		Action:  action,
		Status:  "-",
	}
}
