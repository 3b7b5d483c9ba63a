package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
	"github.com/garyjia/timesheet-approval/internal/domain/entity"
)

// ActorHeader carries the id of the user a request acts as. Authentication
// happens upstream; the role always comes from the directory.
const ActorHeader = "X-User-ID"

const actorKey = "actor"

func actorMiddleware(identity port.IdentityLookup, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ActorHeader)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing " + ActorHeader + " header",
			})
			return
		}

		role, err := identity.RoleOf(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
					Success: false,
					Error:   "unknown user",
				})
				return
			}
			logger.Error("Failed to resolve actor", "actor_id", id, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "failed to resolve actor",
			})
			return
		}

		c.Set(actorKey, entity.Actor{ID: id, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}

// statusFor maps the domain error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrDuplicateTimesheet):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}

	resp := Response{Success: false, Error: msg}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		resp.Data = ValidationDetail{
			Field:   verr.Field,
			Date:    verr.Date,
			Limit:   verr.Limit,
			Current: verr.Current,
			Adding:  verr.Adding,
			Total:   verr.Total,
		}
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}
