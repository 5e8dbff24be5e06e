package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobsdb/internal/api/middleware"
	"jobsdb/internal/applications"
	"jobsdb/internal/database"
	"jobsdb/internal/identity"
	"jobsdb/internal/jobs"
)

// AdminHandler 负责账号管理与运营统计的管理员接口。
type AdminHandler struct {
	Identity     *identity.Service
	Jobs         *jobs.Service
	Applications *applications.Service
	Logger       *slog.Logger
}

// NewAdminHandler 返回 AdminHandler 实例。
func NewAdminHandler(identityService *identity.Service, jobsService *jobs.Service, applicationService *applications.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		Identity:     identityService,
		Jobs:         jobsService,
		Applications: applicationService,
		Logger:       logger,
	}
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetUserRole 修改账号角色（管理员）。
func (h *AdminHandler) SetUserRole(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	userID, ok := h.userIDParam(c)
	if !ok {
		return
	}

	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	err := h.Identity.SetRole(c.Request.Context(), actor, userID, database.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUnauthorized):
			Forbidden(c, "admin role required")
		case errors.Is(err, identity.ErrInvalidRole):
			BadRequest(c, "unrecognized role")
		case errors.Is(err, identity.ErrNotFound):
			NotFound(c, "user not found")
		default:
			h.loggerFor(c).Error("set user role", slog.Any("error", err))
			Internal(c, "internal error")
		}
		return
	}

	h.loggerFor(c).Info("user role changed",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("role", req.Role),
	)
	c.Status(http.StatusNoContent)
}

// DeleteUser 删除账号及其简历与投递记录（管理员）。
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	userID, ok := h.userIDParam(c)
	if !ok {
		return
	}

	if err := h.Identity.Delete(c.Request.Context(), actor, userID); err != nil {
		switch {
		case errors.Is(err, identity.ErrUnauthorized):
			Forbidden(c, "admin role required")
		case errors.Is(err, identity.ErrNotFound):
			NotFound(c, "user not found")
		default:
			h.loggerFor(c).Error("delete user", slog.Any("error", err))
			Internal(c, "internal error")
		}
		return
	}

	h.loggerFor(c).Info("user deleted", slog.Uint64("user_id", uint64(userID)))
	c.Status(http.StatusNoContent)
}

// Stats 返回运营概览计数（管理员）。
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.Identity.CountUsers(ctx)
	if err != nil {
		h.loggerFor(c).Error("count users", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	jobCount, err := h.Jobs.CountAll(ctx)
	if err != nil {
		h.loggerFor(c).Error("count jobs", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	applicationCount, err := h.Applications.CountAll(ctx)
	if err != nil {
		h.loggerFor(c).Error("count applications", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":        users,
		"jobs":         jobCount,
		"applications": applicationCount,
	})
}

func (h *AdminHandler) userIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "invalid user id")
		return 0, false
	}
	return uint(id), true
}

func (h *AdminHandler) loggerFor(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
