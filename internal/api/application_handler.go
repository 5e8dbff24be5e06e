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
)

// ApplicationHandler 负责投递记录的 HTTP 接口。
type ApplicationHandler struct {
	Applications *applications.Service
	Logger       *slog.Logger
}

// NewApplicationHandler 返回 ApplicationHandler 实例。
func NewApplicationHandler(applicationService *applications.Service, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{Applications: applicationService, Logger: logger}
}

type applyRequest struct {
	JobID uint `json:"job_id" binding:"required"`
}

func applicationView(app database.Application) gin.H {
	view := gin.H{
		"id":         app.ID,
		"job_id":     app.JobID,
		"status":     app.Status,
		"created_at": app.CreatedAt,
		"updated_at": app.UpdatedAt,
	}
	if app.Job.ID != 0 {
		view["job"] = gin.H{
			"id":       app.Job.ID,
			"title":    app.Job.Title,
			"location": app.Job.Location,
		}
	}
	return view
}

func adminApplicationView(app database.Application) gin.H {
	view := applicationView(app)
	view["user_id"] = app.UserID
	view["resume_id"] = app.ResumeID
	if app.User.ID != 0 {
		view["applicant"] = gin.H{
			"id":       app.User.ID,
			"username": app.User.Username,
			"email":    app.User.Email,
		}
	}
	return view
}

// Apply 以当前简历投递指定职位。
func (h *ApplicationHandler) Apply(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	app, err := h.Applications.Apply(c.Request.Context(), userID, req.JobID)
	if err != nil {
		switch {
		case errors.Is(err, applications.ErrNoResumeOnFile):
			Conflict(c, "create a resume before applying")
		case errors.Is(err, applications.ErrAlreadyApplied):
			Conflict(c, "already applied to this job")
		case errors.Is(err, applications.ErrNotFound):
			NotFound(c, "job not found")
		default:
			h.loggerFor(c).Error("apply", slog.Any("error", err))
			Internal(c, "internal error")
		}
		return
	}

	h.loggerFor(c).Info("application created",
		slog.Uint64("application_id", uint64(app.ID)),
		slog.Uint64("job_id", uint64(app.JobID)),
	)
	c.JSON(http.StatusCreated, applicationView(app))
}

// ListMine 返回当前用户的全部投递记录，按时间倒序。
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	list, err := h.Applications.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.loggerFor(c).Error("list my applications", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]gin.H, 0, len(list))
	for _, app := range list {
		items = append(items, applicationView(app))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Get 返回单条投递记录，仅本人或管理员可见。
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	appID, ok := h.applicationIDParam(c)
	if !ok {
		return
	}

	app, err := h.Applications.Get(c.Request.Context(), actor, appID)
	if err != nil {
		switch {
		case errors.Is(err, applications.ErrNotFound):
			NotFound(c, "application not found")
		case errors.Is(err, applications.ErrUnauthorized):
			Forbidden(c, "not your application")
		default:
			h.loggerFor(c).Error("get application", slog.Any("error", err))
			Internal(c, "internal error")
		}
		return
	}

	if actor.Role == database.RoleAdmin {
		c.JSON(http.StatusOK, adminApplicationView(app))
		return
	}
	c.JSON(http.StatusOK, applicationView(app))
}

// ListAll 返回全部投递记录（管理员）。
func (h *ApplicationHandler) ListAll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	list, err := h.Applications.ListAll(c.Request.Context(), actor)
	if err != nil {
		if errors.Is(err, applications.ErrUnauthorized) {
			Forbidden(c, "admin role required")
			return
		}
		h.loggerFor(c).Error("list all applications", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]gin.H, 0, len(list))
	for _, app := range list {
		items = append(items, adminApplicationView(app))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus 修改投递状态并触发通知（管理员）。
func (h *ApplicationHandler) SetStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	appID, ok := h.applicationIDParam(c)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	app, err := h.Applications.SetStatus(c.Request.Context(), actor, appID, database.ApplicationStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, applications.ErrInvalidStatus):
			BadRequest(c, "unrecognized status")
		case errors.Is(err, applications.ErrUnauthorized):
			Forbidden(c, "admin role required")
		case errors.Is(err, applications.ErrNotFound):
			NotFound(c, "application not found")
		default:
			h.loggerFor(c).Error("set application status", slog.Any("error", err))
			Internal(c, "internal error")
		}
		return
	}

	h.loggerFor(c).Info("application status changed",
		slog.Uint64("application_id", uint64(app.ID)),
		slog.String("status", string(app.Status)),
	)
	c.JSON(http.StatusOK, adminApplicationView(app))
}

func (h *ApplicationHandler) applicationIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "invalid application id")
		return 0, false
	}
	return uint(id), true
}

func (h *ApplicationHandler) loggerFor(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
