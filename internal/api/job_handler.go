package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobsdb/internal/api/middleware"
	"jobsdb/internal/database"
	"jobsdb/internal/jobs"
)

// JobHandler 负责职位目录的 HTTP 接口。
type JobHandler struct {
	Jobs   *jobs.Service
	Logger *slog.Logger
}

// NewJobHandler 返回 JobHandler 实例。
func NewJobHandler(jobsService *jobs.Service, logger *slog.Logger) *JobHandler {
	return &JobHandler{Jobs: jobsService, Logger: logger}
}

type jobPayload struct {
	Title        string `json:"title" binding:"required,max=120"`
	Description  string `json:"description" binding:"required"`
	Requirements string `json:"requirements"`
	Location     string `json:"location" binding:"required,max=120"`
	Salary       string `json:"salary" binding:"max=64"`
	ContactInfo  string `json:"contact_info" binding:"max=120"`
}

func (p jobPayload) fields() jobs.Fields {
	return jobs.Fields{
		Title:        p.Title,
		Description:  p.Description,
		Requirements: p.Requirements,
		Location:     p.Location,
		Salary:       p.Salary,
		ContactInfo:  p.ContactInfo,
	}
}

func jobSummary(job database.Job) gin.H {
	return gin.H{
		"id":         job.ID,
		"title":      job.Title,
		"location":   job.Location,
		"salary":     job.Salary,
		"created_at": job.CreatedAt,
	}
}

func jobDetail(job database.Job) gin.H {
	skills := make([]string, 0, len(job.Skills))
	for _, s := range job.Skills {
		skills = append(skills, s.Name)
	}
	languages := make([]string, 0, len(job.Languages))
	for _, l := range job.Languages {
		languages = append(languages, l.Name)
	}
	tags := make([]gin.H, 0, len(job.Tags))
	for _, t := range job.Tags {
		tags = append(tags, gin.H{"id": t.ID, "name": t.Name})
	}
	return gin.H{
		"id":           job.ID,
		"title":        job.Title,
		"description":  job.Description,
		"requirements": job.Requirements,
		"location":     job.Location,
		"salary":       job.Salary,
		"contact_info": job.ContactInfo,
		"skills":       skills,
		"languages":    languages,
		"tags":         tags,
		"created_at":   job.CreatedAt,
		"updated_at":   job.UpdatedAt,
	}
}

func jobSummaries(list []database.Job) []gin.H {
	items := make([]gin.H, 0, len(list))
	for _, job := range list {
		items = append(items, jobSummary(job))
	}
	return items
}

// Latest 返回最新发布的职位列表。
func (h *JobHandler) Latest(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	list, err := h.Jobs.Latest(c.Request.Context(), limit)
	if err != nil {
		h.loggerFor(c).Error("list latest jobs", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": jobSummaries(list)})
}

// Search 按标题、地点、薪资子串过滤职位。
func (h *JobHandler) Search(c *gin.Context) {
	q := jobs.SearchQuery{
		Title:    c.Query("title"),
		Location: c.Query("location"),
		Salary:   c.Query("salary"),
	}

	list, err := h.Jobs.Search(c.Request.Context(), q)
	if err != nil {
		h.loggerFor(c).Error("search jobs", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": jobSummaries(list)})
}

// Get 返回单个职位详情。
func (h *JobHandler) Get(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.Jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			NotFound(c, "job not found")
			return
		}
		h.loggerFor(c).Error("get job", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, jobDetail(job))
}

// Similar 返回同地点或同系列职位的推荐。
func (h *JobHandler) Similar(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	list, err := h.Jobs.SimilarTo(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			NotFound(c, "job not found")
			return
		}
		h.loggerFor(c).Error("similar jobs", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": jobSummaries(list)})
}

// Create 发布新职位（管理员）。
func (h *JobHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req jobPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	job, err := h.Jobs.Create(c.Request.Context(), actor, req.fields())
	if err != nil {
		h.replyJobError(c, err, "create job")
		return
	}

	h.loggerFor(c).Info("job created", slog.Uint64("job_id", uint64(job.ID)))
	c.JSON(http.StatusCreated, jobDetail(job))
}

// Update 覆盖职位字段（管理员）。
func (h *JobHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req jobPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	job, err := h.Jobs.Update(c.Request.Context(), actor, jobID, req.fields())
	if err != nil {
		h.replyJobError(c, err, "update job")
		return
	}
	c.JSON(http.StatusOK, jobDetail(job))
}

// Delete 删除职位及其关联数据（管理员）。
func (h *JobHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	if err := h.Jobs.Delete(c.Request.Context(), actor, jobID); err != nil {
		h.replyJobError(c, err, "delete job")
		return
	}

	h.loggerFor(c).Info("job deleted", slog.Uint64("job_id", uint64(jobID)))
	c.Status(http.StatusNoContent)
}

type namesPayload struct {
	Names []string `json:"names" binding:"required,max=32,dive,required,max=64"`
}

// ReplaceSkills 整体替换职位的技能要求（管理员）。
func (h *JobHandler) ReplaceSkills(c *gin.Context) {
	h.replaceNames(c, h.Jobs.ReplaceSkills, "replace skills")
}

// ReplaceLanguages 整体替换职位的语言要求（管理员）。
func (h *JobHandler) ReplaceLanguages(c *gin.Context) {
	h.replaceNames(c, h.Jobs.ReplaceLanguages, "replace languages")
}

type tagIDsPayload struct {
	TagIDs []uint `json:"tag_ids" binding:"required,max=32"`
}

// ReplaceTags 整体替换职位关联的标签（管理员）。
func (h *JobHandler) ReplaceTags(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req tagIDsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if err := h.Jobs.ReplaceTags(c.Request.Context(), actor, jobID, req.TagIDs); err != nil {
		h.replyJobError(c, err, "replace tags")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *JobHandler) replaceNames(c *gin.Context, replace func(ctx context.Context, actor database.User, jobID uint, names []string) error, op string) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req namesPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if err := replace(c.Request.Context(), actor, jobID, req.Names); err != nil {
		h.replyJobError(c, err, op)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *JobHandler) jobIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "invalid job id")
		return 0, false
	}
	return uint(id), true
}

func (h *JobHandler) replyJobError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, jobs.ErrUnauthorized):
		Forbidden(c, "admin role required")
	case errors.Is(err, jobs.ErrNotFound):
		NotFound(c, "not found")
	default:
		h.loggerFor(c).Error(op, slog.Any("error", err))
		Internal(c, "internal error")
	}
}

func (h *JobHandler) loggerFor(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
