package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobsdb/internal/api/middleware"
	"jobsdb/internal/database"
	"jobsdb/internal/taxonomy"
)

// TaxonomyHandler 负责字典数据与通知模板的 HTTP 接口。
type TaxonomyHandler struct {
	Taxonomy *taxonomy.Service
	Logger   *slog.Logger
}

// NewTaxonomyHandler 返回 TaxonomyHandler 实例。
func NewTaxonomyHandler(taxonomyService *taxonomy.Service, logger *slog.Logger) *TaxonomyHandler {
	return &TaxonomyHandler{Taxonomy: taxonomyService, Logger: logger}
}

type taxonomyItemRequest struct {
	Name   string `json:"name" binding:"required,max=80"`
	Detail string `json:"detail" binding:"max=255"`
}

// List 返回某一类字典条目，登录即可访问。
func (h *TaxonomyHandler) List(c *gin.Context) {
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}

	items, err := h.Taxonomy.List(c.Request.Context(), kind)
	if err != nil {
		h.loggerFor(c).Error("list reference data", slog.String("kind", string(kind)), slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Create 新增字典条目（管理员）。
func (h *TaxonomyHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}

	var req taxonomyItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	item, err := h.Taxonomy.Create(c.Request.Context(), actor, kind, req.Name, req.Detail)
	if err != nil {
		h.replyTaxonomyError(c, err, "create reference data")
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Update 修改字典条目（管理员）。
func (h *TaxonomyHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	var req taxonomyItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	item, err := h.Taxonomy.Update(c.Request.Context(), actor, kind, id, req.Name, req.Detail)
	if err != nil {
		h.replyTaxonomyError(c, err, "update reference data")
		return
	}
	c.JSON(http.StatusOK, item)
}

// Delete 删除字典条目（管理员）。
func (h *TaxonomyHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	kind, ok := h.kindParam(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	if err := h.Taxonomy.Delete(c.Request.Context(), actor, kind, id); err != nil {
		h.replyTaxonomyError(c, err, "delete reference data")
		return
	}
	c.Status(http.StatusNoContent)
}

type templateRequest struct {
	Name         string   `json:"name" binding:"required,max=80"`
	Subject      string   `json:"subject" binding:"required,max=200"`
	Body         string   `json:"body" binding:"required"`
	Placeholders []string `json:"placeholders" binding:"max=16,dive,required,max=40"`
}

func templateView(tpl database.NotificationTemplate) gin.H {
	var placeholders []string
	if len(tpl.Placeholders) > 0 {
		_ = json.Unmarshal(tpl.Placeholders, &placeholders)
	}
	return gin.H{
		"name":         tpl.Name,
		"subject":      tpl.Subject,
		"body":         tpl.Body,
		"placeholders": placeholders,
		"updated_at":   tpl.UpdatedAt,
	}
}

// UpsertTemplate 创建或覆盖通知模板（管理员）。
func (h *TaxonomyHandler) UpsertTemplate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	tpl, err := h.Taxonomy.UpsertTemplate(c.Request.Context(), actor, req.Name, req.Subject, req.Body, req.Placeholders)
	if err != nil {
		h.replyTaxonomyError(c, err, "upsert template")
		return
	}
	c.JSON(http.StatusOK, templateView(tpl))
}

// ListTemplates 列出全部通知模板（管理员）。
func (h *TaxonomyHandler) ListTemplates(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	tpls, err := h.Taxonomy.ListTemplates(c.Request.Context(), actor)
	if err != nil {
		h.replyTaxonomyError(c, err, "list templates")
		return
	}

	items := make([]gin.H, 0, len(tpls))
	for _, tpl := range tpls {
		items = append(items, templateView(tpl))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// DeleteTemplate 删除通知模板（管理员）。
func (h *TaxonomyHandler) DeleteTemplate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	name := c.Param("name")
	if name == "" {
		BadRequest(c, "template name required")
		return
	}

	if err := h.Taxonomy.DeleteTemplate(c.Request.Context(), actor, name); err != nil {
		h.replyTaxonomyError(c, err, "delete template")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaxonomyHandler) kindParam(c *gin.Context) (taxonomy.Kind, bool) {
	kind, err := taxonomy.ParseKind(c.Param("kind"))
	if err != nil {
		BadRequest(c, "unknown reference data kind")
		return "", false
	}
	return kind, true
}

func (h *TaxonomyHandler) idParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func (h *TaxonomyHandler) replyTaxonomyError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, taxonomy.ErrUnauthorized):
		Forbidden(c, "admin role required")
	case errors.Is(err, taxonomy.ErrDuplicateName):
		Conflict(c, "name already exists")
	case errors.Is(err, taxonomy.ErrNotFound):
		NotFound(c, "not found")
	case errors.Is(err, taxonomy.ErrUnknownKind):
		BadRequest(c, "unknown reference data kind")
	default:
		h.loggerFor(c).Error(op, slog.Any("error", err))
		Internal(c, "internal error")
	}
}

func (h *TaxonomyHandler) loggerFor(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
