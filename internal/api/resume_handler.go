package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jobsdb/internal/api/middleware"
	"jobsdb/internal/database"
	"jobsdb/internal/resume"
	"jobsdb/internal/storage"
)

// 允许上传的简历附件扩展名。
var allowedAttachmentExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// ResumeHandler 负责简历档案与附件的 HTTP 接口。
type ResumeHandler struct {
	Resume       *resume.Service
	Storage      *storage.Client
	Logger       *slog.Logger
	ClamdAddr    string
	MaxUploadLen int64
}

// NewResumeHandler 返回 ResumeHandler 实例。
func NewResumeHandler(resumeService *resume.Service, storageClient *storage.Client, logger *slog.Logger, clamdAddr string, maxUploadLen int64) *ResumeHandler {
	return &ResumeHandler{
		Resume:       resumeService,
		Storage:      storageClient,
		Logger:       logger,
		ClamdAddr:    clamdAddr,
		MaxUploadLen: maxUploadLen,
	}
}

type resumePayload struct {
	Name         string `json:"name" binding:"required,max=80"`
	Gender       string `json:"gender" binding:"max=16"`
	Age          int    `json:"age" binding:"omitempty,min=16,max=100"`
	Education    string `json:"education" binding:"max=120"`
	Contact      string `json:"contact" binding:"required,max=120"`
	Experience   string `json:"experience"`
	Introduction string `json:"introduction"`
}

func resumeView(r database.Resume) gin.H {
	return gin.H{
		"name":           r.Name,
		"gender":         r.Gender,
		"age":            r.Age,
		"education":      r.Education,
		"contact":        r.Contact,
		"experience":     r.Experience,
		"introduction":   r.Introduction,
		"has_attachment": r.AttachmentKey != "",
		"updated_at":     r.UpdatedAt,
	}
}

// GetResume 返回当前用户的简历。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	r, err := h.Resume.GetByUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			NotFound(c, "resume not found")
			return
		}
		h.loggerFor(c).Error("get resume", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, resumeView(r))
}

// PutResume 创建或整体覆盖当前用户的简历。
func (h *ResumeHandler) PutResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req resumePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	r, err := h.Resume.Upsert(c.Request.Context(), userID, resume.Fields{
		Name:         req.Name,
		Gender:       req.Gender,
		Age:          req.Age,
		Education:    req.Education,
		Contact:      req.Contact,
		Experience:   req.Experience,
		Introduction: req.Introduction,
	})
	if err != nil {
		h.loggerFor(c).Error("upsert resume", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, resumeView(r))
}

// UploadAttachment 上传简历附件，扫描病毒后存入对象存储。
func (h *ResumeHandler) UploadAttachment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if h.MaxUploadLen > 0 && file.Size > h.MaxUploadLen {
		BadRequest(c, "file too large")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedAttachmentExtensions[ext] {
		BadRequest(c, "unsupported file type")
		return
	}

	clamdClient := clamd.NewClamd(h.ClamdAddr)

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	fileReader.Close()
	if err != nil {
		h.loggerFor(c).Error("scan attachment", slog.String("error", err.Error()))
		Internal(c, "failed to scan file")
		return
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	fileReader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	objectKey := fmt.Sprintf("resume-attachments/%d/%s%s", userID, uuid.NewString(), ext)
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := h.Storage.UploadFile(c.Request.Context(), objectKey, fileReader, file.Size, contentType); err != nil {
		h.loggerFor(c).Error("upload attachment", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	r, err := h.Resume.SetAttachment(c.Request.Context(), userID, objectKey)
	if err != nil {
		// 没有简历就没有附件可挂；上传的对象顺手清掉。
		if delErr := h.Storage.DeleteObject(c.Request.Context(), objectKey); delErr != nil {
			h.loggerFor(c).Warn("cleanup orphan attachment", slog.String("objectKey", objectKey), slog.Any("error", delErr))
		}
		if errors.Is(err, resume.ErrNotFound) {
			Conflict(c, "create a resume before uploading an attachment")
			return
		}
		h.loggerFor(c).Error("set attachment", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.loggerFor(c).Info("attachment uploaded",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("objectKey", objectKey),
	)
	c.JSON(http.StatusCreated, gin.H{
		"objectKey":  objectKey,
		"updated_at": r.UpdatedAt,
	})
}

// GetAttachmentLink 返回当前附件的预签名下载链接。
func (h *ResumeHandler) GetAttachmentLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	r, err := h.Resume.GetByUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, resume.ErrNotFound) {
			NotFound(c, "resume not found")
			return
		}
		h.loggerFor(c).Error("get resume for attachment", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if r.AttachmentKey == "" {
		NotFound(c, "no attachment on file")
		return
	}

	url, err := h.Storage.GeneratePresignedURL(c.Request.Context(), r.AttachmentKey, 10*time.Minute)
	if err != nil {
		h.loggerFor(c).Error("generate attachment url", slog.String("objectKey", r.AttachmentKey), slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int((10 * time.Minute).Seconds()),
	})
}

func (h *ResumeHandler) loggerFor(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
