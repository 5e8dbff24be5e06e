package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobsdb/internal/database"
	"jobsdb/internal/errcode"
	"jobsdb/internal/tasks"
	"jobsdb/internal/taxonomy"
)

// 状态通知使用的模板名；模板缺失时退回内置文案，不让通知流程失败。
const statusTemplateName = "application_status_changed"

// NotifyTaskHandler 消费投递状态通知任务：渲染模板并推送到
// 投递人的 Redis 通知频道，由 WebSocket 网关转发。
type NotifyTaskHandler struct {
	db          *gorm.DB
	taxonomy    *taxonomy.Service
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewNotifyTaskHandler 创建任务处理器。
func NewNotifyTaskHandler(db *gorm.DB, taxonomyService *taxonomy.Service, redisClient *redis.Client, logger *slog.Logger) *NotifyTaskHandler {
	return &NotifyTaskHandler{
		db:          db,
		taxonomy:    taxonomyService,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *NotifyTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.ApplicationStatusNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.Uint64("application_id", uint64(payload.ApplicationID)),
		slog.String("status", string(payload.Status)),
	)

	var app database.Application
	err := h.db.WithContext(ctx).
		Preload("User").
		Preload("Job").
		First(&app, payload.ApplicationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("application not found, skipping notification")
			return nil
		}
		log.Error("query application failed", slog.Any("error", err))
		return err
	}

	subject, body, code := h.renderNotification(ctx, app)

	msg := ApplicationStatusNotifyMessage{
		Type:          "application_status",
		ApplicationID: app.ID,
		JobID:         app.JobID,
		JobTitle:      app.Job.Title,
		Status:        string(app.Status),
		Subject:       subject,
		Body:          body,
		ErrorCode:     code,
	}
	if err := h.publish(ctx, app.UserID, msg); err != nil {
		log.Error("publish notification failed", slog.Any("error", err))
		return err
	}

	log.Info("status notification published", slog.Uint64("user_id", uint64(app.UserID)))
	return nil
}

// renderNotification 用通知模板渲染标题与正文。
// 支持的占位符：{{username}}、{{job_title}}、{{status}}。
func (h *NotifyTaskHandler) renderNotification(ctx context.Context, app database.Application) (subject, body string, code int) {
	tpl, err := h.taxonomy.TemplateByName(ctx, statusTemplateName)
	if err != nil {
		if !errors.Is(err, taxonomy.ErrNotFound) {
			h.logger.Error("load notification template failed", slog.Any("error", err))
		}
		subject = fmt.Sprintf("Application update: %s", app.Job.Title)
		body = fmt.Sprintf("Your application for %q is now %s.", app.Job.Title, app.Status)
		return subject, body, errcode.TemplateMissing
	}

	replacer := strings.NewReplacer(
		"{{username}}", app.User.Username,
		"{{job_title}}", app.Job.Title,
		"{{status}}", string(app.Status),
	)
	return replacer.Replace(tpl.Subject), replacer.Replace(tpl.Body), errcode.OK
}

func (h *NotifyTaskHandler) publish(ctx context.Context, userID uint, msg ApplicationStatusNotifyMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notify message: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}
