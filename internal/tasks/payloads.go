package tasks

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"jobsdb/internal/database"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeApplicationStatusNotify = "application:status_notify"
)

// ApplicationStatusNotifyPayload 描述投递状态通知所需的最小信息。
// worker 重新查库取最新数据，payload 只携带定位字段与触发时的状态。
type ApplicationStatusNotifyPayload struct {
	ApplicationID uint                       `json:"application_id"`
	Status        database.ApplicationStatus `json:"status"`
}

// NewApplicationStatusNotifyTask 构造投递状态通知任务。
func NewApplicationStatusNotifyTask(applicationID uint, status database.ApplicationStatus) (*asynq.Task, error) {
	payload, err := json.Marshal(ApplicationStatusNotifyPayload{
		ApplicationID: applicationID,
		Status:        status,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeApplicationStatusNotify, payload), nil
}

// AsynqNotifier 通过 asynq 队列投递状态通知，实现 applications.StatusNotifier。
type AsynqNotifier struct {
	client *asynq.Client
}

// NewAsynqNotifier 构造通知入队器。
func NewAsynqNotifier(client *asynq.Client) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

// NotifyStatusChanged 将状态变更通知入队，最多重试 5 次。
func (n *AsynqNotifier) NotifyStatusChanged(ctx context.Context, app database.Application) error {
	task, err := NewApplicationStatusNotifyTask(app.ID, app.Status)
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	return err
}
