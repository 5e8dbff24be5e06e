package worker

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type ApplicationStatusNotifyMessage struct {
	Type          string `json:"type"`
	ApplicationID uint   `json:"application_id"`
	JobID         uint   `json:"job_id"`
	JobTitle      string `json:"job_title"`
	Status        string `json:"status"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	ErrorCode     int    `json:"error_code"`
}
