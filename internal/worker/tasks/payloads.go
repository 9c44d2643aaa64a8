package tasks

// 任务类型
const (
	TypeNotifyEmail  = "notify:email"
	TypeSweepExpired = "permission:sweep_expired"
)

// NotifyEmailPayload 邮件通知任务载荷
type NotifyEmailPayload struct {
	To      string         `json:"to"`
	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`
}

// SweepExpiredPayload 过期授权清理任务载荷。
// 清理是全表维度的，无参数，保留结构体便于日后加分片字段。
type SweepExpiredPayload struct{}
