package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gedvault/internal/config"
	"gedvault/internal/notification"
	"gedvault/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueNotifyEmail(payload tasks.NotifyEmailPayload) error
	EnqueueSweepExpired() error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg *config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueNotifyEmail(payload tasks.NotifyEmailPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeNotifyEmail, data)

	// 邮件发送允许重试，避免 SMTP 瞬时故障丢通知
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(1*time.Minute),
		asynq.Queue("notify"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) EnqueueSweepExpired() error {
	task := asynq.NewTask(tasks.TypeSweepExpired, nil)

	// 清理任务幂等，失败等下一轮调度即可
	_, err := c.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("maintenance"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}

// Dispatcher 把通知投递转换为队列任务，实现 notification.Dispatcher。
// 请求路径只入队，真正的 SMTP 发送在 worker 侧执行。
type Dispatcher struct {
	client Client
}

// NewDispatcher 创建队列投递器
func NewDispatcher(client Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch 入队一封通知邮件
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	return d.client.EnqueueNotifyEmail(tasks.NotifyEmailPayload{
		To:      n.To,
		Subject: n.Subject,
		Body:    n.Body,
		Data:    n.Data,
	})
}
