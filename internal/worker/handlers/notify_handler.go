package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"gedvault/internal/notification"
	"gedvault/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NotifyHandler 邮件通知任务处理器
type NotifyHandler struct {
	notifier notification.Notifier
	logger   *zap.Logger
}

// NewNotifyHandler 创建通知处理器
func NewNotifyHandler(notifier notification.Notifier, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// HandleNotifyEmail 消费邮件通知任务，失败返回错误交给队列重试
func (h *NotifyHandler) HandleNotifyEmail(ctx context.Context, t *asynq.Task) error {
	var p tasks.NotifyEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	err := h.notifier.Send(ctx, &notification.Notification{
		To:      p.To,
		Subject: p.Subject,
		Body:    p.Body,
		Data:    p.Data,
	})
	if err != nil {
		h.logger.Error("邮件发送失败",
			zap.String("to", p.To),
			zap.String("subject", p.Subject),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("邮件发送完成",
		zap.String("to", p.To),
		zap.String("subject", p.Subject),
	)
	return nil
}
