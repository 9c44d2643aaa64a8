package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gedvault/internal/logger"
	"gedvault/internal/models"

	"go.uber.org/zap"
)

// Dispatcher 通知投递抽象。生产环境由任务队列实现（异步投递），
// 开发与测试可用 DirectDispatcher 同步发送。队列自带启停生命周期，
// 审批与共享的请求路径只负责入队，不在网络 I/O 上阻塞。
type Dispatcher interface {
	Dispatch(ctx context.Context, notification *Notification) error
}

// DirectDispatcher 同步投递，直接调用底层通知器
type DirectDispatcher struct {
	notifier Notifier
}

// NewDirectDispatcher 创建同步投递器
func NewDirectDispatcher(notifier Notifier) *DirectDispatcher {
	return &DirectDispatcher{notifier: notifier}
}

// Dispatch 直接发送
func (d *DirectDispatcher) Dispatch(ctx context.Context, notification *Notification) error {
	return d.notifier.Send(ctx, notification)
}

// UserLookup 收件人解析接口，由用户协作方实现
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Service 面向权限与审批子系统的通知服务。
// 所有方法均为尽力而为：任何失败只记日志并吞掉，
// 绝不掩盖已提交的状态变更。
type Service struct {
	dispatcher Dispatcher
	users      UserLookup
	logger     *zap.Logger
}

// NewService 创建通知服务
func NewService(dispatcher Dispatcher, users UserLookup) *Service {
	return &Service{
		dispatcher: dispatcher,
		users:      users,
		logger:     logger.Get(),
	}
}

// NotifyShare 文档共享通知
func (s *Service) NotifyShare(ctx context.Context, doc *models.Document, fromUserID, toUserID string, kinds []models.PermissionKind, expiresAt *time.Time) {
	kindNames := make([]string, 0, len(kinds))
	for _, k := range kinds {
		kindNames = append(kindNames, string(k))
	}

	body := fmt.Sprintf("文档 %q 已共享给您，授予权限: %s。", doc.Name, strings.Join(kindNames, ", "))
	if expiresAt != nil {
		body += fmt.Sprintf(" 有效期至 %s。", expiresAt.UTC().Format(time.RFC3339))
	}

	s.send(ctx, toUserID, fmt.Sprintf("文档共享: %s", doc.Name), body, map[string]any{
		"document_id": doc.ID,
		"from_user":   fromUserID,
		"kinds":       kindNames,
	})
}

// NotifyWorkflowSubmission 通知阶段审批人有待审批文档
func (s *Service) NotifyWorkflowSubmission(ctx context.Context, doc *models.Document, approverID, workflowID, submitterID string) {
	body := fmt.Sprintf("文档 %q 已提交审批，等待您的处理。", doc.Name)
	s.send(ctx, approverID, fmt.Sprintf("待审批: %s", doc.Name), body, map[string]any{
		"document_id":  doc.ID,
		"workflow_id":  workflowID,
		"submitted_by": submitterID,
	})
}

// NotifyWorkflowApproved 通知提交人审批通过
func (s *Service) NotifyWorkflowApproved(ctx context.Context, doc *models.Document, approverID, submitterID, workflowID, comment string) {
	body := fmt.Sprintf("文档 %q 审批通过。审批意见: %s", doc.Name, comment)
	s.send(ctx, submitterID, fmt.Sprintf("审批通过: %s", doc.Name), body, map[string]any{
		"document_id": doc.ID,
		"workflow_id": workflowID,
		"approver_id": approverID,
	})
}

// NotifyWorkflowRejected 通知提交人审批被拒
func (s *Service) NotifyWorkflowRejected(ctx context.Context, doc *models.Document, approverID, submitterID, workflowID, comment string) {
	body := fmt.Sprintf("文档 %q 审批被拒绝。拒绝原因: %s", doc.Name, comment)
	s.send(ctx, submitterID, fmt.Sprintf("审批被拒: %s", doc.Name), body, map[string]any{
		"document_id": doc.ID,
		"workflow_id": workflowID,
		"approver_id": approverID,
	})
}

// send 解析收件人并投递，失败只告警
func (s *Service) send(ctx context.Context, userID, subject, body string, data map[string]any) {
	if s.dispatcher == nil {
		return
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn("通知收件人解析失败",
			zap.String("user_id", userID),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}

	notification := &Notification{
		To:      user.Email,
		Subject: subject,
		Body:    body,
		Data:    data,
	}

	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		s.logger.Warn("通知投递失败",
			zap.String("user_id", userID),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
