package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
)

// Notifier 通知器接口
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
}

// Notification 通知消息
type Notification struct {
	To      string         `json:"to"`      // 接收者邮箱
	Subject string         `json:"subject"` // 主题
	Body    string         `json:"body"`    // 内容
	Data    map[string]any `json:"data,omitempty"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromAddress string
}

// EmailNotifier SMTP 邮件通知器
type EmailNotifier struct {
	config *EmailConfig
}

// NewEmailNotifier 创建邮件通知器
func NewEmailNotifier(config *EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: config}
}

var emailTemplate = template.Must(template.New("email").Parse(
	"From: {{.From}}\r\n" +
		"To: {{.To}}\r\n" +
		"Subject: {{.Subject}}\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		"{{.Body}}\r\n"))

// Send 发送邮件
func (n *EmailNotifier) Send(ctx context.Context, notification *Notification) error {
	if n.config == nil || n.config.SMTPHost == "" {
		return fmt.Errorf("邮件通知器未配置")
	}
	if notification.To == "" {
		return fmt.Errorf("通知缺少接收者")
	}

	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, map[string]string{
		"From":    n.config.FromAddress,
		"To":      notification.To,
		"Subject": notification.Subject,
		"Body":    notification.Body,
	})
	if err != nil {
		return fmt.Errorf("渲染邮件失败: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", n.config.SMTPHost, n.config.SMTPPort)
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.SMTPHost)
	}

	return smtp.SendMail(addr, auth, n.config.FromAddress, []string{notification.To}, buf.Bytes())
}

// NopNotifier 空通知器，供单测与禁用通知的部署使用
type NopNotifier struct{}

// Send 空操作
func (NopNotifier) Send(ctx context.Context, notification *Notification) error {
	return nil
}
