package api

import (
	"time"

	"gedvault/internal/audit"
	"gedvault/internal/auth"
	"gedvault/internal/config"
	"gedvault/internal/infra/queue"
	"gedvault/internal/models"
	"gedvault/internal/notification"
	"gedvault/internal/permission"
	"gedvault/internal/workflow"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	DB          *gorm.DB
	JWTService  *auth.JWTService
	Users       *models.UserService
	Documents   *models.DocumentService
	Permissions *permission.Service
	Workflows   *workflow.Service
	Engine      *workflow.Engine
	Notifier    notification.Notifier
}

// NewAppContainer 组装全部服务。通知配置启用时经任务队列异步投递，
// 否则禁用通知（NopNotifier 仅供 worker 消费遗留任务）。
func NewAppContainer(cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient, queueClient queue.Client) *AppContainer {
	users := models.NewUserService(db)
	documents := models.NewDocumentService(db)
	auditor := audit.NewDBRecorder(db)

	var notifier notification.Notifier = notification.NopNotifier{}
	if cfg.Notify.Enabled {
		notifier = notification.NewEmailNotifier(&notification.EmailConfig{
			SMTPHost:    cfg.Notify.SMTPHost,
			SMTPPort:    cfg.Notify.SMTPPort,
			Username:    cfg.Notify.SMTPUser,
			Password:    cfg.Notify.SMTPPass,
			FromAddress: cfg.Notify.FromAddress,
		})
	}

	var dispatcher notification.Dispatcher
	if queueClient != nil {
		dispatcher = queue.NewDispatcher(queueClient)
	} else {
		dispatcher = notification.NewDirectDispatcher(notifier)
	}
	notifySvc := notification.NewService(dispatcher, users)

	evaluator := permission.NewEvaluator(db)
	permissions := permission.NewService(db, evaluator, users,
		permission.WithAuditor(auditor),
		permission.WithNotifier(notifySvc),
	)

	workflows := workflow.NewService(db)
	engine := workflow.NewEngine(db, workflows, documents,
		workflow.WithAuditor(auditor),
		workflow.WithNotifier(notifySvc),
	)

	jwtService := auth.NewJWTService(
		cfg.Auth.JWTSecret,
		cfg.Auth.Issuer,
		time.Duration(cfg.Auth.AccessExpiry)*time.Second,
		rdb,
	)

	return &AppContainer{
		DB:          db,
		JWTService:  jwtService,
		Users:       users,
		Documents:   documents,
		Permissions: permissions,
		Workflows:   workflows,
		Engine:      engine,
		Notifier:    notifier,
	}
}
