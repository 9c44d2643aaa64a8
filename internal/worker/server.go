package worker

import (
	"context"
	"fmt"

	"gedvault/internal/config"
	"gedvault/internal/notification"
	"gedvault/internal/worker/handlers"
	"gedvault/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 后台任务服务器：消费通知与清理任务，
// 并按周期调度过期授权清理。
type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

// NewServer 创建任务服务器
func NewServer(
	redisCfg *config.RedisConfig,
	sweepInterval int,
	notifier notification.Notifier,
	sweeper handlers.Sweeper,
	logger *zap.Logger,
) *Server {
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisCfg.Addr(),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"notify":      6,
				"maintenance": 3,
				"default":     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()

	notifyHandler := handlers.NewNotifyHandler(notifier, logger)
	mux.HandleFunc(tasks.TypeNotifyEmail, notifyHandler.HandleNotifyEmail)

	sweepHandler := handlers.NewSweepHandler(sweeper, logger)
	mux.HandleFunc(tasks.TypeSweepExpired, sweepHandler.HandleSweepExpired)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	spec := fmt.Sprintf("@every %ds", sweepInterval)
	if _, err := scheduler.Register(spec, asynq.NewTask(tasks.TypeSweepExpired, nil), asynq.Queue("maintenance")); err != nil {
		logger.Error("注册清理调度失败", zap.Error(err))
	}

	return &Server{
		server:    srv,
		scheduler: scheduler,
		mux:       mux,
		logger:    logger,
	}
}

// Start 非阻塞启动消费与调度
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	return s.scheduler.Start()
}

// Shutdown 停止调度与消费
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.scheduler.Shutdown()
	s.server.Shutdown()
}
