package handlers

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Sweeper 过期授权清理抽象，便于注入 mock
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepHandler 过期授权清理任务处理器
type SweepHandler struct {
	sweeper Sweeper
	logger  *zap.Logger
}

// NewSweepHandler 创建清理处理器
func NewSweepHandler(sweeper Sweeper, logger *zap.Logger) *SweepHandler {
	return &SweepHandler{
		sweeper: sweeper,
		logger:  logger,
	}
}

// HandleSweepExpired 消费清理任务。已过期授权在读取路径上本就
// 视同不存在，这里只是物理删除，失败不重试。
func (h *SweepHandler) HandleSweepExpired(ctx context.Context, t *asynq.Task) error {
	count, err := h.sweeper.SweepExpired(ctx)
	if err != nil {
		h.logger.Error("过期授权清理失败", zap.Error(err))
		return err
	}

	if count > 0 {
		h.logger.Info("过期授权清理任务完成", zap.Int64("count", count))
	}
	return nil
}
