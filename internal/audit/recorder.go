package audit

import (
	"context"
	"encoding/json"
	"time"

	"gedvault/internal/logger"
	"gedvault/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry 审计条目
type Entry struct {
	ActorID     string
	Action      string
	EntityTable string
	EntityID    string
	Data        any
	IP          string
	UserAgent   string
}

// Recorder 审计记录接口。审计属于可观测性而非事务参与方：
// 实现必须自行吞掉失败，绝不向调用方返回错误。
type Recorder interface {
	LogAction(ctx context.Context, entry Entry)
}

// DBRecorder 将审计事件写入 audit_logs 表
type DBRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDBRecorder 创建基于数据库的审计记录器
func NewDBRecorder(db *gorm.DB) *DBRecorder {
	return &DBRecorder{db: db, logger: logger.Get()}
}

// LogAction 写入一条审计记录，失败时仅记录告警日志
func (r *DBRecorder) LogAction(ctx context.Context, entry Entry) {
	var data datatypes.JSON
	if entry.Data != nil {
		if b, err := json.Marshal(entry.Data); err == nil {
			data = datatypes.JSON(b)
		}
	}

	log := &models.AuditLog{
		UserID:      entry.ActorID,
		Action:      entry.Action,
		EntityTable: entry.EntityTable,
		EntityID:    entry.EntityID,
		Data:        data,
		IP:          entry.IP,
		UserAgent:   entry.UserAgent,
		CreatedAt:   time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		r.logger.Warn("审计日志写入失败",
			zap.String("action", entry.Action),
			zap.String("actor_id", entry.ActorID),
			zap.Error(err),
		)
	}
}

// NopRecorder 空实现，供单测与禁用审计的部署使用
type NopRecorder struct{}

// LogAction 空操作
func (NopRecorder) LogAction(ctx context.Context, entry Entry) {}
