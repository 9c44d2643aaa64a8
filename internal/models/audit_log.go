package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog 审计日志。由业务操作 fire-and-forget 写入，
// 写入失败不阻塞也不回滚触发它的权限/审批变更。
type AuditLog struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string         `gorm:"type:uuid;index" json:"user_id"`
	Action      string         `gorm:"type:varchar(100);not null;index" json:"action"`
	EntityTable string         `gorm:"type:varchar(100);not null" json:"entity_table"`
	EntityID    string         `gorm:"type:varchar(64);index" json:"entity_id"`
	Data        datatypes.JSON `json:"data,omitempty"`
	IP          string         `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent   string         `gorm:"type:varchar(500)" json:"user_agent,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_logs"
}
