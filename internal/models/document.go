package models

import (
	"context"
	"errors"
	"time"

	"gedvault/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 文档状态
const (
	DocumentStatusActive   = "active"
	DocumentStatusArchived = "archived"
	DocumentStatusDeleted  = "deleted"
)

// Document 文档元数据。文件内容与版本管理由外部存储服务负责，
// 本子系统只消费文档身份、所有者与状态。
type Document struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(500);not null" json:"name"`
	OwnerID   string    `gorm:"type:uuid;not null;index:idx_doc_owner" json:"owner_id"`
	Status    string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// IsActive 文档是否处于活跃状态
func (d *Document) IsActive() bool {
	return d.Status == DocumentStatusActive
}

// DocumentService 文档协作方，只读提供文档身份与所有者信息
type DocumentService struct {
	db *gorm.DB
}

// NewDocumentService 创建文档服务
func NewDocumentService(db *gorm.DB) *DocumentService {
	return &DocumentService{db: db}
}

// GetDocument 按 ID 获取文档
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewErrorf(common.KindNotFound, "文档 %s 不存在", id)
		}
		return nil, common.WrapError(common.KindInternal, "查询文档失败", err)
	}
	return &doc, nil
}
