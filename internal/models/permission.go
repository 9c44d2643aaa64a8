package models

import (
	"time"

	"gedvault/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionKind 权限类型，封闭枚举。
// 控制流中不允许散落的字符串字面量，解析入口只有 ParsePermissionKind。
type PermissionKind string

const (
	PermissionView   PermissionKind = "view"
	PermissionEdit   PermissionKind = "edit"
	PermissionDelete PermissionKind = "delete"
	PermissionShare  PermissionKind = "share"
)

// AllPermissionKinds 全部合法权限类型（顺序稳定）
var AllPermissionKinds = []PermissionKind{
	PermissionView,
	PermissionEdit,
	PermissionDelete,
	PermissionShare,
}

// ViewImplyingKinds 隐含 view 的高阶权限类型
var ViewImplyingKinds = []PermissionKind{
	PermissionEdit,
	PermissionDelete,
	PermissionShare,
}

// ParsePermissionKind 解析权限类型，非法值返回 Validation 错误。
// 传入非法类型属于调用方编程错误，不是安全失败。
func ParsePermissionKind(s string) (PermissionKind, error) {
	switch PermissionKind(s) {
	case PermissionView, PermissionEdit, PermissionDelete, PermissionShare:
		return PermissionKind(s), nil
	}
	return "", common.NewErrorf(common.KindValidation, "非法权限类型: %q", s)
}

// Valid 校验权限类型
func (k PermissionKind) Valid() bool {
	_, err := ParsePermissionKind(string(k))
	return err == nil
}

// PermissionGrant 文档权限授权记录，可选过期时间。
// (document_id, user_id, kind) 唯一，重复授权走 upsert 覆盖原记录元数据。
type PermissionGrant struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID string         `gorm:"type:uuid;not null;uniqueIndex:uq_grant_doc_user_kind;index:idx_grant_doc_user,priority:1" json:"document_id"`
	UserID     string         `gorm:"type:uuid;not null;uniqueIndex:uq_grant_doc_user_kind;index:idx_grant_doc_user,priority:2" json:"user_id"`
	Kind       PermissionKind `gorm:"type:varchar(20);not null;uniqueIndex:uq_grant_doc_user_kind" json:"kind"`
	GrantedBy  string         `gorm:"type:uuid;not null" json:"granted_by"`
	GrantedAt  time.Time      `gorm:"not null" json:"granted_at"`
	ExpiresAt  *time.Time     `gorm:"index" json:"expires_at,omitempty"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与授权时间
func (g *PermissionGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}
	return nil
}

// TableName 指定表名
func (PermissionGrant) TableName() string {
	return "permission_grants"
}

// IsExpired 授权在 now 时刻是否已过期。
// 过期的行对评估器视同不存在，但不会被立即删除（惰性过期，由定期清理回收）。
func (g *PermissionGrant) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}
