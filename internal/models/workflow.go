package models

import (
	"encoding/json"
	"time"

	"gedvault/internal/common"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审批实例状态
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// 审批动作
const (
	HistoryActionApproved = "approved"
	HistoryActionRejected = "rejected"
)

// Stage 工作流阶段定义。审批人集合非空；RequireAll 为 true 时
// 所有审批人都批准后阶段才完成，否则第一个批准即完成。
type Stage struct {
	Name       string   `json:"name"`
	Approvers  []string `json:"approvers"`
	RequireAll bool     `json:"require_all"`
}

// HasApprover 判断用户是否属于本阶段审批人集合
func (s *Stage) HasApprover(userID string) bool {
	for _, id := range s.Approvers {
		if id == userID {
			return true
		}
	}
	return false
}

// WorkflowDefinition 工作流模板。阶段配置以 JSON 列持久化，
// 写入时校验一次结构，读取时一次性解码为强类型 []Stage。
type WorkflowDefinition struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Stages      datatypes.JSON `gorm:"not null" json:"stages"`
	Active      bool           `gorm:"not null;default:true;index" json:"active"`
	CreatedBy   string         `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (w *WorkflowDefinition) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (WorkflowDefinition) TableName() string {
	return "workflow_definitions"
}

// DecodeStages 解码阶段配置
func (w *WorkflowDefinition) DecodeStages() ([]Stage, error) {
	var stages []Stage
	if err := json.Unmarshal(w.Stages, &stages); err != nil {
		return nil, common.WrapError(common.KindInternal, "工作流阶段配置损坏", err)
	}
	return stages, nil
}

// SetStages 编码并写入阶段配置（调用前须通过 ValidateStages）
func (w *WorkflowDefinition) SetStages(stages []Stage) error {
	data, err := json.Marshal(stages)
	if err != nil {
		return common.WrapError(common.KindInternal, "工作流阶段配置编码失败", err)
	}
	w.Stages = datatypes.JSON(data)
	return nil
}

// ValidateStages 校验阶段配置结构：至少一个阶段，每个阶段有名称且审批人非空
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return common.NewError(common.KindValidation, "工作流至少需要一个阶段")
	}
	for i, stage := range stages {
		if stage.Name == "" {
			return common.NewErrorf(common.KindValidation, "阶段 %d 缺少名称", i+1)
		}
		if len(stage.Approvers) == 0 {
			return common.NewErrorf(common.KindValidation, "阶段 %d (%s) 审批人列表为空", i+1, stage.Name)
		}
		for _, approver := range stage.Approvers {
			if approver == "" {
				return common.NewErrorf(common.KindValidation, "阶段 %d (%s) 含空审批人 ID", i+1, stage.Name)
			}
		}
	}
	return nil
}

// ApprovalInstance 一次工作流针对一个文档的执行实例。
// PendingDocID 在 pending 期间等于 DocumentID 并带唯一索引，终态时清空，
// 由存储层唯一约束保证同一文档最多一个进行中实例（并发提交也不会出现两个）。
type ApprovalInstance struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID   string     `gorm:"type:uuid;not null;index:idx_approval_doc" json:"document_id"`
	WorkflowID   string     `gorm:"type:uuid;not null;index" json:"workflow_id"`
	SubmittedBy  string     `gorm:"type:uuid;not null" json:"submitted_by"`
	CurrentStage int        `gorm:"not null;default:1" json:"current_stage"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PendingDocID *string    `gorm:"type:uuid;uniqueIndex:uq_approval_pending_doc" json:"-"`
	SubmittedAt  time.Time  `gorm:"not null" json:"submitted_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 与提交时间
func (a *ApprovalInstance) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}
	return nil
}

// TableName 指定表名
func (ApprovalInstance) TableName() string {
	return "approval_instances"
}

// IsPending 实例是否仍在审批中
func (a *ApprovalInstance) IsPending() bool {
	return a.Status == ApprovalStatusPending
}

// HistoryEntry 审批历史账本条目，只追加，按时间排序，不允许修改或删除
type HistoryEntry struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	ApprovalID string    `gorm:"type:uuid;not null;index:idx_history_approval" json:"approval_id"`
	Stage      int       `gorm:"not null" json:"stage"`
	ApproverID string    `gorm:"type:uuid;not null;index" json:"approver_id"`
	Action     string    `gorm:"type:varchar(20);not null" json:"action"`
	Comment    string    `gorm:"type:text;not null" json:"comment"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (h *HistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return nil
}

// TableName 指定表名
func (HistoryEntry) TableName() string {
	return "approval_history"
}
