package workflow

import (
	"context"
	"errors"
	"time"

	"gedvault/internal/common"
	"gedvault/internal/logger"
	"gedvault/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 工作流模板管理。阶段配置写入时校验一次结构，
// 读取方通过 DecodeStages 拿到强类型阶段列表。
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService 创建工作流模板服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, logger: logger.Get()}
}

// CreateWorkflow 创建工作流模板。名称唯一；至少一个阶段，
// 每个阶段有名称且审批人非空。
func (s *Service) CreateWorkflow(ctx context.Context, name, description string, stages []models.Stage, createdBy string) (*models.WorkflowDefinition, error) {
	if name == "" {
		return nil, common.NewError(common.KindValidation, "工作流名称不能为空")
	}
	if err := models.ValidateStages(stages); err != nil {
		return nil, err
	}

	workflow := &models.WorkflowDefinition{
		Name:        name,
		Description: description,
		Active:      true,
		CreatedBy:   createdBy,
	}
	if err := workflow.SetStages(stages); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(workflow).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, common.NewErrorf(common.KindConflict, "工作流 %q 已存在", name)
		}
		return nil, common.WrapError(common.KindInternal, "创建工作流失败", err)
	}

	s.logger.Info("工作流已创建",
		zap.String("workflow_id", workflow.ID),
		zap.String("name", name),
		zap.String("created_by", createdBy),
	)
	return workflow, nil
}

// UpdateParams 工作流更新参数，nil 字段保持不变
type UpdateParams struct {
	Name        *string
	Description *string
	Stages      []models.Stage
	Active      *bool
}

// UpdateWorkflow 更新工作流模板。停用（active=false）不影响
// 已绑定该工作流的进行中实例，它们继续按 ID 引用同一份阶段列表。
func (s *Service) UpdateWorkflow(ctx context.Context, workflowID string, params UpdateParams) (*models.WorkflowDefinition, error) {
	workflow, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		if *params.Name == "" {
			return nil, common.NewError(common.KindValidation, "工作流名称不能为空")
		}
		workflow.Name = *params.Name
	}
	if params.Description != nil {
		workflow.Description = *params.Description
	}
	if params.Stages != nil {
		if err := models.ValidateStages(params.Stages); err != nil {
			return nil, err
		}
		if err := workflow.SetStages(params.Stages); err != nil {
			return nil, err
		}
	}
	if params.Active != nil {
		workflow.Active = *params.Active
	}
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(workflow).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, common.NewErrorf(common.KindConflict, "工作流 %q 已存在", workflow.Name)
		}
		return nil, common.WrapError(common.KindInternal, "更新工作流失败", err)
	}

	s.logger.Info("工作流已更新", zap.String("workflow_id", workflowID))
	return workflow, nil
}

// GetWorkflow 按 ID 获取工作流模板
func (s *Service) GetWorkflow(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	var workflow models.WorkflowDefinition
	err := s.db.WithContext(ctx).Where("id = ?", workflowID).First(&workflow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewErrorf(common.KindNotFound, "工作流 %s 不存在", workflowID)
		}
		return nil, common.WrapError(common.KindInternal, "查询工作流失败", err)
	}
	return &workflow, nil
}

// ListActiveWorkflows 列出全部启用中的工作流模板
func (s *Service) ListActiveWorkflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	var workflows []*models.WorkflowDefinition
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&workflows).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "查询工作流列表失败", err)
	}
	return workflows, nil
}
