package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"gedvault/internal/audit"
	"gedvault/internal/common"
	"gedvault/internal/logger"
	"gedvault/internal/metrics"
	"gedvault/internal/models"
	"gedvault/internal/notification"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine 审批引擎，驱动审批实例沿阶段推进直至终态。
//
// 状态机：pending → approved 或 pending → rejected，终态不可再变更。
// 每次 approve/reject 都重新读取工作流的当前定义（而非提交时的快照），
// 定义变更会影响下一次动作的阶段与审批人判定，但不追溯已记录的决策。
// 这是有意保留的既定行为，详见 DESIGN.md。
type Engine struct {
	db          *gorm.DB
	definitions *Service
	documents   *models.DocumentService
	auditor     audit.Recorder
	notifier    *notification.Service
	logger      *zap.Logger
	now         func() time.Time
}

// EngineOption 自定义配置
type EngineOption func(*Engine)

// WithAuditor 注入审计记录器
func WithAuditor(auditor audit.Recorder) EngineOption {
	return func(e *Engine) { e.auditor = auditor }
}

// WithNotifier 注入通知服务
func WithNotifier(notifier *notification.Service) EngineOption {
	return func(e *Engine) { e.notifier = notifier }
}

// WithClock 注入时钟
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine 创建审批引擎
func NewEngine(db *gorm.DB, definitions *Service, documents *models.DocumentService, opts ...EngineOption) *Engine {
	engine := &Engine{
		db:          db,
		definitions: definitions,
		documents:   documents,
		auditor:     audit.NopRecorder{},
		logger:      logger.Get(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine
}

// Submit 将文档提交到工作流，创建处于第 1 阶段的审批实例。
// 同一文档最多一个进行中实例：pending_doc_id 唯一索引在存储层
// 兜底，并发提交也只会成功一个。
func (e *Engine) Submit(ctx context.Context, documentID, workflowID, submitterID string) (*models.ApprovalInstance, error) {
	workflow, err := e.definitions.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !workflow.Active {
		return nil, common.NewErrorf(common.KindValidation, "工作流 %s 未启用", workflowID)
	}

	doc, err := e.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	pendingKey := documentID
	instance := &models.ApprovalInstance{
		DocumentID:   documentID,
		WorkflowID:   workflowID,
		SubmittedBy:  submitterID,
		CurrentStage: 1,
		Status:       models.ApprovalStatusPending,
		PendingDocID: &pendingKey,
		SubmittedAt:  e.now(),
	}

	if err := e.db.WithContext(ctx).Create(instance).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, common.NewErrorf(common.KindConflict, "文档 %s 已有进行中的审批", documentID)
		}
		return nil, common.WrapError(common.KindInternal, "创建审批实例失败", err)
	}

	metrics.ApprovalPendingGauge.Inc()
	e.auditor.LogAction(ctx, audit.Entry{
		ActorID:     submitterID,
		Action:      "workflow.submit",
		EntityTable: models.ApprovalInstance{}.TableName(),
		EntityID:    instance.ID,
		Data: map[string]any{
			"document_id": documentID,
			"workflow_id": workflowID,
		},
	})

	e.notifyStageApprovers(ctx, instance, workflow, doc)

	e.logger.Info("文档已提交审批",
		zap.String("approval_id", instance.ID),
		zap.String("document_id", documentID),
		zap.String("workflow_id", workflowID),
	)
	return instance, nil
}

// decision 一次 approve/reject 在事务内计算出的推进结果
type decision struct {
	instance   *models.ApprovalInstance
	stages     []models.Stage
	advanced   bool // 推进到了下一阶段
	finalized  bool // 到达终态
	finalState string
}

// Approve 在当前阶段批准。评论为必填。
// 阶段完成策略：require_all=false 时首个批准即完成；
// require_all=true 时账本中本阶段批准过的去重审批人集合须覆盖配置的
// 审批人集合（同一人重复批准只计一票，但每次调用都会追加账本条目，
// 保留评论轨迹）。读取-判定-写入在单个事务内完成，推进用条件更新
// 兜底，两个并发批准不会把同一阶段推进两次。
func (e *Engine) Approve(ctx context.Context, instanceID, approverID, comment string) (*models.ApprovalInstance, error) {
	return e.decide(ctx, instanceID, approverID, comment, models.HistoryActionApproved)
}

// Reject 在当前阶段拒绝。评论为必填（无理由拒绝被禁止）。
// 任何一次拒绝立即终结整个实例，与 require_all 无关。
func (e *Engine) Reject(ctx context.Context, instanceID, approverID, comment string) (*models.ApprovalInstance, error) {
	return e.decide(ctx, instanceID, approverID, comment, models.HistoryActionRejected)
}

func (e *Engine) decide(ctx context.Context, instanceID, approverID, comment, action string) (*models.ApprovalInstance, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, common.NewError(common.KindValidation, "审批评论不能为空")
	}

	var result decision
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var instance models.ApprovalInstance
		if err := tx.Where("id = ?", instanceID).First(&instance).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NewErrorf(common.KindNotFound, "审批实例 %s 不存在", instanceID)
			}
			return common.WrapError(common.KindInternal, "查询审批实例失败", err)
		}

		if !instance.IsPending() {
			return common.NewErrorf(common.KindConflict, "审批实例 %s 已处于终态 (%s)", instanceID, instance.Status)
		}

		// 每次动作都按实时定义判定阶段与审批人
		var workflow models.WorkflowDefinition
		if err := tx.Where("id = ?", instance.WorkflowID).First(&workflow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NewErrorf(common.KindNotFound, "工作流 %s 不存在", instance.WorkflowID)
			}
			return common.WrapError(common.KindInternal, "查询工作流失败", err)
		}
		stages, err := workflow.DecodeStages()
		if err != nil {
			return err
		}
		if instance.CurrentStage < 1 || instance.CurrentStage > len(stages) {
			return common.NewErrorf(common.KindValidation, "当前阶段 %d 在工作流定义中不存在", instance.CurrentStage)
		}

		stage := stages[instance.CurrentStage-1]
		if !stage.HasApprover(approverID) {
			return common.NewErrorf(common.KindUnauthorizedApprover, "用户 %s 不是当前阶段的审批人", approverID)
		}

		// 账本只追加：重复调用同样留痕
		entry := &models.HistoryEntry{
			ApprovalID: instance.ID,
			Stage:      instance.CurrentStage,
			ApproverID: approverID,
			Action:     action,
			Comment:    comment,
			CreatedAt:  e.now(),
		}
		if err := tx.Create(entry).Error; err != nil {
			return common.WrapError(common.KindInternal, "写入审批历史失败", err)
		}

		result = decision{instance: &instance, stages: stages}

		// 拒绝立即终结
		if action == models.HistoryActionRejected {
			return e.finalize(tx, &result, models.ApprovalStatusRejected)
		}

		complete, err := e.stageComplete(tx, &instance, &stage)
		if err != nil {
			return err
		}
		if !complete {
			// 阶段未完成：实例停留在当前阶段继续收集批准
			return nil
		}

		if instance.CurrentStage == len(stages) {
			return e.finalize(tx, &result, models.ApprovalStatusApproved)
		}
		return e.advance(tx, &result)
	})
	if err != nil {
		return nil, err
	}

	instance, err := e.reload(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	metrics.ApprovalDecisionsTotal.WithLabelValues(action).Inc()
	e.auditor.LogAction(ctx, audit.Entry{
		ActorID:     approverID,
		Action:      "workflow." + action,
		EntityTable: models.ApprovalInstance{}.TableName(),
		EntityID:    instanceID,
		Data: map[string]any{
			"document_id": instance.DocumentID,
			"workflow_id": instance.WorkflowID,
			"stage":       result.instance.CurrentStage,
			"comment":     comment,
		},
	})

	e.afterDecision(ctx, instance, &result, approverID, comment)
	return instance, nil
}

// finalize 在事务内把实例置为终态。条件更新保证终态只写入一次。
func (e *Engine) finalize(tx *gorm.DB, result *decision, status string) error {
	now := e.now()
	update := tx.Model(&models.ApprovalInstance{}).
		Where("id = ? AND status = ? AND current_stage = ?",
			result.instance.ID, models.ApprovalStatusPending, result.instance.CurrentStage).
		Updates(map[string]any{
			"status":         status,
			"completed_at":   now,
			"pending_doc_id": nil,
		})
	if update.Error != nil {
		return common.WrapError(common.KindInternal, "更新审批实例失败", update.Error)
	}
	if update.RowsAffected != 1 {
		return common.NewError(common.KindConflict, "审批实例已被并发修改")
	}
	result.finalized = true
	result.finalState = status
	return nil
}

// advance 在事务内推进到下一阶段。条件更新防止并发双重推进。
func (e *Engine) advance(tx *gorm.DB, result *decision) error {
	update := tx.Model(&models.ApprovalInstance{}).
		Where("id = ? AND status = ? AND current_stage = ?",
			result.instance.ID, models.ApprovalStatusPending, result.instance.CurrentStage).
		Update("current_stage", result.instance.CurrentStage+1)
	if update.Error != nil {
		return common.WrapError(common.KindInternal, "推进审批阶段失败", update.Error)
	}
	if update.RowsAffected != 1 {
		return common.NewError(common.KindConflict, "审批实例已被并发修改")
	}
	result.advanced = true
	return nil
}

// stageComplete 判定当前阶段是否完成
func (e *Engine) stageComplete(tx *gorm.DB, instance *models.ApprovalInstance, stage *models.Stage) (bool, error) {
	if !stage.RequireAll {
		return true, nil
	}

	var approverIDs []string
	err := tx.Model(&models.HistoryEntry{}).
		Where("approval_id = ? AND stage = ? AND action = ?",
			instance.ID, instance.CurrentStage, models.HistoryActionApproved).
		Distinct().
		Pluck("approver_id", &approverIDs).Error
	if err != nil {
		return false, common.WrapError(common.KindInternal, "查询审批历史失败", err)
	}

	approved := make(map[string]bool, len(approverIDs))
	for _, id := range approverIDs {
		approved[id] = true
	}
	for _, required := range stage.Approvers {
		if !approved[required] {
			return false, nil
		}
	}
	return true, nil
}

// afterDecision 事务提交后的尽力而为动作：指标、通知
func (e *Engine) afterDecision(ctx context.Context, instance *models.ApprovalInstance, result *decision, approverID, comment string) {
	doc, err := e.documents.GetDocument(ctx, instance.DocumentID)
	if err != nil {
		e.logger.Warn("审批后续通知取文档失败",
			zap.String("approval_id", instance.ID),
			zap.Error(err),
		)
		return
	}

	switch {
	case result.finalized:
		metrics.ApprovalPendingGauge.Dec()
		metrics.ApprovalCompletedTotal.WithLabelValues(result.finalState).Inc()
		if e.notifier == nil {
			return
		}
		if result.finalState == models.ApprovalStatusApproved {
			e.notifier.NotifyWorkflowApproved(ctx, doc, approverID, instance.SubmittedBy, instance.WorkflowID, comment)
		} else {
			e.notifier.NotifyWorkflowRejected(ctx, doc, approverID, instance.SubmittedBy, instance.WorkflowID, comment)
		}

	case result.advanced:
		if e.notifier == nil || instance.CurrentStage > len(result.stages) {
			return
		}
		stage := result.stages[instance.CurrentStage-1]
		for _, nextApprover := range stage.Approvers {
			e.notifier.NotifyWorkflowSubmission(ctx, doc, nextApprover, instance.WorkflowID, instance.SubmittedBy)
		}
	}
}

// notifyStageApprovers 通知实例当前阶段的全部审批人
func (e *Engine) notifyStageApprovers(ctx context.Context, instance *models.ApprovalInstance, workflow *models.WorkflowDefinition, doc *models.Document) {
	if e.notifier == nil {
		return
	}
	stages, err := workflow.DecodeStages()
	if err != nil || instance.CurrentStage > len(stages) {
		return
	}
	stage := stages[instance.CurrentStage-1]
	for _, approverID := range stage.Approvers {
		e.notifier.NotifyWorkflowSubmission(ctx, doc, approverID, workflow.ID, instance.SubmittedBy)
	}
}

// reload 取实例最新状态
func (e *Engine) reload(ctx context.Context, instanceID string) (*models.ApprovalInstance, error) {
	var instance models.ApprovalInstance
	err := e.db.WithContext(ctx).Where("id = ?", instanceID).First(&instance).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "查询审批实例失败", err)
	}
	return &instance, nil
}

// GetHistory 返回实例的完整审批账本，按时间升序
func (e *Engine) GetHistory(ctx context.Context, instanceID string) ([]*models.HistoryEntry, error) {
	if _, err := e.reloadChecked(ctx, instanceID); err != nil {
		return nil, err
	}

	var entries []*models.HistoryEntry
	err := e.db.WithContext(ctx).
		Where("approval_id = ?", instanceID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "查询审批历史失败", err)
	}
	return entries, nil
}

// GetPendingForApprover 返回用户作为当前阶段审批人的全部进行中实例。
// 逐实例按实时定义测试当前阶段的成员资格。
func (e *Engine) GetPendingForApprover(ctx context.Context, userID string) ([]*models.ApprovalInstance, error) {
	var pending []*models.ApprovalInstance
	err := e.db.WithContext(ctx).
		Where("status = ?", models.ApprovalStatusPending).
		Order("submitted_at ASC").
		Find(&pending).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "查询进行中审批失败", err)
	}

	stageCache := make(map[string][]models.Stage)
	var result []*models.ApprovalInstance
	for _, instance := range pending {
		stages, ok := stageCache[instance.WorkflowID]
		if !ok {
			workflow, err := e.definitions.GetWorkflow(ctx, instance.WorkflowID)
			if err != nil {
				// 定义缺失的实例跳过，不让单个坏数据拖垮整个查询
				e.logger.Warn("进行中实例引用的工作流缺失",
					zap.String("approval_id", instance.ID),
					zap.String("workflow_id", instance.WorkflowID),
				)
				continue
			}
			stages, err = workflow.DecodeStages()
			if err != nil {
				continue
			}
			stageCache[instance.WorkflowID] = stages
		}

		if instance.CurrentStage < 1 || instance.CurrentStage > len(stages) {
			continue
		}
		if stages[instance.CurrentStage-1].HasApprover(userID) {
			result = append(result, instance)
		}
	}
	return result, nil
}

// GetByDocument 返回文档的全部审批实例（含历史终态），按提交时间降序
func (e *Engine) GetByDocument(ctx context.Context, documentID string) ([]*models.ApprovalInstance, error) {
	var instances []*models.ApprovalInstance
	err := e.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("submitted_at DESC").
		Find(&instances).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "查询文档审批失败", err)
	}
	return instances, nil
}

// reloadChecked 取实例，不存在返回 NotFound
func (e *Engine) reloadChecked(ctx context.Context, instanceID string) (*models.ApprovalInstance, error) {
	var instance models.ApprovalInstance
	err := e.db.WithContext(ctx).Where("id = ?", instanceID).First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewErrorf(common.KindNotFound, "审批实例 %s 不存在", instanceID)
		}
		return nil, common.WrapError(common.KindInternal, "查询审批实例失败", err)
	}
	return &instance, nil
}
