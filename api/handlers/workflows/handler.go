package workflows

import (
	"context"

	respond "gedvault/api/handlers/common"
	"gedvault/internal/auth"
	"gedvault/internal/common"
	"gedvault/internal/models"
	"gedvault/internal/workflow"

	"github.com/gin-gonic/gin"
)

// Handler 工作流与审批处理器
type Handler struct {
	workflows *workflow.Service
	engine    *workflow.Engine
}

// NewHandler 创建工作流处理器
func NewHandler(workflows *workflow.Service, engine *workflow.Engine) *Handler {
	return &Handler{workflows: workflows, engine: engine}
}

func actor(c *gin.Context) (string, bool) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		respond.Error(c, common.NewError(common.KindPermissionDenied, "未认证"))
		return "", false
	}
	return userCtx.UserID, true
}

// stageRequest 阶段配置请求体
type stageRequest struct {
	Name       string   `json:"name" binding:"required"`
	Approvers  []string `json:"approvers" binding:"required"`
	RequireAll bool     `json:"require_all"`
}

func toStages(reqs []stageRequest) []models.Stage {
	stages := make([]models.Stage, 0, len(reqs))
	for _, r := range reqs {
		stages = append(stages, models.Stage{
			Name:       r.Name,
			Approvers:  r.Approvers,
			RequireAll: r.RequireAll,
		})
	}
	return stages
}

// Create 创建工作流模板
// POST /api/v1/workflows
func (h *Handler) Create(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req struct {
		Name        string         `json:"name" binding:"required"`
		Description string         `json:"description"`
		Stages      []stageRequest `json:"stages" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "无效的请求参数")
		return
	}

	wf, err := h.workflows.CreateWorkflow(c.Request.Context(), req.Name, req.Description, toStages(req.Stages), actorID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Created(c, wf)
}

// Update 更新工作流模板
// PUT /api/v1/workflows/:id
func (h *Handler) Update(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}

	var req struct {
		Name        *string        `json:"name"`
		Description *string        `json:"description"`
		Stages      []stageRequest `json:"stages"`
		Active      *bool          `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "无效的请求参数")
		return
	}

	params := workflow.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	}
	if req.Stages != nil {
		params.Stages = toStages(req.Stages)
	}

	wf, err := h.workflows.UpdateWorkflow(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, wf)
}

// Get 获取工作流模板
// GET /api/v1/workflows/:id
func (h *Handler) Get(c *gin.Context) {
	wf, err := h.workflows.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, wf)
}

// List 列出启用中的工作流模板
// GET /api/v1/workflows
func (h *Handler) List(c *gin.Context) {
	workflows, err := h.workflows.ListActiveWorkflows(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"workflows": workflows, "total": len(workflows)})
}

// Submit 提交文档审批
// POST /api/v1/approvals
func (h *Handler) Submit(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req struct {
		DocumentID string `json:"document_id" binding:"required"`
		WorkflowID string `json:"workflow_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "无效的请求参数")
		return
	}

	instance, err := h.engine.Submit(c.Request.Context(), req.DocumentID, req.WorkflowID, actorID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Created(c, instance)
}

// Approve 批准当前阶段
// POST /api/v1/approvals/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	h.decide(c, h.engine.Approve)
}

// Reject 拒绝当前阶段
// POST /api/v1/approvals/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.decide(c, h.engine.Reject)
}

func (h *Handler) decide(c *gin.Context, action func(ctx context.Context, instanceID, approverID, comment string) (*models.ApprovalInstance, error)) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req struct {
		Comment string `json:"comment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "审批评论不能为空")
		return
	}

	instance, err := action(c.Request.Context(), c.Param("id"), actorID, req.Comment)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, instance)
}

// History 审批历史账本
// GET /api/v1/approvals/:id/history
func (h *Handler) History(c *gin.Context) {
	entries, err := h.engine.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"history": entries, "total": len(entries)})
}

// Pending 我的待审批列表
// GET /api/v1/approvals/pending
func (h *Handler) Pending(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	instances, err := h.engine.GetPendingForApprover(c.Request.Context(), actorID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"approvals": instances, "total": len(instances)})
}

// ByDocument 文档的审批记录
// GET /api/v1/documents/:id/approvals
func (h *Handler) ByDocument(c *gin.Context) {
	instances, err := h.engine.GetByDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"approvals": instances, "total": len(instances)})
}
