package workflow

import (
	"context"
	"testing"

	"gedvault/internal/common"
	"gedvault/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T, db *gorm.DB) (*Engine, *Service) {
	t.Helper()
	svc := NewService(db)
	engine := NewEngine(db, svc, models.NewDocumentService(db))
	return engine, svc
}

func createDocument(t *testing.T, db *gorm.DB, ownerID string) *models.Document {
	t.Helper()
	doc := &models.Document{Name: "采购合同.pdf", OwnerID: ownerID, Status: models.DocumentStatusActive}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

func TestSubmitCreatesPendingInstance(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("approver-1"), "creator")
	require.NoError(t, err)

	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, instance.Status)
	require.Equal(t, 1, instance.CurrentStage)
	require.Equal(t, "submitter-1", instance.SubmittedBy)
	require.NotNil(t, instance.PendingDocID)
	require.Equal(t, doc.ID, *instance.PendingDocID)
	require.Nil(t, instance.CompletedAt)
}

func TestSubmitRequiresActiveWorkflow(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "停用流程", "", singleStage("approver-1"), "creator")
	require.NoError(t, err)
	off := false
	_, err = svc.UpdateWorkflow(ctx, wf.ID, UpdateParams{Active: &off})
	require.NoError(t, err)

	_, err = engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))
}

func TestSubmitMissingReferences(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("approver-1"), "creator")
	require.NoError(t, err)

	_, err = engine.Submit(ctx, doc.ID, "00000000-0000-0000-0000-000000000000", "submitter-1")
	require.True(t, common.IsKind(err, common.KindNotFound))

	_, err = engine.Submit(ctx, "00000000-0000-0000-0000-000000000000", wf.ID, "submitter-1")
	require.True(t, common.IsKind(err, common.KindNotFound))
}

func TestSubmitDuplicatePendingConflict(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("approver-1"), "creator")
	require.NoError(t, err)

	first, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	_, err = engine.Submit(ctx, doc.ID, wf.ID, "submitter-2")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindConflict), "同一文档只允许一个进行中实例")

	// 终态后允许重新提交
	_, err = engine.Reject(ctx, first.ID, "approver-1", "格式不符")
	require.NoError(t, err)

	_, err = engine.Submit(ctx, doc.ID, wf.ID, "submitter-2")
	require.NoError(t, err)
}

func TestApproveSingleStageReachesTerminal(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("approver-1", "approver-2"), "creator")
	require.NoError(t, err)

	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	// require_all=false：任一审批人批准即完成
	approved, err := engine.Approve(ctx, instance.ID, "approver-2", "内容无误")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, approved.Status)
	require.NotNil(t, approved.CompletedAt)
	require.Nil(t, approved.PendingDocID, "终态释放唯一约束占位")

	history, err := engine.GetHistory(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, models.HistoryActionApproved, history[0].Action)
	require.Equal(t, "内容无误", history[0].Comment)
}

func TestDecisionRequiresComment(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("approver-1"), "creator")
	require.NoError(t, err)
	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	_, err = engine.Approve(ctx, instance.ID, "approver-1", "")
	require.True(t, common.IsKind(err, common.KindValidation))

	_, err = engine.Reject(ctx, instance.ID, "approver-1", "   ")
	require.True(t, common.IsKind(err, common.KindValidation), "空白评论等同缺失")

	// 实例未被影响
	history, err := engine.GetHistory(ctx, instance.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestDecisionRejectsNonStageApprover(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("approver-1"), "creator")
	require.NoError(t, err)
	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	_, err = engine.Approve(ctx, instance.ID, "intruder", "蹭一下")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindUnauthorizedApprover))

	_, err = engine.Reject(ctx, instance.ID, "intruder", "不行")
	require.True(t, common.IsKind(err, common.KindUnauthorizedApprover))
}

func TestRejectIsAlwaysTerminal(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	// require_all 阶段：一票拒绝依然立即终结
	wf, err := svc.CreateWorkflow(ctx, "会签审批", "",
		[]models.Stage{{Name: "会签", Approvers: []string{"a", "b", "c"}, RequireAll: true}}, "creator")
	require.NoError(t, err)
	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	_, err = engine.Approve(ctx, instance.ID, "a", "同意")
	require.NoError(t, err)

	rejected, err := engine.Reject(ctx, instance.ID, "b", "预算超标")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusRejected, rejected.Status)
	require.NotNil(t, rejected.CompletedAt)
	require.Nil(t, rejected.PendingDocID)

	// 终态后一切决策被拒
	_, err = engine.Approve(ctx, instance.ID, "c", "同意")
	require.True(t, common.IsKind(err, common.KindConflict))
}

func TestRequireAllCountsDistinctApprovers(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "会签审批", "",
		[]models.Stage{{Name: "会签", Approvers: []string{"a", "b"}, RequireAll: true}}, "creator")
	require.NoError(t, err)
	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	pending, err := engine.Approve(ctx, instance.ID, "a", "同意")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, pending.Status, "只收到一票时阶段未完成")

	// 同一审批人重复批准只计一票，但留痕
	pending, err = engine.Approve(ctx, instance.ID, "a", "再次确认")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, pending.Status)

	history, err := engine.GetHistory(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "重复批准追加账本条目")

	approved, err := engine.Approve(ctx, instance.ID, "b", "同意")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, approved.Status)
}

func TestMultiStageAdvance(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "两级审批", "", []models.Stage{
		{Name: "部门审核", Approvers: []string{"manager"}},
		{Name: "法务审核", Approvers: []string{"legal"}},
	}, "creator")
	require.NoError(t, err)
	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	// 第二阶段审批人不能提前行动
	_, err = engine.Approve(ctx, instance.ID, "legal", "先批了")
	require.True(t, common.IsKind(err, common.KindUnauthorizedApprover))

	advanced, err := engine.Approve(ctx, instance.ID, "manager", "部门通过")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, advanced.Status)
	require.Equal(t, 2, advanced.CurrentStage)
	require.NotNil(t, advanced.PendingDocID, "推进不释放唯一约束占位")

	// 第一阶段审批人在第二阶段失去资格
	_, err = engine.Approve(ctx, instance.ID, "manager", "继续批")
	require.True(t, common.IsKind(err, common.KindUnauthorizedApprover))

	final, err := engine.Approve(ctx, instance.ID, "legal", "法务通过")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, final.Status)

	history, err := engine.GetHistory(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 1, history[0].Stage)
	require.Equal(t, 2, history[1].Stage)
}

func TestDecisionUsesLiveDefinition(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("old-approver"), "creator")
	require.NoError(t, err)
	instance, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	// 提交后修改定义：审批人判定跟随当前定义，不用提交时快照
	_, err = svc.UpdateWorkflow(ctx, wf.ID, UpdateParams{Stages: singleStage("new-approver")})
	require.NoError(t, err)

	_, err = engine.Approve(ctx, instance.ID, "old-approver", "同意")
	require.True(t, common.IsKind(err, common.KindUnauthorizedApprover))

	approved, err := engine.Approve(ctx, instance.ID, "new-approver", "同意")
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, approved.Status)
}

func TestGetHistoryUnknownInstance(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, _ := newTestEngine(t, db)

	_, err := engine.GetHistory(ctx, "00000000-0000-0000-0000-000000000000")
	require.True(t, common.IsKind(err, common.KindNotFound))
}

func TestGetPendingForApprover(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	docA := createDocument(t, db, "owner-1")
	docB := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "两级审批", "", []models.Stage{
		{Name: "部门审核", Approvers: []string{"manager"}},
		{Name: "法务审核", Approvers: []string{"legal"}},
	}, "creator")
	require.NoError(t, err)

	instanceA, err := engine.Submit(ctx, docA.ID, wf.ID, "submitter-1")
	require.NoError(t, err)
	instanceB, err := engine.Submit(ctx, docB.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	// 两个实例都停在第一阶段
	pending, err := engine.GetPendingForApprover(ctx, "manager")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	pending, err = engine.GetPendingForApprover(ctx, "legal")
	require.NoError(t, err)
	require.Empty(t, pending, "第二阶段审批人看不到第一阶段实例")

	// A 推进到第二阶段后归属变化
	_, err = engine.Approve(ctx, instanceA.ID, "manager", "通过")
	require.NoError(t, err)

	pending, err = engine.GetPendingForApprover(ctx, "manager")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, instanceB.ID, pending[0].ID)

	pending, err = engine.GetPendingForApprover(ctx, "legal")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, instanceA.ID, pending[0].ID)
}

func TestGetByDocumentReturnsAllInstances(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	engine, svc := newTestEngine(t, db)
	doc := createDocument(t, db, "owner-1")

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("approver-1"), "creator")
	require.NoError(t, err)

	first, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)
	_, err = engine.Reject(ctx, first.ID, "approver-1", "重做")
	require.NoError(t, err)

	second, err := engine.Submit(ctx, doc.ID, wf.ID, "submitter-1")
	require.NoError(t, err)

	instances, err := engine.GetByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	ids := []string{instances[0].ID, instances[1].ID}
	require.Contains(t, ids, first.ID)
	require.Contains(t, ids, second.ID)
}
