package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gedvault/internal/common"
	"gedvault/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupWorkflowTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:workflow_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.WorkflowDefinition{},
		&models.ApprovalInstance{},
		&models.HistoryEntry{},
		&models.AuditLog{},
	))
	return db
}

func singleStage(approvers ...string) []models.Stage {
	return []models.Stage{{Name: "审核", Approvers: approvers}}
}

func TestCreateWorkflowValidatesStages(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	svc := NewService(db)

	_, err := svc.CreateWorkflow(ctx, "空阶段", "", nil, "creator")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))

	_, err = svc.CreateWorkflow(ctx, "无审批人", "",
		[]models.Stage{{Name: "审核", Approvers: nil}}, "creator")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))

	_, err = svc.CreateWorkflow(ctx, "无名阶段", "",
		[]models.Stage{{Approvers: []string{"a"}}}, "creator")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "法务合同流程", singleStage("a", "b"), "creator")
	require.NoError(t, err)
	require.True(t, wf.Active)

	stages, err := wf.DecodeStages()
	require.NoError(t, err)
	require.Len(t, stages, 1)
	require.Equal(t, []string{"a", "b"}, stages[0].Approvers)
}

func TestCreateWorkflowDuplicateName(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	svc := NewService(db)

	_, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("a"), "creator")
	require.NoError(t, err)

	_, err = svc.CreateWorkflow(ctx, "合同审批", "", singleStage("b"), "creator")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindConflict))
}

func TestUpdateWorkflow(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	svc := NewService(db)

	wf, err := svc.CreateWorkflow(ctx, "合同审批", "", singleStage("a"), "creator")
	require.NoError(t, err)

	// 非法阶段配置被拒
	_, err = svc.UpdateWorkflow(ctx, wf.ID, UpdateParams{Stages: []models.Stage{{Name: "x"}}})
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))

	inactive := false
	newName := "合同审批 v2"
	updated, err := svc.UpdateWorkflow(ctx, wf.ID, UpdateParams{
		Name:   &newName,
		Stages: singleStage("a", "c"),
		Active: &inactive,
	})
	require.NoError(t, err)
	require.Equal(t, newName, updated.Name)
	require.False(t, updated.Active)

	stages, err := updated.DecodeStages()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, stages[0].Approvers)
}

func TestGetWorkflowNotFound(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	svc := NewService(db)

	_, err := svc.GetWorkflow(ctx, "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindNotFound))
}

func TestListActiveWorkflows(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	svc := NewService(db)

	active, err := svc.CreateWorkflow(ctx, "活跃流程", "", singleStage("a"), "creator")
	require.NoError(t, err)

	disabled, err := svc.CreateWorkflow(ctx, "停用流程", "", singleStage("a"), "creator")
	require.NoError(t, err)
	off := false
	_, err = svc.UpdateWorkflow(ctx, disabled.ID, UpdateParams{Active: &off})
	require.NoError(t, err)

	workflows, err := svc.ListActiveWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	require.Equal(t, active.ID, workflows[0].ID)
}
