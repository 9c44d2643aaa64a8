package permission

import (
	"context"
	"testing"
	"time"

	"gedvault/internal/common"
	"gedvault/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	return NewService(db, NewEvaluator(db), models.NewUserService(db))
}

func TestGrantByOwner(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	grantee := createTestUser(t, db, "grantee", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	grant, err := svc.Grant(ctx, doc, owner.ID, grantee.ID, models.PermissionEdit, nil)
	require.NoError(t, err)
	require.Equal(t, grantee.ID, grant.UserID)
	require.Equal(t, models.PermissionEdit, grant.Kind)
	require.Equal(t, owner.ID, grant.GrantedBy)
	require.Nil(t, grant.ExpiresAt)
}

func TestGrantUpsertOverwritesMetadata(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	grantee := createTestUser(t, db, "grantee", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	first, err := svc.Grant(ctx, doc, owner.ID, grantee.ID, models.PermissionView, nil)
	require.NoError(t, err)

	expiry := time.Now().UTC().Add(48 * time.Hour)
	second, err := svc.Grant(ctx, doc, owner.ID, grantee.ID, models.PermissionView, &expiry)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "同键重复授权不产生新行")
	require.NotNil(t, second.ExpiresAt)
	require.WithinDuration(t, expiry, *second.ExpiresAt, time.Second)

	var count int64
	require.NoError(t, db.Model(&models.PermissionGrant{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGrantRequiresOwnerOrShare(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	outsider := createTestUser(t, db, "outsider", true)
	grantee := createTestUser(t, db, "grantee", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	_, err := svc.Grant(ctx, doc, outsider.ID, grantee.ID, models.PermissionView, nil)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindPermissionDenied))

	// 持有 share 的用户可以代为授权
	grantDirect(t, db, doc.ID, outsider.ID, models.PermissionShare, nil)
	_, err = svc.Grant(ctx, doc, outsider.ID, grantee.ID, models.PermissionView, nil)
	require.NoError(t, err)
}

func TestGrantRejectsUnknownOrInactiveGrantee(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	inactive := createTestUser(t, db, "inactive", false)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	_, err := svc.Grant(ctx, doc, owner.ID, "00000000-0000-0000-0000-000000000000", models.PermissionView, nil)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindNotFound))

	_, err = svc.Grant(ctx, doc, owner.ID, inactive.ID, models.PermissionView, nil)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))
}

func TestRevokeReturnsFalseWhenMissing(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	grantee := createTestUser(t, db, "grantee", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	revoked, err := svc.Revoke(ctx, doc, owner.ID, grantee.ID, models.PermissionEdit)
	require.NoError(t, err, "撤销不存在的授权不是错误")
	require.False(t, revoked)

	grantDirect(t, db, doc.ID, grantee.ID, models.PermissionEdit, nil)

	revoked, err = svc.Revoke(ctx, doc, owner.ID, grantee.ID, models.PermissionEdit)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = svc.Revoke(ctx, doc, owner.ID, grantee.ID, models.PermissionEdit)
	require.NoError(t, err)
	require.False(t, revoked, "重复撤销幂等")
}

func TestRevokeAllCountsDeletedRows(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	grantee := createTestUser(t, db, "grantee", true)
	other := createTestUser(t, db, "other", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	grantDirect(t, db, doc.ID, grantee.ID, models.PermissionView, nil)
	grantDirect(t, db, doc.ID, grantee.ID, models.PermissionEdit, nil)
	grantDirect(t, db, doc.ID, other.ID, models.PermissionView, nil)

	count, err := svc.RevokeAll(ctx, doc, owner.ID, grantee.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// 其他用户的授权不受影响
	var remaining int64
	require.NoError(t, db.Model(&models.PermissionGrant{}).Where("user_id = ?", other.ID).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)
}

func TestSweepExpiredDeletesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	grantee := createTestUser(t, db, "grantee", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := base.Add(-time.Hour)
	future := base.Add(time.Hour)
	grantDirect(t, db, doc.ID, grantee.ID, models.PermissionView, &past)
	grantDirect(t, db, doc.ID, grantee.ID, models.PermissionEdit, &future)
	grantDirect(t, db, doc.ID, grantee.ID, models.PermissionShare, nil)

	svc := newTestService(t, db)
	svc.now = func() time.Time { return base }

	count, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	var remaining int64
	require.NoError(t, db.Model(&models.PermissionGrant{}).Count(&remaining).Error)
	require.Equal(t, int64(2), remaining, "未过期与永久授权保留")
}

func TestShareDocumentGrantsAllKinds(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	grantee := createTestUser(t, db, "grantee", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	days := 7
	grants, err := svc.ShareDocument(ctx, doc, owner.ID, grantee.ID,
		[]models.PermissionKind{models.PermissionView, models.PermissionEdit}, &days)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	for _, grant := range grants {
		require.NotNil(t, grant.ExpiresAt)
	}

	_, err = svc.ShareDocument(ctx, doc, owner.ID, grantee.ID, nil, nil)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation), "空权限列表应被拒绝")
}

func TestShareDocumentPartialFailureKeepsEarlierGrants(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	grantee := createTestUser(t, db, "grantee", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	grants, err := svc.ShareDocument(ctx, doc, owner.ID, grantee.ID,
		[]models.PermissionKind{models.PermissionView, models.PermissionKind("bogus")}, nil)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindValidation))
	require.Len(t, grants, 1, "失败前已成功的授权保留并返回")

	var count int64
	require.NoError(t, db.Model(&models.PermissionGrant{}).Count(&count).Error)
	require.Equal(t, int64(1), count, "不回滚已成功的授权")
}

func TestSharedWithMe(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	reader := createTestUser(t, db, "reader", true)
	activeDoc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	archivedDoc := createTestDocument(t, db, owner.ID, models.DocumentStatusArchived)
	expiredDoc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)

	past := time.Now().UTC().Add(-time.Hour)
	grantDirect(t, db, activeDoc.ID, reader.ID, models.PermissionView, nil)
	grantDirect(t, db, activeDoc.ID, reader.ID, models.PermissionEdit, nil)
	grantDirect(t, db, archivedDoc.ID, reader.ID, models.PermissionView, nil)
	grantDirect(t, db, expiredDoc.ID, reader.ID, models.PermissionView, &past)

	svc := newTestService(t, db)

	docs, err := svc.SharedWithMe(ctx, reader.ID, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1, "归档文档与过期授权都不计入")
	require.Equal(t, activeDoc.ID, docs[0].ID)

	kind := models.PermissionEdit
	docs, err = svc.SharedWithMe(ctx, reader.ID, &kind)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	kind = models.PermissionDelete
	docs, err = svc.SharedWithMe(ctx, reader.ID, &kind)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestListDocumentGrantsRequiresManageRight(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	reader := createTestUser(t, db, "reader", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	grantDirect(t, db, doc.ID, reader.ID, models.PermissionView, nil)

	_, err := svc.ListDocumentGrants(ctx, doc, reader.ID)
	require.Error(t, err)
	require.True(t, common.IsKind(err, common.KindPermissionDenied))

	grants, err := svc.ListDocumentGrants(ctx, doc, owner.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
}

func TestListUserGrantsFiltersExpired(t *testing.T) {
	ctx := context.Background()
	db := setupPermissionTestDB(t)
	owner := createTestUser(t, db, "owner", true)
	reader := createTestUser(t, db, "reader", true)
	doc := createTestDocument(t, db, owner.ID, models.DocumentStatusActive)
	svc := newTestService(t, db)

	past := time.Now().UTC().Add(-time.Hour)
	grantDirect(t, db, doc.ID, reader.ID, models.PermissionView, nil)
	grantDirect(t, db, doc.ID, reader.ID, models.PermissionEdit, &past)

	grants, err := svc.ListUserGrants(ctx, reader.ID, false)
	require.NoError(t, err)
	require.Len(t, grants, 1)

	grants, err = svc.ListUserGrants(ctx, reader.ID, true)
	require.NoError(t, err)
	require.Len(t, grants, 2)
}
