package permission

import (
	"context"
	"time"

	"gedvault/internal/audit"
	"gedvault/internal/common"
	"gedvault/internal/logger"
	"gedvault/internal/metrics"
	"gedvault/internal/models"
	"gedvault/internal/notification"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service 权限授予/撤销/共享服务。
// 授权唯一性由 (document_id, user_id, kind) 唯一索引保证，
// 重复授权走 upsert 覆盖授权人、时间与过期时间，不产生重复行。
type Service struct {
	db        *gorm.DB
	evaluator *Evaluator
	users     *models.UserService
	auditor   audit.Recorder
	notifier  *notification.Service
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOption 自定义配置
type ServiceOption func(*Service)

// WithAuditor 注入审计记录器
func WithAuditor(auditor audit.Recorder) ServiceOption {
	return func(s *Service) { s.auditor = auditor }
}

// WithNotifier 注入通知服务
func WithNotifier(notifier *notification.Service) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

// WithClock 注入时钟
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
		s.evaluator.WithClock(now)
	}
}

// NewService 创建权限服务
func NewService(db *gorm.DB, evaluator *Evaluator, users *models.UserService, opts ...ServiceOption) *Service {
	svc := &Service{
		db:        db,
		evaluator: evaluator,
		users:     users,
		auditor:   audit.NopRecorder{},
		logger:    logger.Get(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Evaluator 暴露底层评估器
func (s *Service) Evaluator() *Evaluator {
	return s.evaluator
}

// authorizeManage 授权/撤销操作的前置检查：
// 操作者必须是文档所有者，或自身持有 share 权限
func (s *Service) authorizeManage(ctx context.Context, doc *models.Document, actorID string) error {
	if doc.OwnerID == actorID {
		return nil
	}
	ok, err := s.evaluator.Check(ctx, doc, actorID, models.PermissionShare)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("权限管理操作被拒绝",
			zap.String("actor_id", actorID),
			zap.String("document_id", doc.ID),
		)
		return common.NewError(common.KindPermissionDenied, "您没有共享此文档的权限")
	}
	return nil
}

// Grant 授予权限。授权人必须是所有者或持有 share；
// 被授权人必须存在且处于激活状态。同键重复授权覆盖原记录元数据。
func (s *Service) Grant(ctx context.Context, doc *models.Document, granterID, granteeID string, kind models.PermissionKind, expiresAt *time.Time) (*models.PermissionGrant, error) {
	if !kind.Valid() {
		return nil, common.NewErrorf(common.KindValidation, "非法权限类型: %q", kind)
	}

	if err := s.authorizeManage(ctx, doc, granterID); err != nil {
		return nil, err
	}

	grantee, err := s.users.GetUser(ctx, granteeID)
	if err != nil {
		return nil, err
	}
	if !grantee.Active {
		return nil, common.NewErrorf(common.KindValidation, "无法向未激活用户 %s 授权", granteeID)
	}

	grant := &models.PermissionGrant{
		DocumentID: doc.ID,
		UserID:     granteeID,
		Kind:       kind,
		GrantedBy:  granterID,
		GrantedAt:  s.now(),
		ExpiresAt:  expiresAt,
	}

	// 唯一索引上的 upsert：已有记录时覆盖授权人、授权时间与过期时间
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"granted_by", "granted_at", "expires_at"}),
		}).
		Create(grant).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "写入授权记录失败", err)
	}

	// upsert 命中已有行时返回持久化后的真实记录
	var stored models.PermissionGrant
	err = s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ? AND kind = ?", doc.ID, granteeID, kind).
		First(&stored).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "读取授权记录失败", err)
	}

	metrics.PermissionGrantsTotal.WithLabelValues(string(kind)).Inc()
	s.auditor.LogAction(ctx, audit.Entry{
		ActorID:     granterID,
		Action:      "permission.grant",
		EntityTable: models.PermissionGrant{}.TableName(),
		EntityID:    doc.ID,
		Data: map[string]any{
			"grantee_id": granteeID,
			"kind":       kind,
			"expires_at": expiresAt,
		},
	})

	return &stored, nil
}

// Revoke 撤销单个权限。授权规则与 Grant 相同。
// 不存在匹配授权时返回 false 而非错误。
func (s *Service) Revoke(ctx context.Context, doc *models.Document, actorID, granteeID string, kind models.PermissionKind) (bool, error) {
	if !kind.Valid() {
		return false, common.NewErrorf(common.KindValidation, "非法权限类型: %q", kind)
	}

	if err := s.authorizeManage(ctx, doc, actorID); err != nil {
		return false, err
	}

	result := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ? AND kind = ?", doc.ID, granteeID, kind).
		Delete(&models.PermissionGrant{})
	if result.Error != nil {
		return false, common.WrapError(common.KindInternal, "删除授权记录失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	metrics.PermissionRevokesTotal.Inc()
	s.auditor.LogAction(ctx, audit.Entry{
		ActorID:     actorID,
		Action:      "permission.revoke",
		EntityTable: models.PermissionGrant{}.TableName(),
		EntityID:    doc.ID,
		Data: map[string]any{
			"grantee_id": granteeID,
			"kind":       kind,
		},
	})

	return true, nil
}

// RevokeAll 撤销指定用户在文档上的全部权限，返回删除条数
func (s *Service) RevokeAll(ctx context.Context, doc *models.Document, actorID, granteeID string) (int64, error) {
	if err := s.authorizeManage(ctx, doc, actorID); err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", doc.ID, granteeID).
		Delete(&models.PermissionGrant{})
	if result.Error != nil {
		return 0, common.WrapError(common.KindInternal, "批量删除授权记录失败", result.Error)
	}

	if result.RowsAffected > 0 {
		s.auditor.LogAction(ctx, audit.Entry{
			ActorID:     actorID,
			Action:      "permission.revoke_all",
			EntityTable: models.PermissionGrant{}.TableName(),
			EntityID:    doc.ID,
			Data: map[string]any{
				"grantee_id": granteeID,
				"count":      result.RowsAffected,
			},
		})
	}

	return result.RowsAffected, nil
}

// SweepExpired 清理已过期授权，返回删除条数。
// 维护性操作，无授权检查，由调度器周期触发。
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", s.now()).
		Delete(&models.PermissionGrant{})
	if result.Error != nil {
		return 0, common.WrapError(common.KindInternal, "清理过期授权失败", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ExpiredGrantsSweptTotal.Add(float64(result.RowsAffected))
		s.logger.Info("过期授权清理完成", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// ShareDocument 共享便捷操作：逐一授予多个权限类型，之后发送共享通知。
// 各次授权相互独立，中途失败不回滚已成功的授权，
// 返回失败前已成功的授权列表与错误（保留的既定行为，调用方自行决定补偿）。
func (s *Service) ShareDocument(ctx context.Context, doc *models.Document, granterID, granteeID string, kinds []models.PermissionKind, expiresInDays *int) ([]*models.PermissionGrant, error) {
	if len(kinds) == 0 {
		return nil, common.NewError(common.KindValidation, "共享至少需要一个权限类型")
	}

	var expiresAt *time.Time
	if expiresInDays != nil {
		t := s.now().AddDate(0, 0, *expiresInDays)
		expiresAt = &t
	}

	grants := make([]*models.PermissionGrant, 0, len(kinds))
	for _, kind := range kinds {
		grant, err := s.Grant(ctx, doc, granterID, granteeID, kind, expiresAt)
		if err != nil {
			return grants, err
		}
		grants = append(grants, grant)
	}

	if s.notifier != nil {
		s.notifier.NotifyShare(ctx, doc, granterID, granteeID, kinds, expiresAt)
	}

	return grants, nil
}

// Unshare 撤销用户在文档上的全部共享权限（RevokeAll 别名）
func (s *Service) Unshare(ctx context.Context, doc *models.Document, actorID, granteeID string) (int64, error) {
	return s.RevokeAll(ctx, doc, actorID, granteeID)
}

// ListDocumentGrants 列出文档的全部授权记录。
// 仅所有者或持有 share 的用户可见。
func (s *Service) ListDocumentGrants(ctx context.Context, doc *models.Document, actorID string) ([]*models.PermissionGrant, error) {
	if err := s.authorizeManage(ctx, doc, actorID); err != nil {
		return nil, err
	}

	var grants []*models.PermissionGrant
	err := s.db.WithContext(ctx).
		Where("document_id = ?", doc.ID).
		Order("granted_at ASC").
		Find(&grants).Error
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "查询文档授权失败", err)
	}
	return grants, nil
}

// ListUserGrants 列出授予某用户的授权记录，可选包含已过期的
func (s *Service) ListUserGrants(ctx context.Context, userID string, includeExpired bool) ([]*models.PermissionGrant, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeExpired {
		query = query.Where("expires_at IS NULL OR expires_at > ?", s.now())
	}

	var grants []*models.PermissionGrant
	if err := query.Order("granted_at ASC").Find(&grants).Error; err != nil {
		return nil, common.WrapError(common.KindInternal, "查询用户授权失败", err)
	}
	return grants, nil
}

// SharedWithMe 列出共享给用户的活跃文档，可按权限类型过滤。
// 已过期授权不计入。
func (s *Service) SharedWithMe(ctx context.Context, userID string, kind *models.PermissionKind) ([]*models.Document, error) {
	if kind != nil && !kind.Valid() {
		return nil, common.NewErrorf(common.KindValidation, "非法权限类型: %q", *kind)
	}

	query := s.db.WithContext(ctx).
		Model(&models.Document{}).
		Distinct("documents.*").
		Joins("JOIN permission_grants ON permission_grants.document_id = documents.id").
		Where("permission_grants.user_id = ?", userID).
		Where("documents.status = ?", models.DocumentStatusActive).
		Where("permission_grants.expires_at IS NULL OR permission_grants.expires_at > ?", s.now())
	if kind != nil {
		query = query.Where("permission_grants.kind = ?", *kind)
	}

	var docs []*models.Document
	if err := query.Find(&docs).Error; err != nil {
		return nil, common.WrapError(common.KindInternal, "查询共享文档失败", err)
	}
	return docs, nil
}
