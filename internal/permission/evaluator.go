package permission

import (
	"context"
	"time"

	"gedvault/internal/common"
	"gedvault/internal/metrics"
	"gedvault/internal/models"

	"gorm.io/gorm"
)

// Evaluator 权限评估器。回答"用户 U 能否对文档 D 执行动作 A"：
//  1. 文档所有者隐含全部权限，无需任何授权记录；
//  2. 其次查找 (文档, 用户, 类型) 的未过期显式授权；
//  3. 仅当查询 view 时，edit/delete/share 任一未过期授权隐含 view；
//  4. 否则拒绝。
//
// 无副作用，给定授权状态与时钟即确定性。文档与所有者由调用方加载传入，
// 评估器不负责取数。
type Evaluator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEvaluator 创建权限评估器
func NewEvaluator(db *gorm.DB) *Evaluator {
	return &Evaluator{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 注入时钟，供过期语义测试使用
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Check 评估权限。kind 非法时返回 Validation 错误（调用方编程错误）。
// 已过期的授权视同不存在，即使其行尚未被清理。
func (e *Evaluator) Check(ctx context.Context, doc *models.Document, userID string, kind models.PermissionKind) (bool, error) {
	if !kind.Valid() {
		return false, common.NewErrorf(common.KindValidation, "非法权限类型: %q", kind)
	}

	allowed, err := e.check(ctx, doc, userID, kind)
	if err != nil {
		return false, err
	}

	result := "denied"
	if allowed {
		result = "allowed"
	}
	metrics.PermissionChecksTotal.WithLabelValues(string(kind), result).Inc()
	return allowed, nil
}

func (e *Evaluator) check(ctx context.Context, doc *models.Document, userID string, kind models.PermissionKind) (bool, error) {
	// 所有者拥有全部权限
	if doc.OwnerID == userID {
		return true, nil
	}

	now := e.now()

	// 显式授权
	ok, err := e.hasUnexpiredGrant(ctx, doc.ID, userID, now, kind)
	if err != nil || ok {
		return ok, err
	}

	// 高阶权限隐含 view
	if kind == models.PermissionView {
		return e.hasUnexpiredGrant(ctx, doc.ID, userID, now, models.ViewImplyingKinds...)
	}

	return false, nil
}

// hasUnexpiredGrant 判断是否存在任一指定类型的未过期授权
func (e *Evaluator) hasUnexpiredGrant(ctx context.Context, documentID, userID string, now time.Time, kinds ...models.PermissionKind) (bool, error) {
	var count int64
	err := e.db.WithContext(ctx).
		Model(&models.PermissionGrant{}).
		Where("document_id = ? AND user_id = ? AND kind IN ?", documentID, userID, kinds).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error
	if err != nil {
		return false, common.WrapError(common.KindInternal, "查询授权记录失败", err)
	}
	return count > 0, nil
}
