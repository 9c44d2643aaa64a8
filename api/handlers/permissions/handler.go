package permissions

import (
	"time"

	respond "gedvault/api/handlers/common"
	"gedvault/internal/auth"
	"gedvault/internal/common"
	"gedvault/internal/models"
	"gedvault/internal/permission"

	"github.com/gin-gonic/gin"
)

// Handler 文档权限处理器
type Handler struct {
	documents   *models.DocumentService
	permissions *permission.Service
}

// NewHandler 创建权限处理器
func NewHandler(documents *models.DocumentService, permissions *permission.Service) *Handler {
	return &Handler{documents: documents, permissions: permissions}
}

// actor 取当前认证用户
func actor(c *gin.Context) (string, bool) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		respond.Error(c, common.NewError(common.KindPermissionDenied, "未认证"))
		return "", false
	}
	return userCtx.UserID, true
}

// loadDocument 解析路径中的文档
func (h *Handler) loadDocument(c *gin.Context) (*models.Document, bool) {
	doc, err := h.documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return nil, false
	}
	return doc, true
}

// Grant 授予权限
// POST /api/v1/documents/:id/permissions
func (h *Handler) Grant(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(c)
	if !ok {
		return
	}

	var req struct {
		UserID    string     `json:"user_id" binding:"required"`
		Kind      string     `json:"kind" binding:"required"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "无效的请求参数")
		return
	}

	kind, err := models.ParsePermissionKind(req.Kind)
	if err != nil {
		respond.Error(c, err)
		return
	}

	grant, err := h.permissions.Grant(c.Request.Context(), doc, actorID, req.UserID, kind, req.ExpiresAt)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Created(c, grant)
}

// Revoke 撤销单个权限
// DELETE /api/v1/documents/:id/permissions/:user_id/:kind
func (h *Handler) Revoke(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(c)
	if !ok {
		return
	}

	kind, err := models.ParsePermissionKind(c.Param("kind"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	revoked, err := h.permissions.Revoke(c.Request.Context(), doc, actorID, c.Param("user_id"), kind)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"revoked": revoked})
}

// RevokeAll 撤销用户在文档上的全部权限
// DELETE /api/v1/documents/:id/permissions/:user_id
func (h *Handler) RevokeAll(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(c)
	if !ok {
		return
	}

	count, err := h.permissions.RevokeAll(c.Request.Context(), doc, actorID, c.Param("user_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"revoked_count": count})
}

// Check 权限评估
// GET /api/v1/documents/:id/permissions/check?kind=view&user_id=
// user_id 缺省为当前用户
func (h *Handler) Check(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(c)
	if !ok {
		return
	}

	kind, err := models.ParsePermissionKind(c.Query("kind"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	userID := c.Query("user_id")
	if userID == "" {
		userID = actorID
	}

	allowed, err := h.permissions.Evaluator().Check(c.Request.Context(), doc, userID, kind)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{
		"user_id": userID,
		"kind":    kind,
		"allowed": allowed,
	})
}

// List 列出文档的授权记录
// GET /api/v1/documents/:id/permissions
func (h *Handler) List(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(c)
	if !ok {
		return
	}

	grants, err := h.permissions.ListDocumentGrants(c.Request.Context(), doc, actorID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"grants": grants, "total": len(grants)})
}

// Share 共享文档
// POST /api/v1/documents/:id/share
func (h *Handler) Share(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(c)
	if !ok {
		return
	}

	var req struct {
		UserID        string   `json:"user_id" binding:"required"`
		Kinds         []string `json:"kinds" binding:"required"`
		ExpiresInDays *int     `json:"expires_in_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "无效的请求参数")
		return
	}

	kinds := make([]models.PermissionKind, 0, len(req.Kinds))
	for _, raw := range req.Kinds {
		kind, err := models.ParsePermissionKind(raw)
		if err != nil {
			respond.Error(c, err)
			return
		}
		kinds = append(kinds, kind)
	}

	grants, err := h.permissions.ShareDocument(c.Request.Context(), doc, actorID, req.UserID, kinds, req.ExpiresInDays)
	if err != nil {
		// 部分成功的授权一并返回，调用方可自行补偿
		respond.Error(c, err)
		return
	}

	respond.Created(c, gin.H{"grants": grants})
}

// Unshare 取消共享
// DELETE /api/v1/documents/:id/share/:user_id
func (h *Handler) Unshare(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	doc, ok := h.loadDocument(c)
	if !ok {
		return
	}

	count, err := h.permissions.Unshare(c.Request.Context(), doc, actorID, c.Param("user_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"revoked_count": count})
}

// SharedWithMe 共享给我的文档
// GET /api/v1/documents/shared-with-me?kind=
func (h *Handler) SharedWithMe(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var kind *models.PermissionKind
	if raw := c.Query("kind"); raw != "" {
		parsed, err := models.ParsePermissionKind(raw)
		if err != nil {
			respond.Error(c, err)
			return
		}
		kind = &parsed
	}

	docs, err := h.permissions.SharedWithMe(c.Request.Context(), actorID, kind)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"documents": docs, "total": len(docs)})
}

// MyGrants 授予我的权限记录
// GET /api/v1/permissions/mine?include_expired=true
func (h *Handler) MyGrants(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	includeExpired := c.Query("include_expired") == "true"
	grants, err := h.permissions.ListUserGrants(c.Request.Context(), actorID, includeExpired)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, gin.H{"grants": grants, "total": len(grants)})
}
