package auth

import (
	"net/http"

	respond "gedvault/api/handlers/common"
	"gedvault/internal/auth"
	"gedvault/internal/common"
	"gedvault/internal/logger"
	"gedvault/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 认证处理器
type Handler struct {
	users *models.UserService
	jwt   *auth.JWTService
}

// NewHandler 创建认证处理器
func NewHandler(users *models.UserService, jwt *auth.JWTService) *Handler {
	return &Handler{users: users, jwt: jwt}
}

// Login 登录
// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "无效的请求参数")
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		// 用户不存在与密码错误返回同一响应，避免账号枚举
		c.JSON(http.StatusUnauthorized, common.ErrorResponseBody(common.KindValidation, "邮箱或密码错误"))
		return
	}
	if !user.Active {
		c.JSON(http.StatusForbidden, common.ErrorResponseBody(common.KindPermissionDenied, "账号已停用"))
		return
	}

	pair, err := h.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		logger.Error("生成令牌失败", zap.String("user_id", user.ID), zap.Error(err))
		respond.Error(c, common.WrapError(common.KindInternal, "生成令牌失败", err))
		return
	}

	respond.OK(c, gin.H{
		"token": pair,
		"user": gin.H{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	})
}

// Refresh 刷新令牌
// POST /api/auth/refresh
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "无效的请求参数")
		return
	}

	pair, err := h.jwt.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, common.ErrorResponseBody(common.KindValidation, "刷新令牌无效"))
		return
	}

	respond.OK(c, gin.H{"token": pair})
}

// Logout 注销，访问令牌加入黑名单
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	token := auth.ExtractTokenFromBearer(c.GetHeader("Authorization"))
	if token == "" {
		respond.BadRequest(c, "缺少认证令牌")
		return
	}

	if err := h.jwt.InvalidateToken(c.Request.Context(), token); err != nil {
		logger.Warn("令牌注销失败", zap.Error(err))
	}

	respond.OK(c, gin.H{"message": "已注销"})
}
