package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wedsite/internal/errcode"
)

const passwordChangeRequiredMessage = "password change required"

// RequirePasswordChangeCompletedMiddleware 阻止使用临时密码登录的新人编辑站点或上传图片，
// 直到完成改密。只读取访问令牌内的 must_change_password 声明。
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextMustChangePassword) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": passwordChangeRequiredMessage,
				"code":  errcode.PasswordChangeRequired,
			})
			return
		}
		c.Next()
	}
}
