package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wedsite/internal/auth"
	"wedsite/internal/errcode"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID             = "userID"
	ContextMustChangePassword = "mustChangePassword"
)

// abortUnauthorized 写入 401，并通过 WWW-Authenticate 告诉编辑器是否值得刷新令牌。
func abortUnauthorized(c *gin.Context, description string) {
	c.Header("WWW-Authenticate", `Bearer realm="wedsite", error="invalid_token", error_description="`+description+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": errcode.SessionExpired})
}

// AuthMiddleware 校验访问令牌并将 userID 与 mustChangePassword 注入上下文，
// 同时给请求级 logger 补上 user_id。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := authService.ValidateTokenOfType(rawToken, auth.TokenTypeAccess)
		if err != nil {
			description := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				description = "token expired"
			}
			LoggerFromContext(c).Debug("access token rejected", slog.Any("error", err))
			abortUnauthorized(c, description)
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextMustChangePassword, claims.MustChangePassword)
		if _, ok := c.Get(slogLoggerKey); ok {
			c.Set(slogLoggerKey, LoggerFromContext(c).With(slog.Uint64("user_id", uint64(claims.UserID))))
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
