// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mbk-chat-go/pkg/log"
	"mbk-chat-go/pkg/token"
)

const (
	claimsKey   = "claims"
	usernameKey = "username"
)

// AuthMiddleware 创建一个 Gin 中间件，用于校验外部认证模块签发的 JWT。
// 校验通过后把 claims 和用户名存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization header is required."})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization header format."})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnw("token verification failed", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token."})
			return
		}

		c.Set(claimsKey, claims)
		c.Set(usernameKey, claims.Username)
		c.Next()
	}
}

// RoleMiddleware 只允许 roles 中的角色访问，roles 为空时不做限制。
// 此中间件必须在 AuthMiddleware 之后使用。
func RoleMiddleware(roles []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		claims, ok := Claims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "User information is unavailable."})
			return
		}
		if !allowed[claims.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Access denied: insufficient role."})
			return
		}
		c.Next()
	}
}

// Claims 返回 AuthMiddleware 写入的 claims。
func Claims(c *gin.Context) (*token.CustomClaims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*token.CustomClaims)
	return claims, ok
}

// Username 返回当前请求的用户名，未认证时为空字符串。
func Username(c *gin.Context) string {
	return c.GetString(usernameKey)
}
