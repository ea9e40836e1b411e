package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAdmin guards the risk-control commands with the configured bearer
// token. An unset token refuses the commands outright rather than leaving
// them open.
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if status, msg := adminCheck(c, token); status != 0 {
			Error(c, status, msg, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

func adminCheck(c *gin.Context, token string) (int, string) {
	if strings.TrimSpace(token) == "" {
		return http.StatusForbidden, "admin commands disabled: no admin token configured"
	}
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if !strings.HasPrefix(auth, "Bearer ") {
		return http.StatusUnauthorized, "missing bearer token"
	}
	presented := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		return http.StatusUnauthorized, "invalid bearer token"
	}
	return 0, ""
}
