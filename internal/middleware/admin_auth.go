package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"movies-sync-service/internal/model"

	"github.com/gin-gonic/gin"
)

// AdminAuth returns a middleware that validates the admin API key.
// If apiKey is empty, authentication is disabled.
func AdminAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		// "Bearer <token>"、"ApiKey <token>" 或查询参数 api_key
		token := c.GetHeader("Authorization")
		if token != "" {
			token = strings.TrimPrefix(token, "Bearer ")
			token = strings.TrimPrefix(token, "ApiKey ")
		} else {
			token = c.Query("api_key")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.APIResponse{
				Code:  http.StatusUnauthorized,
				Error: "unauthorized: missing API key",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, model.APIResponse{
				Code:  http.StatusForbidden,
				Error: "forbidden: invalid API key",
			})
			return
		}

		c.Next()
	}
}
