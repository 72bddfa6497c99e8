package middleware

import (
	"crypto/subtle"
	"net/http"

	"office-realtime/pkg/response"

	"github.com/gin-gonic/gin"
)

const InternalKeyHeader = "X-Internal-Key"

// RequireInternalKey guards the producer and presence endpoints. An empty
// key leaves them open, which is only meant for local development.
func RequireInternalKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(InternalKeyHeader))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(response.ErrCodeForbidden, "missing or invalid "+InternalKeyHeader))
			return
		}
		c.Next()
	}
}
