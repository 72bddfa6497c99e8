package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"office-realtime/internal/auth"
	"office-realtime/internal/ws"
	"office-realtime/pkg/response"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// Authenticate verifies the handshake credential before any upgrade. Refused
// requests get a 401 and never reach the hub.
func Authenticate(tokens TokenVerifier, metrics *ws.Metrics, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Verify(auth.CredentialFromRequest(c.Request))
		if err != nil {
			metrics.AuthFailed()
			logger.Info("Handshake refused", "clientIP", c.ClientIP(), "error", err)

			detail := "invalid credential"
			switch {
			case errors.Is(err, auth.ErrMissingCredential):
				detail = "credential is required"
			case errors.Is(err, auth.ErrTokenExpired):
				detail = "token has expired"
			case errors.Is(err, auth.ErrWrongTokenType):
				detail = "access token required"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(response.ErrCodeUnauthenticated, detail))
			return
		}

		c.Set(principalKey, ws.Principal{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		})
		c.Next()
	}
}

// PrincipalFromContext returns the identity set by Authenticate.
func PrincipalFromContext(c *gin.Context) (ws.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return ws.Principal{}, false
	}
	p, ok := v.(ws.Principal)
	return p, ok
}
