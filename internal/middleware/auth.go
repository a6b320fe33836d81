package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"authgate/api/internal/security"
	"authgate/api/internal/service"
)

// Context keys set by the auth guard for downstream handlers.
const (
	CtxClaims   = "auth_claims"
	CtxRawToken = "auth_raw_token"
)

// Auth validates the bearer token before anything else runs. The kind
// pins which token is acceptable; an empty kind admits either, which
// is what logout wants. Every rejection is terminal: later guards and
// the handler never see an unauthenticated request.
func Auth(tokens *service.TokenService, kind security.TokenKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing bearer token",
			})
			return
		}

		raw := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := tokens.Validate(c.Request.Context(), raw, kind)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": rejectionMessage(err),
			})
			return
		}

		c.Set(CtxClaims, claims)
		c.Set(CtxRawToken, raw)

		c.Next()
	}
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, security.ErrTokenKindMismatch):
		return "wrong token type"
	case errors.Is(err, service.ErrTokenRevoked):
		return "token revoked"
	case errors.Is(err, service.ErrTokenRejected):
		return "token rejected"
	default:
		return "invalid token"
	}
}

// ClaimsFrom returns the validated claims the auth guard stored.
func ClaimsFrom(c *gin.Context) (*security.Claims, bool) {
	val, ok := c.Get(CtxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*security.Claims)
	return claims, ok
}
