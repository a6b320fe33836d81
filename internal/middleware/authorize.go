package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"authgate/api/internal/service"
)

// RequireRole gates a route on role membership. It runs strictly after
// Auth; a request that failed token validation never reaches here.
func RequireRole(roles *service.RoleService, roleName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "no authenticated subject",
			})
			return
		}

		has, err := roles.HasRole(c.Request.Context(), claims.UserID, roleName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_server_error",
				"message": "role lookup failed",
			})
			return
		}
		if !has {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "role '" + roleName + "' required",
			})
			return
		}

		c.Next()
	}
}
