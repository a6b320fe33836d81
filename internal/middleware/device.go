package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DeviceID returns the client's identifying string. Sessions of the
// same user are told apart by it.
func DeviceID(c *gin.Context) string {
	return c.GetHeader("User-Agent")
}

// RequireUserAgent is the stateless guard in front of session-scoped
// endpoints: without an identifying header there is no session to act
// on. Unlike the throttle it carries no state.
func RequireUserAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if DeviceID(c) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "bad_request",
				"message": "User-Agent header is required",
			})
			return
		}
		c.Next()
	}
}
