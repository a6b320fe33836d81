package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"authgate/api/internal/throttle"
)

// Throttle rate-limits a route per device identifier. Requests over
// budget fail fast with 429 and never reach downstream guards. A
// throttle-store outage lets requests through; throttling is a shield,
// not a correctness gate.
func Throttle(limiter *throttle.Limiter, route string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := DeviceID(c)
		if deviceID == "" {
			deviceID = c.ClientIP()
		}

		err := limiter.Allow(c.Request.Context(), route, deviceID)
		if err != nil {
			if errors.Is(err, throttle.ErrLimited) {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":   "too_many_requests",
					"message": "request limit reached, retry later",
				})
				return
			}
			log.Warn().Err(err).Str("route", route).Msg("throttle check failed")
		}

		c.Next()
	}
}
