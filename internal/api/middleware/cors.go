package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// CORS answers cross-origin requests from the configured origins.
// "*" allows every origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := lo.Map(allowedOrigins, func(o string, _ int) string {
		return strings.TrimSuffix(strings.TrimSpace(o), "/")
	})
	allowAll := lo.Contains(origins, "*")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		if origin != "" && (allowAll || lo.Contains(origins, strings.TrimSuffix(origin, "/"))) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
