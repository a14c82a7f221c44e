package middleware

import (
	"net/http"
	"strings"

	"nido/internal/core/domain"
	"nido/internal/core/services"

	"github.com/gin-gonic/gin"
)

// SessionAuthMiddleware guards endpoints with the session tokens minted
// for admitted viewers. The bearer token must verify against the
// device's pairing secret.
func SessionAuthMiddleware(identity *services.IdentityService, token domain.PairingToken) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := identity.ValidateSessionToken(token, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			c.Abort()
			return
		}

		c.Set("viewer_id", claims.DeviceID)
		c.Set("viewer_name", claims.Name)
		c.Next()
	}
}
