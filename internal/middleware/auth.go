package middleware

import (
	"net/http"
	"strings"

	"github.com/campus-erp/backend/internal/services"
	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("email", claims.Email)
		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// GetActor returns the actor context set by AuthMiddleware.
func GetActor(c *gin.Context) services.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(services.Actor); ok {
			return actor
		}
	}
	return services.Actor{}
}

// RequireCapability gates a route group on capability membership. Course-
// scoped approval checks still happen inside the services; this is the
// coarse outer gate.
func RequireCapability(capabilities ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		for _, capability := range capabilities {
			if actor.Can(capability) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		c.Abort()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireCapability(services.CapAdmin)
}
