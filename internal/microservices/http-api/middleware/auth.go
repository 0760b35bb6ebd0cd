package middleware

import (
	"net/http"
	"strings"

	"animetrack/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID = "userID"
	ContextScopes = "scopes"
	ContextRole   = "role"
)

// TokenValidator is the part of AuthService the middleware needs.
type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

// AuthMiddleware checks for a valid bearer JWT in the Authorization header.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		// "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("claims", claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextScopes, claims.Scopes)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// IsAdmin reports whether the authenticated user has the admin role.
func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextRole) == "admin"
}

// RequireScopes middleware checks if token has required scopes
func RequireScopes(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopesInterface, exists := c.Get(ContextScopes)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "scopes not found in token"})
			return
		}

		tokenScopes, ok := scopesInterface.([]string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid scope format"})
			return
		}

		if !hasAllScopes(tokenScopes, requiredScopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "insufficient scopes",
				"required": requiredScopes,
			})
			return
		}

		c.Next()
	}
}

func hasAllScopes(tokenScopes, requiredScopes []string) bool {
	scopeMap := make(map[string]bool, len(tokenScopes))
	for _, scope := range tokenScopes {
		scopeMap[scope] = true
	}

	if scopeMap["*"] {
		return true
	}

	for _, required := range requiredScopes {
		if !scopeMap[required] && !matchesWildcardScope(tokenScopes, required) {
			return false
		}
	}
	return true
}

// matchesWildcardScope: "read:*" grants "read:collection"
func matchesWildcardScope(tokenScopes []string, required string) bool {
	for _, scope := range tokenScopes {
		if prefix, ok := strings.CutSuffix(scope, "*"); ok && strings.HasPrefix(required, prefix) {
			return true
		}
	}
	return false
}
