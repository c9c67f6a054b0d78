package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/auth"
	"github.com/harentsoaR/clinic-rbac/internal/models"
)

const principalKey = "principal"

// AuthMiddleware resolves the bearer token into a Principal. A rejected token,
// including one for a deactivated or re-roled user, is a 401; a store failure
// while resolving it is a 500.
func AuthMiddleware(validator *auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		principal, err := validator.Authenticate(c.Request.Context(), strings.TrimSpace(tokenString))
		if errors.Is(err, apperrors.ErrUnauthenticated) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if err != nil {
			// The store could not be reached; the token itself may be fine.
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		// Set user info in the context for handlers and the request logger
		c.Set(principalKey, principal)
		c.Set("userID", principal.UserID.Hex())
		c.Set("userRole", string(principal.Role))

		c.Next()
	}
}

// PrincipalFrom returns the principal stored by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}
