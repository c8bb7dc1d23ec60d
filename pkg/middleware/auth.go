package middleware

import (
	"strings"

	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/identity"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// RequireAuth resolves the bearer credential into a Principal and aborts with
// 401 when the token is missing or unknown.
func RequireAuth(resolver identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"code": errutil.StatusUnauthorized, "message": "no token provided"}})
			return
		}

		p, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"code": errutil.StatusUnauthorized, "message": "invalid or expired token"}})
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireRole gates a route group on the principal's role. Ownership checks
// stay in the handlers.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"code": errutil.StatusUnauthorized, "message": "no principal"}})
			return
		}
		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(403, gin.H{"error": gin.H{"code": errutil.StatusForbidden, "message": "access denied"}})
	}
}

func Principal(c *gin.Context) *identity.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*identity.Principal)
	return p
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
