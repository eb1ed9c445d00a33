package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// adminClaims is the JWT payload an operator token carries. Only role is
// checked; everything else is standard registered claims.
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// jwtAuth builds a gin middleware that requires a valid HS256 bearer token
// signed with key before admin-only routes run, reduced from a fuller JWT
// validator to the one shared-secret HS256 case the admin surface actually
// needs.
func jwtAuth(key string) gin.HandlerFunc {
	secret := []byte(key)
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "admin auth not configured",
			})
			return
		}

		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			unauthorized(c)
			return
		}

		claims := &adminClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid {
			unauthorized(c)
			return
		}

		c.Set(ctxRoleKey, claims.Role)
		c.Next()
	}
}

const ctxRoleKey = "httpapi.role"

func extractBearer(header string) string {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
