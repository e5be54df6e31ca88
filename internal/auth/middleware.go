package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type ctxKey string //these two lines  ensures safe storage/retrieval in context.Context.
const CtxUserID ctxKey = "uid"

// BearerToken extracts the token from "Authorization: Bearer <jwt>",
// falling back to the ?token= query parameter used by websocket clients.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

func JWTMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimPrefix(h, "Bearer ")

		claims, err := ParseToken(secret, tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(string(CtxUserID), claims.UserID)
		c.Next()
	}
}

func MustUserID(c *gin.Context) string {
	if v, ok := c.Get(string(CtxUserID)); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
