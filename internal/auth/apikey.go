package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// clientCtxKey is the Gin context key used to store the authenticated client name.
const clientCtxKey = "client"

// APIKeyMiddleware guards mutating endpoints by mapping X-API-Key → client name.
// Reads stay public; only routes this middleware is attached to require a key.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		client, ok := lookup(keys, apiKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(clientCtxKey, client)
		c.Next()
	}
}

// Client returns the authenticated client name from the request context.
func Client(c *gin.Context) string {
	v, _ := c.Get(clientCtxKey)
	s, _ := v.(string)
	return s
}

func lookup(keys map[string]string, apiKey string) (string, bool) {
	if apiKey == "" {
		return "", false
	}
	for k, client := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(apiKey)) == 1 {
			return client, true
		}
	}
	return "", false
}
