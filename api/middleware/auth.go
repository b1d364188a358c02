package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/mediatap/models"
)

// ContextKeyAPIKey is the gin context key holding the caller's API key.
const ContextKeyAPIKey = "api_key"

const missingKeyMsg = "missing API key: send X-API-Key, Authorization: Bearer <key>, or ?api_key= for event streams"

// keyring holds the accepted API keys. Comparison is constant time per key.
type keyring [][]byte

func newKeyring(keys []string) keyring {
	var ring keyring
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			ring = append(ring, []byte(k))
		}
	}
	return ring
}

func (r keyring) accepts(key string) bool {
	ok := false
	for _, k := range r {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

// Auth rejects requests that do not carry one of apiKeys. With no keys
// configured every request passes.
func Auth(apiKeys []string) gin.HandlerFunc {
	ring := newKeyring(apiKeys)
	if len(ring) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := requestKey(c)
		switch {
		case key == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Failure(models.ErrCodeUnauthorized, missingKeyMsg))
		case !ring.accepts(key):
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.Failure(models.ErrCodeUnauthorized, "invalid API key"))
		default:
			c.Set(ContextKeyAPIKey, key)
			c.Next()
		}
	}
}

// requestKey reads X-API-Key, then a Bearer token, then the api_key query
// parameter. Browsers' EventSource cannot set headers.
func requestKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return token
	}
	return c.Query("api_key")
}
