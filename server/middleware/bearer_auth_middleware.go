package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/proxyutil"
)

const bearerPrefix = "Bearer "

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry the configured token. Comparison is constant-time.
func BearerAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			proxyutil.FailStatus(c, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}
		supplied := strings.TrimPrefix(header, bearerPrefix)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			proxyutil.FailStatus(c, http.StatusUnauthorized, fmt.Errorf("invalid token"))
			return
		}
	}
}
