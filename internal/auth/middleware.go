package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/config"
	"github.com/Cuffsss/studio/internal/response"
)

const (
	SessionCookie = "session"
	userKey       = "user"
)

// TokenFromRequest prefers an Authorization bearer token over the session
// cookie.
func TokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

func AuthMiddleware(provider Provider, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := TokenFromRequest(c); token != "" {
			var user *internal.User
			var err error
			if cfg.AuthMode == config.AuthModeRemote {
				user, err = provider.ValidateTokenRemote(c.Request.Context(), token)
			} else {
				user, err = provider.ValidateTokenLocal(c.Request.Context(), token)
			}
			if err == nil {
				c.Set(userKey, user)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Unauthorized("Not authenticated"))
	}
}

// CurrentUser returns the user stored by AuthMiddleware. It panics on
// unauthenticated routes.
func CurrentUser(c *gin.Context) *internal.User {
	return c.MustGet(userKey).(*internal.User)
}

func SetSessionCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(ttl.Seconds()), "/", "", secure, true)
}

func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", secure, true)
}
