package middleware

import (
	"net/http"
	"time"

	"github.com/Elogic360/neatify/pkg/util"
	"github.com/gin-gonic/gin"
)

const (
	SessionIDKey      = "cart_session_id"
	SessionHeaderName = "X-Cart-Session"
)

// SessionMiddleware reads the anonymous cart token from the session cookie,
// falling back to the X-Cart-Session header. It never mints a token.
type SessionMiddleware struct {
	cookieName string
	maxAge     time.Duration
	secure     bool
}

func NewSessionMiddleware(cookieName string, maxAge time.Duration, secure bool) *SessionMiddleware {
	if cookieName == "" {
		cookieName = "cart_session_id"
	}
	return &SessionMiddleware{
		cookieName: cookieName,
		maxAge:     maxAge,
		secure:     secure,
	}
}

func (m *SessionMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(m.cookieName)
		if err != nil || raw == "" {
			raw = c.GetHeader(SessionHeaderName)
		}

		if token, ok := util.NormalizeSessionToken(raw); ok {
			c.Set(SessionIDKey, token)
		} else if raw != "" {
			GetLoggerFromContext(c).Debug("Ignoring malformed session token", map[string]interface{}{
				"path":   c.Request.URL.Path,
				"length": len(raw),
			})
		}

		c.Next()
	}
}

// SetSessionCookie stores token on the client and makes it visible to the
// rest of the request.
func (m *SessionMiddleware) SetSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, token, int(m.maxAge.Seconds()), "/", "", m.secure, true)
	c.Set(SessionIDKey, token)
}

// GetSessionID returns the request's session token, or "" for none.
func GetSessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}
