package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pixmo/internal/api/respond"
)

const (
	headerSessionID = "X-Session-Id"
	contextKey      = "session_id"

	// legacySessionID serves clients that never send a session header.
	legacySessionID = "legacy"
)

// sessionToucher refreshes a session's last-seen time, creating the record
// when it does not exist yet.
type sessionToucher interface {
	Touch(ctx context.Context, id string) error
}

// Session resolves the caller's session id from the X-Session-Id header (or
// the sid query parameter for plain links), refreshes the session record and
// stores the id in the request context.
func Session(sessions sessionToucher) ginext.HandlerFunc {
	return func(c *ginext.Context) {
		sid := c.GetHeader(headerSessionID)
		if sid == "" {
			sid = c.Query("sid")
		}
		if sid == "" {
			sid = legacySessionID
		}

		if err := sessions.Touch(c.Request.Context(), sid); err != nil {
			zlog.Logger.Err(err).Str("session_id", sid).Msg("failed to touch session")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("session unavailable"))
			c.Abort()
			return
		}

		c.Set(contextKey, sid)
		c.Next()
	}
}

// SessionID returns the session id stored by the Session middleware.
func SessionID(c *ginext.Context) string {
	return c.GetString(contextKey)
}
