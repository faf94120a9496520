package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal/auth"
)

// ServeNotifications upgrades the request to the notification WebSocket. The
// upgrader has already answered the client when ServeWS fails.
func ServeNotifications(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		if err := app.Hub().ServeWS(c.Writer, c.Request, user.Workspace()); err != nil {
			app.Logger().Warnf("[request_id=%s] websocket upgrade for %s failed: %v", c.GetString("request_id"), user.Workspace(), err)
		}
	}
}
