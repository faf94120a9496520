package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/service"
)

func PostStartSleep(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		snap, err := service.StartSleep(c.Request.Context(), app.Store(), app.Scheduler(), user, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to start sleep session")
			return
		}
		HandleCreated(c, app.Logger(), snap)
	}
}

func ListSessions(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := service.ActiveSessions(app.Scheduler(), auth.CurrentUser(c))
		HandleSuccess(c, app.Logger(), sessions, map[string]any{"count": len(sessions)})
	}
}

func GetSleepSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := service.GetSession(app.Scheduler(), auth.CurrentUser(c), c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusNotFound, "Session not found")
			return
		}
		HandleSuccess(c, app.Logger(), snap, nil)
	}
}

func PostCheckup(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := service.Checkup(c.Request.Context(), app.Scheduler(), auth.CurrentUser(c), c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to log check-up")
			return
		}
		HandleCreated(c, app.Logger(), snap)
	}
}

// PostEndSleep accepts an optional {"notes": "..."} body.
func PostEndSleep(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.EndSleepRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		session, err := service.EndSleep(c.Request.Context(), app.Scheduler(), auth.CurrentUser(c), c.Param("id"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to end sleep session")
			return
		}
		HandleSuccess(c, app.Logger(), session, nil)
	}
}
