package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/config"
)

func NewRouter(app App, provider auth.Provider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), RequestLogger(app.Logger()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := r.Group("/api/auth")
	if app.Config().AuthMode == config.AuthModeJWT {
		public.POST("/signup", PostSignup(app))
		public.POST("/login", PostLogin(app))
		public.GET("/invites/:token", GetInvite(app))
	}
	public.POST("/logout", PostLogout(app))

	requireUser := auth.AuthMiddleware(provider, app.Config())
	r.GET("/ws", requireUser, ServeNotifications(app))

	protected := r.Group("/api", requireUser)
	protected.GET("/auth/session", GetSession(app))

	protected.GET("/people", ListPeople(app))
	protected.POST("/people", PostPerson(app))
	protected.PUT("/people/:id", PutPerson(app))
	protected.DELETE("/people/:id", DeletePerson(app))
	protected.PUT("/people/:id/notifications", PutPersonNotifications(app))
	protected.POST("/people/:id/sleep", PostStartSleep(app))

	protected.GET("/sessions", ListSessions(app))
	protected.GET("/sessions/:id", GetSleepSession(app))
	protected.POST("/sessions/:id/checkups", PostCheckup(app))
	protected.POST("/sessions/:id/end", PostEndSleep(app))

	protected.GET("/logs", ListLogs(app))
	protected.GET("/logs/export", ExportLogs(app))
	protected.DELETE("/logs", DeleteLogs(app))

	protected.GET("/reports", GetReport(app))
	protected.GET("/settings", GetSettings(app))
	protected.PUT("/settings", PutSettings(app))
	protected.GET("/data", GetData(app))

	// Organizations need locally stored accounts.
	if app.Config().AuthMode == config.AuthModeJWT {
		protected.GET("/organization", GetOrganization(app))
		protected.POST("/organization", PostOrganization(app))
		protected.POST("/organization/invite", PostOrganizationInvite(app))
		protected.DELETE("/organization/members/:id", DeleteOrganizationMember(app))
	}

	return r
}
