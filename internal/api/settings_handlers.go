package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/service"
)

func GetSettings(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := service.GetSettings(c.Request.Context(), app.Settings(), auth.CurrentUser(c))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to fetch settings")
			return
		}
		HandleSuccess(c, app.Logger(), st, nil)
	}
}

func PutSettings(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.SettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		st, err := service.UpdateSettings(c.Request.Context(), app.Settings(), auth.CurrentUser(c), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		HandleSuccess(c, app.Logger(), st, nil)
	}
}

func GetReport(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := service.GetReport(c.Request.Context(), app.Store(), auth.CurrentUser(c), app.Clock().Now())
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to build report")
			return
		}
		HandleSuccess(c, app.Logger(), report, nil)
	}
}

func GetData(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := service.LoadData(c.Request.Context(), app.Store(), app.Settings(), app.Scheduler(), auth.CurrentUser(c))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to load data")
			return
		}
		HandleSuccess(c, app.Logger(), data, nil)
	}
}
