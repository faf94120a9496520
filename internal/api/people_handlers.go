package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/service"
)

func ListPeople(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		people, err := app.Store().ListPeople(c.Request.Context(), user.Workspace())
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to fetch people")
			return
		}
		HandleSuccess(c, app.Logger(), people, map[string]any{"count": len(people)})
	}
}

func PostPerson(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var req service.PersonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		person, err := service.CreatePerson(c.Request.Context(), app.Store(), user, &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to save person")
			return
		}
		HandleCreated(c, app.Logger(), person)
	}
}

func PutPerson(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var req service.PersonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		person, err := service.UpdatePerson(c.Request.Context(), app.Store(), user, c.Param("id"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to update person")
			return
		}
		HandleSuccess(c, app.Logger(), person, nil)
	}
}

func DeletePerson(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		id := c.Param("id")
		if err := service.RemovePerson(c.Request.Context(), app.Store(), app.Scheduler(), user, id); err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to remove person")
			return
		}
		HandleSuccess(c, app.Logger(), gin.H{"id": id, "deleted": true}, nil)
	}
}

func PutPersonNotifications(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var req service.NotificationToggleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		person, err := service.SetPersonNotifications(c.Request.Context(), app.Store(), app.Scheduler(), user, c.Param("id"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to update notifications")
			return
		}
		HandleSuccess(c, app.Logger(), person, nil)
	}
}
