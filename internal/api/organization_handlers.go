package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/service"
)

func GetOrganization(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := service.GetOrganization(c.Request.Context(), app.Store(), auth.CurrentUser(c))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to fetch organization")
			return
		}
		HandleSuccess(c, app.Logger(), org, map[string]any{"members": len(org.Members)})
	}
}

func PostOrganization(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.OrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		org, err := service.CreateOrganization(c.Request.Context(), app.Store(), auth.CurrentUser(c), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to create organization")
			return
		}
		HandleCreated(c, app.Logger(), org)
	}
}

func PostOrganizationInvite(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := service.RotateInvite(c.Request.Context(), app.Store(), auth.CurrentUser(c))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to rotate invite")
			return
		}
		HandleSuccess(c, app.Logger(), org, nil)
	}
}

func DeleteOrganizationMember(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := service.RemoveMember(c.Request.Context(), app.Store(), auth.CurrentUser(c), id); err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to remove member")
			return
		}
		HandleSuccess(c, app.Logger(), gin.H{"id": id, "removed": true}, nil)
	}
}

// GetInvite resolves an invite link for the signup page.
func GetInvite(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := service.LookupInvite(c.Request.Context(), app.Store(), c.Param("token"))
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Invalid organization link")
			return
		}
		HandleSuccess(c, app.Logger(), info, nil)
	}
}
