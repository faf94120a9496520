package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/service"
)

func ListLogs(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q service.LogQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid query")
			return
		}
		logs, err := service.ListLogs(c.Request.Context(), app.Store(), auth.CurrentUser(c), &q)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to fetch logs")
			return
		}
		HandleSuccess(c, app.Logger(), logs, map[string]any{"count": len(logs)})
	}
}

// ExportLogs streams the filtered archive as a text or CSV attachment.
func ExportLogs(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q service.LogQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid query")
			return
		}
		var buf bytes.Buffer
		name, err := service.Export(c.Request.Context(), &buf, app.Store(), auth.CurrentUser(c), &q, app.Location())
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to export logs")
			return
		}
		contentType := "text/plain; charset=utf-8"
		if q.Format == service.ExportCSV {
			contentType = "text/csv; charset=utf-8"
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, contentType, buf.Bytes())
	}
}

func DeleteLogs(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.ResetLogs(c.Request.Context(), app.Store(), auth.CurrentUser(c)); err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Failed to reset logs")
			return
		}
		HandleSuccess(c, app.Logger(), gin.H{"reset": true}, nil)
	}
}
