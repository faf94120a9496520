package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/response"
)

// HandleError writes the error envelope. status is used only when err does
// not map to a more specific status. Server-side details stay in the log.
func HandleError(c *gin.Context, logger internal.Logger, err error, status int, msg string) {
	requestID := c.GetString("request_id")
	status = internal.StatusFor(err, status)
	var resp response.APIResponse
	switch {
	case status >= http.StatusInternalServerError:
		logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.NewAppError(status, msg)
	case status == http.StatusBadRequest:
		logger.Warnf("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.BadRequest(msg + ": " + err.Error())
	case status == http.StatusForbidden:
		logger.Warnf("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.Forbidden(msg)
	case status == http.StatusNotFound:
		logger.Warnf("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.NotFound(msg)
	default:
		logger.Warnf("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.NewAppError(status, msg+": "+err.Error())
	}
	c.JSON(status, resp)
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Debugf("[request_id=%s] Success", requestID)
	c.JSON(http.StatusOK, response.Success(data, meta))
}

func HandleCreated(c *gin.Context, logger internal.Logger, data interface{}) {
	requestID := c.GetString("request_id")
	logger.Debugf("[request_id=%s] Created", requestID)
	c.JSON(http.StatusCreated, response.Success(data, nil))
}
