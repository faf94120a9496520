package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/service"
)

type sessionResponse struct {
	User      *internal.User `json:"user"`
	Token     string         `json:"token,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// startSession issues a token for user and sets the session cookie.
func startSession(c *gin.Context, app App, user *internal.User, status int, logger internal.Logger) {
	token, expires, err := app.Tokens().Issue(user)
	if err != nil {
		HandleError(c, logger, err, http.StatusInternalServerError, "Failed to start session")
		return
	}
	auth.SetSessionCookie(c, token, app.Tokens().TTL(), app.Config().SecureCookies())
	resp := sessionResponse{User: user, Token: token, ExpiresAt: &expires}
	if status == http.StatusCreated {
		HandleCreated(c, logger, resp)
		return
	}
	HandleSuccess(c, logger, resp, nil)
}

func PostSignup(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		user, err := service.Signup(c.Request.Context(), app.Store(), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Signup failed")
			return
		}
		startSession(c, app, user, http.StatusCreated, app.Logger())
	}
}

func PostLogin(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, http.StatusBadRequest, "Invalid JSON")
			return
		}
		user, err := service.Login(c.Request.Context(), app.Store(), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, http.StatusInternalServerError, "Login failed")
			return
		}
		startSession(c, app, user, http.StatusOK, app.Logger())
	}
}

func PostLogout(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth.ClearSessionCookie(c, app.Config().SecureCookies())
		HandleSuccess(c, app.Logger(), gin.H{"logged_out": true}, nil)
	}
}

func GetSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		HandleSuccess(c, app.Logger(), sessionResponse{User: auth.CurrentUser(c)}, nil)
	}
}
