package api

import (
	"jaqpot/backend/go/internal/config"
	"jaqpot/backend/go/pkg/httpmiddleware"
	"jaqpot/backend/go/pkg/logger"
	"jaqpot/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all the routes for the task service. limiter may
// be nil, in which case submissions are not rate limited.
func RegisterRoutes(router *gin.Engine, api *API, auth config.AuthConfig, limiter *ratelimiter.KeyedLimiter, log *logger.Logger) {
	router.Use(httpmiddleware.RequestLog(log))

	// All routes will be under /api/v1
	v1 := router.Group("/api/v1")
	v1.Use(httpmiddleware.Auth(auth.JwtSecret, auth.Issuer))

	post := func(g *gin.RouterGroup, path string, h gin.HandlerFunc) {
		if limiter != nil {
			g.POST(path, httpmiddleware.RateLimit(limiter), h)
			return
		}
		g.POST(path, h)
	}

	validation := v1.Group("/validation")
	{
		post(validation, "/test_set_validation", api.ExternalValidationHandler)
		post(validation, "/training_test_cross", api.CrossValidationHandler)
		post(validation, "/training_test_split", api.SplitValidationHandler)
	}

	tasks := v1.Group("/task")
	{
		tasks.GET("", api.GetTasksHandler)
		tasks.GET("/:id", api.GetTaskHandler)
	}

	notifications := v1.Group("/notification")
	{
		notifications.GET("", api.GetNotificationsHandler)
		post(notifications, "", api.CreateNotificationHandler)
		notifications.PUT("", api.UpdateNotificationHandler)
	}

	// WebSocket route
	ws := router.Group("/ws")
	ws.Use(httpmiddleware.Auth(auth.JwtSecret, auth.Issuer))
	{
		ws.GET("/subscribe", api.WebSocketHandler)
	}
}
