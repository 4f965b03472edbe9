package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "mediaforge",
		})
	})

	api := r.Group("/api/v1")
	{
		jobs := api.Group("/jobs")
		{
			jobs.POST("/video", s.submitVideoJob)
			jobs.POST("/audio", s.submitAudioJob)
			jobs.GET("/:id", s.getJob)
			jobs.DELETE("/:id", s.cancelJob)
		}

		api.GET("/queue/stats", s.queueStats)
		api.POST("/manifest/:id", s.buildManifest)
		api.POST("/bandwidth/:session", s.trackBandwidth)
		api.GET("/events/ws", s.streamEvents)
	}

	if s.mediaDir != "" {
		r.Static("/media", s.mediaDir)
	}
}
