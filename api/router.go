package api

import (
	"github.com/gin-gonic/gin"

	"clipnorm/config"
	"clipnorm/pipeline"
	"clipnorm/task"
)

func SetupRouter(tm *task.Manager, pl *pipeline.Pipeline, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h := NewHandler(tm, pl, cfg)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		// Sync endpoints: cheap, no capture session involved.
		v1.POST("/probe", h.handleProbe)
		v1.POST("/classify", h.handleClassify)

		// Async preview tasks
		v1.POST("/previews", h.handleCreatePreview)
		v1.GET("/previews", h.handleListPreviews)
		v1.GET("/previews/:taskId", h.handleGetPreviewStatus)
		v1.PATCH("/previews/:taskId/cancel", h.handleCancelPreview)

		// File download endpoint
		v1.GET("/files/:filename", h.handleGetFile)
	}
	return r
}
