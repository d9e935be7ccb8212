package api

import (
	"github.com/24ep/studio-sub000/internal/notify"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler, hub *notify.Hub) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/ws", gin.WrapF(hub.ServeWS))

	v1 := router.Group("/api/v1")
	v1.Use(ActingUserMiddleware())
	{
		jobs := v1.Group("/jobs")
		jobs.GET("", handler.ListJobs)
		jobs.POST("/uploads", handler.UploadResume)
		jobs.POST("/imports", handler.SubmitImport)
		jobs.POST("/bulk/retry", handler.BulkRetryJobs)
		jobs.POST("/bulk/cancel", handler.BulkCancelJobs)
		jobs.POST("/bulk/delete", handler.BulkDeleteJobs)
		jobs.POST("/:id/retry", handler.RetryJob)
		jobs.POST("/:id/cancel", handler.CancelJob)
		jobs.DELETE("/:id", handler.DeleteJob)

		candidates := v1.Group("/candidates")
		candidates.POST("/transitions/bulk", handler.BulkTransition)
		candidates.GET("/:id/transitions", handler.GetTransitions)
		candidates.POST("/:id/transitions", handler.AppendTransition)

		v1.PATCH("/transitions/:id", handler.UpdateTransitionNotes)
		v1.DELETE("/transitions/:id", handler.DeleteTransition)

		stages := v1.Group("/stages")
		stages.GET("", handler.ListStages)
		stages.POST("", handler.CreateStage)
		stages.PUT("/order", handler.ReorderStages)
		stages.GET("/:id", handler.GetStage)
		stages.PATCH("/:id", handler.UpdateStage)
		stages.DELETE("/:id", handler.DeleteStage)
		stages.POST("/:id/move", handler.MoveStage)
	}
}
