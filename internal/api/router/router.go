package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terrafusion/import-service/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		health := gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
		}

		if deps.RabbitClient != nil && !deps.RabbitClient.IsConnected() {
			status = http.StatusServiceUnavailable
			health["status"] = "degraded"
			health["rabbitmq"] = "disconnected"
		}
		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				health["status"] = "degraded"
				health["database"] = "unreachable"
			}
		}

		c.JSON(status, health)
	})

	importHandler := handler.NewImportHandler(deps)
	recordHandler := handler.NewRecordHandler(deps)

	v1 := r.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		{
			// POST /api/v1/imports - Queue import jobs (single file or batch)
			imports.POST("", importHandler.CreateImport)

			// GET /api/v1/imports?user_id=U - List a user's jobs
			imports.GET("", importHandler.ListImports)

			// GET /api/v1/imports/:job_id - Job snapshot
			imports.GET("/:job_id", importHandler.GetImport)

			// DELETE /api/v1/imports/:job_id - Request cancellation
			imports.DELETE("/:job_id", importHandler.CancelImport)

			// GET /api/v1/imports/:job_id/events - NDJSON event stream
			imports.GET("/:job_id/events", importHandler.StreamEvents)

			// GET /api/v1/imports/:job_id/audit - Audit trail
			imports.GET("/:job_id/audit", importHandler.GetAudit)
		}

		records := v1.Group("/records")
		{
			// POST /api/v1/records/validate - Validate without importing
			records.POST("/validate", recordHandler.ValidateRecords)

			// POST /api/v1/records/correct - Correct a single record
			records.POST("/correct", recordHandler.CorrectRecord)
		}

		// GET /api/v1/formats - Supported source formats
		v1.GET("/formats", importHandler.ListFormats)
	}

	return r
}
