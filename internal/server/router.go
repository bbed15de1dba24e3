package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDMiddleware tags every request with an id that shows up in the
// response headers and in log lines, so a degraded answer can be matched
// to its server-side error.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RegisterRoutes registers all routes of the query and ingestion boundary.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/healthz", api.HealthHandler)

	v1 := router.Group("/api/v1")
	v1.Use(RequestIDMiddleware())
	{
		v1.POST("/ask", api.AskHandler)
		v1.POST("/documents", api.IngestHandler)
		v1.DELETE("/documents/:id", api.DeleteDocumentHandler)
	}
}
