package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(gin.Logger())

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/summary", handler.GetSummary)
		v1.GET("/packages", handler.GetPackages)
		v1.GET("/vulns", handler.GetVulns)

		repos := v1.Group("/repos")
		{
			repos.GET("", handler.GetRepos)
			repos.GET("/:owner/:name", handler.GetRepo)
		}
	}

	return router
}
