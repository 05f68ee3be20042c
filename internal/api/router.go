package api

import (
	"net/http"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the routes, CORS and request logging.
func NewRouter(h *Handler, allowedOrigins string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), cors(allowedOrigins))

	// Root endpoint for SSL verification
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.GET("/health", h.HealthHandler)

	v1 := router.Group("/api/v1")
	v1.POST("/analyze-swing", h.AnalyzeSwingHandler)
	v1.GET("/runs", h.ListRunsHandler)
	v1.GET("/runs/:id", h.GetRunHandler)
	v1.GET("/runs/:id/metrics", h.RunMetricsHandler)

	return router
}

func cors(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		common.Logger().WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debug("request served")
	}
}
