package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates and configures the gin router.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.SetHTMLTemplate(indexTemplate)

	router.Use(RequestID())
	router.Use(Logger(logger))
	router.Use(Recovery(logger))
	router.Use(CORS())

	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/predict", h.Predict)
	router.POST("/predict/image", h.PredictFromImage)
	router.POST("/predict/example/:name", h.PredictExample)
	router.GET("/examples", h.ListExamples)

	router.POST("/flags", h.CreateFlag)
	router.GET("/flags", h.ListFlags)

	return router
}
