package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/observability"
)

// setupRoutes configures all HTTP routes for the acquisition service.
func (s *Server) setupRoutes() {
	// Operational endpoints
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReadiness)

	if s.config.Observability.Metrics.Enabled {
		s.router.GET(s.config.Observability.Metrics.Path, s.handleMetrics)
	}

	// Legacy SDK paths (camelCase wire shape)
	s.router.GET("/updateCheck", s.handler.UpdateCheck)
	s.router.POST("/reportStatus/deploy", s.handler.ReportDeploy)
	s.router.POST("/reportStatus/download", s.handler.ReportDownload)

	// Versioned paths (snake_case wire shape)
	v01 := s.router.Group("/v0.1/public/codepush")
	{
		v01.GET("/update_check", s.handler.UpdateCheckV1)
		v01.POST("/report_status/deploy", s.handler.ReportDeployV1)
		v01.POST("/report_status/download", s.handler.ReportDownloadV1)
	}
}

// handleHealth reports overall service health. The response body stays the
// plain text the SDK load balancer probes expect.
func (s *Server) handleHealth(c *gin.Context) {
	response := s.healthCheck.CheckHealth(c.Request.Context())

	if response.Status != observability.StatusHealthy {
		for name, component := range response.Components {
			if component.Status != observability.StatusHealthy {
				s.logger.Error("Health check failed",
					zap.String("component", name),
					zap.String("error", component.Error),
				)
			}
		}
		c.String(http.StatusInternalServerError, "Unhealthy")
		return
	}

	c.String(http.StatusOK, "Healthy")
}

// handleReadiness reports whether the server is ready to serve traffic,
// with per-component detail for orchestration probes.
func (s *Server) handleReadiness(c *gin.Context) {
	response := s.healthCheck.CheckReadiness(c.Request.Context())

	status := http.StatusOK
	if !response.Ready {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, response)
}

// handleMetrics serves Prometheus metrics in exposition format.
func (s *Server) handleMetrics(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
