package http

import (
	"github.com/gin-gonic/gin"

	healthService "pharos.xyz/statschecker/internal/modules/health/service"
	"pharos.xyz/statschecker/pkg/response"
)

type HealthHandler struct {
	service healthService.HealthService
}

func NewHealthHandler(service healthService.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

func (h *HealthHandler) GetHealth(c *gin.Context) {
	response.OK(c, h.service.GetHealth(c.Request.Context()))
}
