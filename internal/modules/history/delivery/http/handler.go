package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	historyDto "pharos.xyz/statschecker/internal/modules/history/dto"
	historyService "pharos.xyz/statschecker/internal/modules/history/service"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/response"
	"pharos.xyz/statschecker/pkg/validator"
)

type HistoryHandler struct {
	service historyService.HistoryService
}

func NewHistoryHandler(service historyService.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: service}
}

func (h *HistoryHandler) GetWalletHistory(c *gin.Context) {
	var req historyDto.HistoryRequest
	req.Address = strings.TrimSpace(c.Param("address"))
	if err := c.ShouldBindQuery(&req); err != nil {
		req.Limit = historyService.DefaultLimit
	}

	if err := validator.Struct(req); err != nil {
		response.Error(c, apperror.Wrap(apperror.ErrValidation, validator.FormatValidationError(err)))
		return
	}

	checks, err := h.service.List(c.Request.Context(), req.Address, req.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, historyDto.HistoryResponse{
		Success: true,
		Address: strings.ToLower(req.Address),
		Checks:  checks,
	})
}
