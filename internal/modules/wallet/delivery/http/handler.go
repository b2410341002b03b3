package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	walletDto "pharos.xyz/statschecker/internal/modules/wallet/dto"
	walletService "pharos.xyz/statschecker/internal/modules/wallet/service"
	"pharos.xyz/statschecker/internal/upstream"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/response"
	"pharos.xyz/statschecker/pkg/validator"
)

// MaxBodyBytes caps the check-wallet request body.
const MaxBodyBytes = 1000

type WalletHandler struct {
	service walletService.WalletService
}

func NewWalletHandler(service walletService.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

func (h *WalletHandler) CheckWallet(c *gin.Context) {
	if c.Request.ContentLength > MaxBodyBytes {
		response.Error(c, apperror.Wrap(apperror.ErrRequestTooLarge, "Request too large"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	var req walletDto.CheckWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, apperror.Wrap(apperror.ErrRequestTooLarge, "Request too large"))
			return
		}
		response.Error(c, apperror.Wrap(apperror.ErrInvalidJSON, "Invalid JSON format"))
		return
	}

	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if err := validator.Struct(req); err != nil {
		response.Error(c, apperror.Wrap(apperror.ErrValidation, validator.FormatValidationError(err)))
		return
	}

	record, err := h.service.CheckWallet(c.Request.Context(), req.WalletAddress)
	if err != nil {
		response.Error(c, publicError(err))
		return
	}

	response.OK(c, walletDto.NewCheckWalletResponse(record))
}

// publicError keeps transport details (proxy hosts, upstream URLs) out of the
// response body.
func publicError(err error) error {
	var dataErr *upstream.DataError
	switch {
	case errors.As(err, &dataErr):
		return apperror.Wrap(err, "API error: "+dataErr.Error())
	case errors.Is(err, apperror.ErrUpstreamTransient):
		return apperror.Wrap(err, "Connection failed")
	case errors.Is(err, apperror.ErrValidation):
		return apperror.Wrap(err, "Invalid wallet address format")
	default:
		return err
	}
}
