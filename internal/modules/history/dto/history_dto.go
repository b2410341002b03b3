package dto

import "pharos.xyz/statschecker/internal/model"

type HistoryRequest struct {
	Address string `form:"-" validate:"required,wallet"`
	Limit   int    `form:"limit"`
}

type HistoryResponse struct {
	Success bool                `json:"success"`
	Address string              `json:"address"`
	Checks  []model.WalletCheck `json:"checks"`
}
