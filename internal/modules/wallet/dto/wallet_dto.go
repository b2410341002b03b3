package dto

import "pharos.xyz/statschecker/pkg/dto"

type CheckWalletRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required,wallet"`
}

// CheckWalletResponse flattens the record into the body. ZenithSwaps and
// ZenithLP repeat swap_count and lp_count for older clients.
type CheckWalletResponse struct {
	Success bool `json:"success"`
	*dto.UserStatRecord
	ZenithSwaps int `json:"zenith_swaps"`
	ZenithLP    int `json:"zenith_lp"`
}

func NewCheckWalletResponse(record *dto.UserStatRecord) CheckWalletResponse {
	return CheckWalletResponse{
		Success:        true,
		UserStatRecord: record,
		ZenithSwaps:    record.SwapCount,
		ZenithLP:       record.LPCount,
	}
}
