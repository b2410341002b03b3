package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	leaderboardDto "pharos.xyz/statschecker/internal/modules/leaderboard/dto"
	leaderboardService "pharos.xyz/statschecker/internal/modules/leaderboard/service"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/response"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 50
)

type LeaderboardHandler struct {
	service leaderboardService.LeaderboardService
}

func NewLeaderboardHandler(service leaderboardService.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// GetStats serves the daily snapshot.
func (h *LeaderboardHandler) GetStats(c *gin.Context) {
	if !h.service.StoreEnabled() {
		response.Error(c, apperror.Wrap(apperror.ErrStoreUnavailable, "Statistics not available - Redis not connected"))
		return
	}

	snap, err := h.service.GetSnapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, leaderboardDto.StatsResponse{Success: true, Snapshot: snap})
}

func (h *LeaderboardHandler) RefreshLeaderboard(c *gin.Context) {
	if !h.service.StoreEnabled() {
		response.Error(c, apperror.Wrap(apperror.ErrStoreUnavailable, "Redis not available"))
		return
	}

	result, err := h.service.InvalidateAndRefresh(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.New(apperror.MapErrorToStatus(err), "Failed to refresh leaderboard: "+err.Error(), err))
		return
	}

	response.OK(c, result)
}

// GetLeaderboard is the live top list, bypassing the daily snapshot.
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	var req leaderboardDto.TopRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		req.Limit = defaultTopLimit
	}

	limit := req.Limit
	if limit < 1 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	entries, err := h.service.GetTop(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"success": true, "data": entries})
}
