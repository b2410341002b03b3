package dto

import leaderboardDto "pharos.xyz/statschecker/internal/modules/leaderboard/dto"

type AutoRefresh struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Endpoint string `json:"endpoint"`
}

type HealthResponse struct {
	Success        bool                           `json:"success"`
	Status         string                         `json:"status"`
	Message        string                         `json:"message"`
	Version        string                         `json:"version"`
	CacheSize      int                            `json:"cache_size"`
	CacheBackend   string                         `json:"cache_backend"`
	RankIndex      leaderboardDto.RankIndexStatus `json:"rank_index"`
	ProxiesLoaded  int                            `json:"proxies_loaded"`
	RedisEnabled   bool                           `json:"redis_enabled"`
	RedisConnected bool                           `json:"redis_connected"`
	HistoryEnabled bool                           `json:"history_enabled"`
	AutoRefresh    AutoRefresh                    `json:"auto_refresh"`
}
