package service

import (
	"context"
	"time"

	healthDto "pharos.xyz/statschecker/internal/modules/health/dto"
	leaderboardDto "pharos.xyz/statschecker/internal/modules/leaderboard/dto"
)

const (
	Version = "2.3.0"

	refreshEndpoint = "/api/refresh-leaderboard"
	pingTimeout     = time.Second
)

// The health report reads from several services; each is narrowed to what it
// contributes.
type (
	CacheStats interface {
		CacheSize(ctx context.Context) int
		CacheBackend() string
	}
	RankStats interface {
		RankIndexStatus() leaderboardDto.RankIndexStatus
		StoreEnabled() bool
	}
	StorePinger interface {
		Ping(ctx context.Context) error
	}
	ProxyCounter interface {
		ProxyCount() int
	}
	HistoryStatus interface {
		Enabled() bool
	}
)

type Deps struct {
	Cache       CacheStats
	Ranks       RankStats
	Store       StorePinger
	Proxies     ProxyCounter
	History     HistoryStatus
	RefreshCron string
}

type HealthService interface {
	GetHealth(ctx context.Context) healthDto.HealthResponse
}

type healthService struct {
	deps Deps
}

func NewHealthService(deps Deps) HealthService {
	return &healthService{deps: deps}
}

func (s *healthService) GetHealth(ctx context.Context) healthDto.HealthResponse {
	resp := healthDto.HealthResponse{
		Success:        true,
		Status:         "ok",
		Message:        "Pharos Stats API is operational",
		Version:        Version,
		CacheSize:      s.deps.Cache.CacheSize(ctx),
		CacheBackend:   s.deps.Cache.CacheBackend(),
		RankIndex:      s.deps.Ranks.RankIndexStatus(),
		ProxiesLoaded:  s.deps.Proxies.ProxyCount(),
		RedisEnabled:   s.deps.Ranks.StoreEnabled(),
		HistoryEnabled: s.deps.History != nil && s.deps.History.Enabled(),
		AutoRefresh: healthDto.AutoRefresh{
			Enabled:  s.deps.RefreshCron != "",
			Schedule: s.deps.RefreshCron + " (UTC)",
			Endpoint: refreshEndpoint,
		},
	}
	if s.deps.RefreshCron == "" {
		resp.AutoRefresh.Schedule = ""
	}

	if resp.RedisEnabled {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		resp.RedisConnected = s.deps.Store.Ping(pingCtx) == nil
		if !resp.RedisConnected {
			resp.Status = "degraded"
			resp.Message = "Persistent store unreachable, serving upstream data only"
		}
	}
	return resp
}
