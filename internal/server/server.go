package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pharos.xyz/statschecker/internal/config"
	"pharos.xyz/statschecker/internal/middleware"
	"pharos.xyz/statschecker/internal/scheduler"
	"pharos.xyz/statschecker/internal/upstream"

	healthHttp "pharos.xyz/statschecker/internal/modules/health/delivery/http"
	healthService "pharos.xyz/statschecker/internal/modules/health/service"

	historyHttp "pharos.xyz/statschecker/internal/modules/history/delivery/http"
	historyRepo "pharos.xyz/statschecker/internal/modules/history/repository"
	historyService "pharos.xyz/statschecker/internal/modules/history/service"

	leaderboardHttp "pharos.xyz/statschecker/internal/modules/leaderboard/delivery/http"
	leaderboardRepo "pharos.xyz/statschecker/internal/modules/leaderboard/repository"
	leaderboardService "pharos.xyz/statschecker/internal/modules/leaderboard/service"

	"pharos.xyz/statschecker/internal/modules/wallet/cache"
	walletHttp "pharos.xyz/statschecker/internal/modules/wallet/delivery/http"
	walletService "pharos.xyz/statschecker/internal/modules/wallet/service"

	"pharos.xyz/statschecker/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg       *config.Config
	engine    *gin.Engine
	http      *http.Server
	scheduler *scheduler.Scheduler
	limiter   *middleware.RateLimiter
	history   historyService.HistoryService

	stopBackground context.CancelFunc
}

// NewServer wires every module. redisClient and db may be nil: the persistent
// store and the history archive are then disabled.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	clock := clockwork.NewRealClock()

	store := leaderboardRepo.NewRedisStore(redisClient)
	leaderboardSvc := leaderboardService.NewLeaderboardService(store, leaderboardService.NewRankIndex(clock), clock, leaderboardService.Options{
		TopN:        cfg.LeaderboardTopN,
		SnapshotTTL: cfg.LeaderboardTTL,
		AutoRebuild: true,
	})
	leaderboardHandler := leaderboardHttp.NewLeaderboardHandler(leaderboardSvc)

	var archive historyRepo.HistoryRepository
	if db != nil {
		archive = historyRepo.NewHistoryRepository(db)
	}
	historySvc, err := historyService.NewHistoryService(archive, historyService.DefaultPoolSize)
	if err != nil {
		return nil, err
	}
	historyHandler := historyHttp.NewHistoryHandler(historySvc)

	freshness := newFreshnessCache(cfg, redisClient, clock)

	fetcher := upstream.NewClient(upstream.Options{
		BaseURL:       cfg.PharosAPIBase,
		BearerToken:   cfg.PharosBearerToken,
		Proxies:       upstream.ParseProxyList(cfg.ProxyList),
		ProxyTimeout:  cfg.UpstreamProxyTimeout,
		DirectTimeout: cfg.UpstreamDirectTimeout,
	})
	logger.Infof("Loaded %d proxies", fetcher.ProxyCount())

	walletSvc := walletService.NewWalletService(fetcher, freshness, store, leaderboardSvc, historySvc, clock)
	walletHandler := walletHttp.NewWalletHandler(walletSvc)

	healthSvc := healthService.NewHealthService(healthService.Deps{
		Cache:       walletSvc,
		Ranks:       leaderboardSvc,
		Store:       store,
		Proxies:     fetcher,
		History:     historySvc,
		RefreshCron: cfg.RefreshCron,
	})
	healthHandler := healthHttp.NewHealthHandler(healthSvc)

	sched := scheduler.NewScheduler()
	if cfg.RefreshCron != "" {
		if err := sched.RegisterJob(scheduler.NewLeaderboardRefreshJob(leaderboardSvc, cfg.RefreshCron)); err != nil {
			return nil, err
		}
	}
	if err := sched.RegisterJob(scheduler.NewRankIndexWarmupJob(leaderboardSvc)); err != nil {
		return nil, err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	authMiddleware := middleware.NewAuthMiddleware(cfg.AdminJWTSecret, cfg.CronSecret)

	router := gin.New()
	setupCORS(router, cfg.AllowedOrigins)
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("/health", "/api/health", "/metrics"))
	router.Use(middleware.Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Served both at the root and under /api so either base URL works.
	for _, group := range []*gin.RouterGroup{router.Group(""), router.Group("/api")} {
		group.POST("/check-wallet", limiter.Middleware(), walletHandler.CheckWallet)
		group.GET("/health", healthHandler.GetHealth)
		group.GET("/leaderboard", leaderboardHandler.GetLeaderboard)
		group.GET("/wallet/:address/history", historyHandler.GetWalletHistory)

		group.GET("/admin/stats", authMiddleware.RequireAdmin(), leaderboardHandler.GetStats)
		group.GET("/refresh-leaderboard", authMiddleware.RequireRefresh(), leaderboardHandler.RefreshLeaderboard)
	}

	return &Server{
		cfg:       cfg,
		engine:    router,
		scheduler: sched,
		limiter:   limiter,
		history:   historySvc,
	}, nil
}

func newFreshnessCache(cfg *config.Config, redisClient *redis.Client, clock clockwork.Clock) cache.FreshnessCache {
	opts := cache.Options{
		TTL:             cfg.CacheTTL,
		MaxSize:         cfg.CacheMaxSize,
		CleanupFraction: cfg.CacheCleanupFraction,
		Clock:           clock,
	}
	if cfg.CacheBackend == config.CacheBackendRedis {
		if redisClient != nil {
			return cache.NewRedisCache(redisClient, opts)
		}
		logger.Warnf("CACHE_BACKEND=redis but Redis is not connected, using the in-memory cache")
	}
	return cache.NewMemoryCache(opts)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the background work and serves until the listener fails or
// Shutdown is called.
func (s *Server) Run() error {
	bg, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel

	go s.limiter.RunCleanup(bg)
	s.scheduler.Start()
	s.scheduler.RunInBackground(scheduler.RankIndexWarmupJobName)

	s.http = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Infof("🚀 Pharos Stats API listening on :%s", s.cfg.Port)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.stopBackground != nil {
		s.stopBackground()
	}
	s.scheduler.Stop(ctx)
	s.history.Close()
	return err
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if allowedOrigins == "" || allowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				corsCfg.AllowOrigins = append(corsCfg.AllowOrigins, o)
			}
		}
	}
	router.Use(cors.New(corsCfg))
}
