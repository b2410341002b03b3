package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pharos.xyz/statschecker/internal/config"
	"pharos.xyz/statschecker/internal/model"
	"pharos.xyz/statschecker/internal/server"
	"pharos.xyz/statschecker/pkg/database"
	"pharos.xyz/statschecker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Init(logger.Option{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		File:     cfg.LogFile,
		Compress: true,
	}); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	redisClient := connectRedis(cfg)
	db := connectHistory(cfg)

	srv, err := server.NewServer(cfg, db, redisClient)
	if err != nil {
		logger.Errorf("failed to build server: %v", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Errorf("server stopped: %v", err)
		}
	case sig := <-quit:
		logger.Infof("received %s, shutting down", sig)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Infof("👋 bye")
}

// connectRedis returns nil when Redis is unset or unreachable; the API then
// runs without ranks or the leaderboard.
func connectRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warnf("REDIS_URL not set, persistent store disabled")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warnf("Redis unavailable, continuing without persistent store: %v", err)
		return nil
	}
	logger.Infof("✅ Redis connected")
	return client
}

func connectHistory(cfg *config.Config) *gorm.DB {
	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Warnf("history archive disabled: %v", err)
		return nil
	}
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(&model.WalletCheck{}); err != nil {
		logger.Warnf("history migration failed, archive disabled: %v", err)
		return nil
	}
	logger.Infof("✅ History archive connected")
	return db
}
