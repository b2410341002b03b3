package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"

	"pharos.xyz/statschecker/internal/model"
	historyRepo "pharos.xyz/statschecker/internal/modules/history/repository"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/dto"
	"pharos.xyz/statschecker/pkg/logger"
	"pharos.xyz/statschecker/pkg/metrics"
)

const (
	DefaultPoolSize = 16
	DefaultLimit    = 20
	MaxLimit        = 100

	writeTimeout   = 5 * time.Second
	releaseTimeout = 5 * time.Second
)

type HistoryService interface {
	// RecordAsync queues the check for archiving; a full pool drops it.
	RecordAsync(record *dto.UserStatRecord)
	List(ctx context.Context, address string, limit int) ([]model.WalletCheck, error)
	Enabled() bool
	Close()
}

type historyService struct {
	repo historyRepo.HistoryRepository
	pool *ants.Pool
}

// NewHistoryService returns a disabled service when repo is nil.
func NewHistoryService(repo historyRepo.HistoryRepository, poolSize int) (HistoryService, error) {
	if repo == nil {
		return &historyService{}, nil
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("history worker pool: %w", err)
	}
	return &historyService{repo: repo, pool: pool}, nil
}

func (s *historyService) Enabled() bool {
	return s.repo != nil
}

func (s *historyService) RecordAsync(record *dto.UserStatRecord) {
	if s.repo == nil || record == nil {
		return
	}
	check := toWalletCheck(record)

	if err := s.pool.Submit(func() { s.write(check) }); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("history").Inc()
		logger.Warnf("[History] dropping check for %s: %v", check.Address, err)
	}
}

func (s *historyService) write(check *model.WalletCheck) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[History] panic archiving %s: %v\n%s", check.Address, r, debug.Stack())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, check); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("history").Inc()
		logger.Warnf("[History] archive %s failed: %v", check.Address, err)
	}
}

func (s *historyService) List(ctx context.Context, address string, limit int) ([]model.WalletCheck, error) {
	if s.repo == nil {
		return nil, apperror.Wrap(apperror.ErrStoreUnavailable, "History not available")
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	checks, err := s.repo.ListByAddress(ctx, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if checks == nil {
		checks = []model.WalletCheck{}
	}
	return checks, nil
}

// Close waits briefly for queued writes.
func (s *historyService) Close() {
	if s.pool == nil {
		return
	}
	if err := s.pool.ReleaseTimeout(releaseTimeout); err != nil {
		logger.Warnf("[History] pool release: %v", err)
	}
}

func toWalletCheck(r *dto.UserStatRecord) *model.WalletCheck {
	checkedAt := time.Now().UTC()
	if r.LastCheckAt != nil {
		checkedAt = *r.LastCheckAt
	}
	var rank *int64
	if r.ExactRank != nil {
		v := *r.ExactRank
		rank = &v
	}
	return &model.WalletCheck{
		Address:      r.Address,
		TotalPoints:  r.TotalPoints,
		CurrentLevel: r.CurrentLevel,
		ExactRank:    rank,
		TotalChecks:  r.TotalChecks,
		CheckedAt:    checkedAt,
	}
}
