package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	leaderboardRepo "pharos.xyz/statschecker/internal/modules/leaderboard/repository"
	"pharos.xyz/statschecker/internal/modules/wallet/cache"
	"pharos.xyz/statschecker/internal/upstream"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/dto"
	"pharos.xyz/statschecker/pkg/logger"
	"pharos.xyz/statschecker/pkg/metrics"
	"pharos.xyz/statschecker/pkg/validator"
)

type Fetcher interface {
	FetchUser(ctx context.Context, address string) (*upstream.UserPayload, error)
}

type RankResolver interface {
	RankOf(ctx context.Context, points int64) (*int64, error)
}

// HistoryRecorder archives a finished check. It must not block.
type HistoryRecorder interface {
	RecordAsync(record *dto.UserStatRecord)
}

type WalletService interface {
	CheckWallet(ctx context.Context, address string) (*dto.UserStatRecord, error)
	CacheSize(ctx context.Context) int
	CacheBackend() string
}

type walletService struct {
	fetcher Fetcher
	cache   cache.FreshnessCache
	store   leaderboardRepo.Store
	ranks   RankResolver
	history HistoryRecorder
	clock   clockwork.Clock

	inflight singleflight.Group
}

func NewWalletService(
	fetcher Fetcher,
	freshness cache.FreshnessCache,
	store leaderboardRepo.Store,
	ranks RankResolver,
	history HistoryRecorder,
	clock clockwork.Clock,
) WalletService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &walletService{
		fetcher: fetcher,
		cache:   freshness,
		store:   store,
		ranks:   ranks,
		history: history,
		clock:   clock,
	}
}

func (s *walletService) CacheSize(ctx context.Context) int {
	return s.cache.Len(ctx)
}

func (s *walletService) CacheBackend() string {
	return s.cache.Backend()
}

// CheckWallet returns the stats for address, from the freshness cache when
// possible. Concurrent checks of the same wallet share one upstream fetch.
func (s *walletService) CheckWallet(ctx context.Context, address string) (*dto.UserStatRecord, error) {
	address = strings.TrimSpace(address)
	if !validator.IsWalletAddress(address) {
		return nil, apperror.ErrValidation
	}
	key := strings.ToLower(address)

	if rec, ok := s.cache.Get(ctx, key); ok {
		return rec, nil
	}

	v, err, shared := s.inflight.Do(key, func() (any, error) {
		// a caller hanging up must not fail the others waiting on this fetch
		return s.fetchAndStore(context.WithoutCancel(ctx), key)
	})
	if err != nil {
		return nil, err
	}
	rec := v.(*dto.UserStatRecord)
	if shared {
		rec = rec.Clone()
	}
	return rec, nil
}

func (s *walletService) fetchAndStore(ctx context.Context, address string) (*dto.UserStatRecord, error) {
	payload, err := s.fetcher.FetchUser(ctx, address)
	if err != nil {
		return nil, err
	}

	rec := Normalize(address, payload)
	rec.ExactRank = s.rankOf(ctx, rec.TotalPoints)
	now := s.clock.Now().UTC()
	rec.LastCheckAt = &now

	if s.store.Enabled() {
		saved, err := s.store.SaveCheck(ctx, rec)
		if err != nil {
			metrics.StoreWriteFailures.WithLabelValues("save_check").Inc()
			logger.L().Warn("persisting wallet check failed",
				zap.String("address", address),
				zap.Error(err),
			)
		} else {
			rec = saved
		}
	}

	s.cache.Set(ctx, address, rec)
	if s.history != nil {
		s.history.RecordAsync(rec.Clone())
	}
	return rec, nil
}

// rankOf degrades to no rank when the store can't answer.
func (s *walletService) rankOf(ctx context.Context, points int64) *int64 {
	if s.ranks == nil {
		return nil
	}
	rank, err := s.ranks.RankOf(ctx, points)
	if err != nil {
		if !errors.Is(err, apperror.ErrStoreUnavailable) {
			logger.Warnf("rank lookup for %d points: %v", points, err)
		}
		return nil
	}
	return rank
}
