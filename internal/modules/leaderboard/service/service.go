package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	leaderboardDto "pharos.xyz/statschecker/internal/modules/leaderboard/dto"
	leaderboardRepo "pharos.xyz/statschecker/internal/modules/leaderboard/repository"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/dto"
	"pharos.xyz/statschecker/pkg/logger"
	"pharos.xyz/statschecker/pkg/metrics"
)

const (
	DefaultTopN        = 100
	DefaultSnapshotTTL = 24 * time.Hour

	cacheInfoCached = "Updated daily at 00:00 UTC via auto-refresh"
	cacheInfoFresh  = "Freshly calculated - next update in 24h"

	rebuildTimeout = 30 * time.Second

	refreshLockName = "leaderboard_refresh"
	refreshLockTTL  = 2 * time.Minute
)

type LeaderboardService interface {
	// RankOf resolves the rank for points, from the rank index when it is
	// valid and from a live count otherwise.
	RankOf(ctx context.Context, points int64) (*int64, error)
	GetSnapshot(ctx context.Context) (*leaderboardDto.Snapshot, error)
	InvalidateAndRefresh(ctx context.Context) (*leaderboardDto.RefreshResult, error)
	GetTop(ctx context.Context, limit int) ([]leaderboardDto.LeaderboardEntry, error)
	EnsureRankIndex(ctx context.Context) error
	RankIndexStatus() leaderboardDto.RankIndexStatus
	StoreEnabled() bool
}

type Options struct {
	TopN        int
	SnapshotTTL time.Duration
	// AutoRebuild starts a background rebuild the first time a lookup finds the
	// index unusable.
	AutoRebuild bool
}

type leaderboardService struct {
	store      leaderboardRepo.Store
	index      *RankIndex
	clock      clockwork.Clock
	opts       Options
	rebuilding atomic.Bool
}

func NewLeaderboardService(store leaderboardRepo.Store, index *RankIndex, clock clockwork.Clock, opts Options) LeaderboardService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if index == nil {
		index = NewRankIndex(clock)
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = DefaultSnapshotTTL
	}
	return &leaderboardService{
		store: store,
		index: index,
		clock: clock,
		opts:  opts,
	}
}

func (s *leaderboardService) StoreEnabled() bool {
	return s.store.Enabled()
}

func (s *leaderboardService) RankOf(ctx context.Context, points int64) (*int64, error) {
	if rank, ok := s.index.RankOf(points); ok {
		metrics.RankLookups.WithLabelValues("index").Inc()
		return &rank, nil
	}

	if !s.store.Enabled() {
		metrics.RankLookups.WithLabelValues("unavailable").Inc()
		return nil, apperror.ErrStoreUnavailable
	}

	if s.opts.AutoRebuild {
		s.rebuildInBackground()
	}

	above, err := s.store.CountWithScoreAtLeast(ctx, points+1)
	if err != nil {
		metrics.RankLookups.WithLabelValues("unavailable").Inc()
		return nil, err
	}
	metrics.RankLookups.WithLabelValues("count").Inc()
	rank := above + 1
	return &rank, nil
}

func (s *leaderboardService) rebuildInBackground() {
	if !s.rebuilding.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.rebuilding.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()
		if err := s.EnsureRankIndex(ctx); err != nil {
			logger.Warnf("rank index background rebuild failed: %v", err)
		}
	}()
}

// EnsureRankIndex makes the index valid: first from the persisted copy, then by
// a full rebuild. On failure the previous (possibly stale) table is kept.
func (s *leaderboardService) EnsureRankIndex(ctx context.Context) error {
	if s.index.Valid() {
		return nil
	}
	if !s.store.Enabled() {
		return apperror.ErrStoreUnavailable
	}

	payload, err := s.store.LoadRankIndex(ctx)
	switch {
	case err == nil:
		ok, importErr := s.index.Import(payload)
		if importErr != nil {
			logger.Warnf("stored rank index is corrupted, rebuilding: %v", importErr)
		} else if ok {
			logger.Infof("rank index loaded from store (%d scores)", s.index.Len())
			return nil
		}
	case errors.Is(err, apperror.ErrNotFound):
	default:
		return err
	}

	all, err := s.store.AllDescending(ctx)
	if err != nil {
		metrics.RankIndexRebuilds.WithLabelValues("error").Inc()
		return fmt.Errorf("rank index rebuild: %w", err)
	}
	s.rebuildIndexFrom(ctx, all)
	return nil
}

func (s *leaderboardService) rebuildIndexFrom(ctx context.Context, all []leaderboardRepo.ScoreEntry) {
	s.index.Rebuild(all)
	metrics.RankIndexRebuilds.WithLabelValues("ok").Inc()

	payload, validUntil, err := s.index.Export()
	if err != nil {
		logger.Warnf("rank index export failed: %v", err)
		return
	}
	ttl := validUntil.Sub(s.clock.Now())
	if ttl <= 0 {
		return
	}
	if err := s.store.SaveRankIndex(ctx, payload, ttl); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("rank_index").Inc()
		logger.Warnf("rank index persist failed: %v", err)
	}
	logger.L().Info("rank index rebuilt",
		zap.Int("wallets", len(all)),
		zap.Int("scores", s.index.Len()),
		zap.Time("valid_until", validUntil),
	)
}

func (s *leaderboardService) RankIndexStatus() leaderboardDto.RankIndexStatus {
	entries, validUntil, valid := s.index.Status()
	status := leaderboardDto.RankIndexStatus{Valid: valid, Entries: entries}
	if !validUntil.IsZero() {
		status.ValidUntil = &validUntil
	}
	return status
}

func (s *leaderboardService) GetSnapshot(ctx context.Context) (*leaderboardDto.Snapshot, error) {
	if !s.store.Enabled() {
		return nil, apperror.ErrStoreUnavailable
	}

	if snap, ok := s.cachedSnapshot(ctx); ok {
		return snap, nil
	}

	all, err := s.store.AllDescending(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.buildAndSaveSnapshot(ctx, all)
	if err != nil {
		return nil, err
	}
	if !s.index.Valid() {
		s.rebuildIndexFrom(ctx, all)
	}
	return snap, nil
}

// cachedSnapshot returns the stored snapshot when it parses and is still inside
// its validity window. Anything else is a miss.
func (s *leaderboardService) cachedSnapshot(ctx context.Context) (*leaderboardDto.Snapshot, bool) {
	payload, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			logger.Warnf("load leaderboard snapshot: %v", err)
		}
		return nil, false
	}

	var snap leaderboardDto.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		logger.Warnf("%v: leaderboard snapshot: %v", apperror.ErrCacheCorruption, err)
		return nil, false
	}
	if s.clock.Since(snap.LastUpdated) >= s.opts.SnapshotTTL {
		return nil, false
	}

	snap.Cached = true
	snap.CacheInfo = cacheInfoCached
	return &snap, true
}

func (s *leaderboardService) buildAndSaveSnapshot(ctx context.Context, all []leaderboardRepo.ScoreEntry) (*leaderboardDto.Snapshot, error) {
	snap, err := s.buildSnapshot(ctx, all)
	if err != nil {
		return nil, err
	}
	metrics.SnapshotBuilds.Inc()

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.store.SaveSnapshot(ctx, payload, s.opts.SnapshotTTL); err != nil {
		metrics.StoreWriteFailures.WithLabelValues("snapshot").Inc()
		logger.Warnf("persist leaderboard snapshot: %v", err)
	}

	snap.Cached = false
	snap.CacheInfo = cacheInfoFresh
	return snap, nil
}

func (s *leaderboardService) buildSnapshot(ctx context.Context, all []leaderboardRepo.ScoreEntry) (*leaderboardDto.Snapshot, error) {
	snap := &leaderboardDto.Snapshot{
		TotalUsers:        int64(len(all)),
		Leaderboard:       []leaderboardDto.LeaderboardEntry{},
		PointDistribution: newDistribution(),
		LastUpdated:       s.clock.Now().UTC(),
	}

	for _, e := range all {
		snap.PointDistribution[bucketLabel(e.Points)]++
	}

	totalChecks, err := s.store.GetGlobalCounter(ctx, leaderboardRepo.CounterTotalChecks)
	if err != nil {
		return nil, err
	}
	snap.TotalChecks = totalChecks

	top := all
	if len(top) > s.opts.TopN {
		top = top[:s.opts.TopN]
	}
	entries, err := s.enrich(ctx, top)
	if err != nil {
		return nil, err
	}
	snap.Leaderboard = entries

	return snap, nil
}

// enrich turns a descending score listing that starts at the very top into
// ranked entries carrying each wallet's stored record.
func (s *leaderboardService) enrich(ctx context.Context, top []leaderboardRepo.ScoreEntry) ([]leaderboardDto.LeaderboardEntry, error) {
	addresses := make([]string, len(top))
	for i, e := range top {
		addresses[i] = e.Address
	}
	records, err := s.store.GetUserRecords(ctx, addresses)
	if err != nil {
		return nil, err
	}

	entries := make([]leaderboardDto.LeaderboardEntry, 0, len(top))
	var rank int64
	for i, e := range top {
		if i == 0 || e.Points != top[i-1].Points {
			rank = int64(i) + 1
		}
		entries = append(entries, toEntry(rank, e, records[e.Address]))
	}
	return entries, nil
}

func toEntry(rank int64, e leaderboardRepo.ScoreEntry, rec *dto.UserStatRecord) leaderboardDto.LeaderboardEntry {
	entry := leaderboardDto.LeaderboardEntry{
		Rank:         rank,
		Address:      e.Address,
		TotalPoints:  e.Points,
		CurrentLevel: LevelFor(e.Points),
	}
	if rec == nil {
		return entry
	}
	entry.SendCount = rec.SendCount
	entry.SwapCount = rec.SwapCount
	entry.LPCount = rec.LPCount
	entry.SocialTasks = rec.SocialTasksCount
	entry.MintDomain = rec.MintDomainCount
	entry.MintNFT = rec.MintNFTCount
	entry.FaroswapLP = rec.FaroswapLPCount
	entry.FaroswapSwaps = rec.FaroswapSwapsCount
	entry.MemberSince = rec.MemberSince
	entry.FirstCheck = rec.FirstCheckAt
	entry.LastCheck = rec.LastCheckAt
	entry.TotalChecks = rec.TotalChecks
	return entry
}

// InvalidateAndRefresh drops the stored snapshot and the rank index, then
// rebuilds both from a single read of the score index.
func (s *leaderboardService) InvalidateAndRefresh(ctx context.Context) (*leaderboardDto.RefreshResult, error) {
	if !s.store.Enabled() {
		return nil, apperror.ErrStoreUnavailable
	}

	locked, err := s.store.AcquireLock(ctx, refreshLockName, refreshLockTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh lock: %w", err)
	}
	if !locked {
		return nil, apperror.Wrap(apperror.ErrConflict, "refresh already in progress")
	}
	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), refreshLockName); err != nil {
			logger.Warnf("release refresh lock: %v", err)
		}
	}()

	jobID := uuid.NewString()
	logger.Infof("🔄 leaderboard refresh %s requested", jobID)

	if err := s.store.DeleteSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("clear snapshot: %w", err)
	}
	s.index.Invalidate()
	if err := s.store.DeleteRankIndex(ctx); err != nil {
		logger.Warnf("clear stored rank index: %v", err)
	}

	all, err := s.store.AllDescending(ctx)
	if err != nil {
		return nil, fmt.Errorf("read score index: %w", err)
	}
	snap, err := s.buildAndSaveSnapshot(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	s.rebuildIndexFrom(ctx, all)

	logger.Infof("✅ leaderboard refresh %s done: %d users", jobID, snap.TotalUsers)

	return &leaderboardDto.RefreshResult{
		Success:          true,
		Message:          "Leaderboard refreshed successfully",
		JobID:            jobID,
		Timestamp:        s.clock.Now().UTC(),
		TotalUsers:       snap.TotalUsers,
		TotalChecks:      snap.TotalChecks,
		RankIndexEntries: s.index.Len(),
	}, nil
}

// GetTop is the live (uncached) top list.
func (s *leaderboardService) GetTop(ctx context.Context, limit int) ([]leaderboardDto.LeaderboardEntry, error) {
	if !s.store.Enabled() {
		return nil, apperror.ErrStoreUnavailable
	}
	top, err := s.store.TopNDescending(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, top)
}
