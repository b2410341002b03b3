package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	leaderboardRepo "pharos.xyz/statschecker/internal/modules/leaderboard/repository"
	leaderboardService "pharos.xyz/statschecker/internal/modules/leaderboard/service"
	"pharos.xyz/statschecker/internal/modules/wallet/cache"
	"pharos.xyz/statschecker/internal/upstream"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/dto"
)

const zeroWallet = "0x0000000000000000000000000000000000000000"

type fakeFetcher struct {
	calls   atomic.Int32
	points  int64
	tasks   []upstream.UserTask
	err     error
	release chan struct{}
}

func (f *fakeFetcher) FetchUser(_ context.Context, _ string) (*upstream.UserPayload, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	since := upstream.FlexString("2025-03-01T00:00:00Z")
	return &upstream.UserPayload{
		Profile: upstream.ProfileData{UserInfo: upstream.UserInfo{TotalPoints: f.points, CreateTime: &since}},
		Tasks:   upstream.TasksData{UserTasks: f.tasks},
	}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*dto.UserStatRecord
}

func (h *fakeHistory) RecordAsync(r *dto.UserStatRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
}

func (h *fakeHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

type harness struct {
	svc     WalletService
	fetcher *fakeFetcher
	store   leaderboardRepo.Store
	history *fakeHistory
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T, fetcher *fakeFetcher, withStore bool) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))

	store := leaderboardRepo.NewRedisStore(nil)
	if withStore {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		store = leaderboardRepo.NewRedisStore(client)
	}

	ranks := leaderboardService.NewLeaderboardService(store, nil, clock, leaderboardService.Options{})
	history := &fakeHistory{}
	freshness := cache.NewMemoryCache(cache.Options{TTL: 5 * time.Minute, Clock: clock})

	return &harness{
		svc:     NewWalletService(fetcher, freshness, store, ranks, history, clock),
		fetcher: fetcher,
		store:   store,
		history: history,
		clock:   clock,
	}
}

func TestNormalizeLevels(t *testing.T) {
	cases := []struct {
		points      int64
		level, next int
		needed      int64
	}{
		{500, 1, 2, 500},
		{1000, 2, 3, 2000},
	}
	for _, tc := range cases {
		rec := Normalize(zeroWallet, &upstream.UserPayload{
			Profile: upstream.ProfileData{UserInfo: upstream.UserInfo{TotalPoints: tc.points}},
		})
		assert.Equal(t, tc.level, rec.CurrentLevel, "points=%d", tc.points)
		assert.Equal(t, tc.next, rec.NextLevel)
		assert.Equal(t, tc.needed, rec.PointsNeeded)
		assert.Nil(t, rec.MemberSince)
	}
}

func TestNormalizeTasks(t *testing.T) {
	rec := Normalize("0x00000000000000000000000000000000000000AA", &upstream.UserPayload{
		Tasks: upstream.TasksData{UserTasks: []upstream.UserTask{
			{TaskID: 101, CompleteTimes: 5},
			{TaskID: 201, CompleteTimes: 1},
			{TaskID: 202, CompleteTimes: 1},
		}},
	})
	assert.Equal(t, 5, rec.SwapCount)
	assert.Equal(t, 2, rec.SocialTasksCount)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", rec.Address)
}

func TestNormalizeAllTaskKindsAndDuplicates(t *testing.T) {
	rec := Normalize(zeroWallet, &upstream.UserPayload{
		Tasks: upstream.TasksData{UserTasks: []upstream.UserTask{
			{TaskID: 101, CompleteTimes: 1},
			{TaskID: 102, CompleteTimes: 2},
			{TaskID: 103, CompleteTimes: 3},
			{TaskID: 104, CompleteTimes: 4},
			{TaskID: 105, CompleteTimes: 5},
			{TaskID: 106, CompleteTimes: 6},
			{TaskID: 107, CompleteTimes: 7},
			{TaskID: 101, CompleteTimes: 9},
			{TaskID: 203, CompleteTimes: 50},
			{TaskID: 203, CompleteTimes: 50},
			{TaskID: 204, CompleteTimes: 0},
			{TaskID: 999, CompleteTimes: 3},
		}},
	})
	assert.Equal(t, 9, rec.SwapCount, "last write wins")
	assert.Equal(t, 2, rec.LPCount)
	assert.Equal(t, 3, rec.SendCount)
	assert.Equal(t, 4, rec.MintDomainCount)
	assert.Equal(t, 5, rec.MintNFTCount)
	assert.Equal(t, 6, rec.FaroswapLPCount)
	assert.Equal(t, 7, rec.FaroswapSwapsCount)
	assert.Equal(t, 3, rec.SocialTasksCount, "one per social entry")
}

func TestCheckWalletPersistsAndCaches(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeFetcher{points: 1500}, true)
	require.NoError(t, h.store.SetScore(ctx, "0x1111111111111111111111111111111111111111", 9000))

	rec, err := h.svc.CheckWallet(ctx, " "+zeroWallet+" ")
	require.NoError(t, err)
	assert.EqualValues(t, 1500, rec.TotalPoints)
	require.NotNil(t, rec.ExactRank)
	assert.EqualValues(t, 2, *rec.ExactRank)
	assert.EqualValues(t, 1, rec.TotalChecks)
	require.NotNil(t, rec.MemberSince)
	assert.Equal(t, "2025-03-01T00:00:00Z", *rec.MemberSince)

	stored, err := h.store.GetUserRecord(ctx, zeroWallet)
	require.NoError(t, err)
	assert.EqualValues(t, 1500, stored.TotalPoints)

	total, err := h.store.GetGlobalCounter(ctx, leaderboardRepo.CounterTotalChecks)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	// second check inside the TTL is served from the cache
	again, err := h.svc.CheckWallet(ctx, "0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.fetcher.calls.Load())
	assert.EqualValues(t, 1, again.TotalChecks)
	assert.Equal(t, 1, h.svc.CacheSize(ctx))
	assert.Equal(t, 1, h.history.len())

	h.clock.Advance(5 * time.Minute)
	again, err = h.svc.CheckWallet(ctx, zeroWallet)
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.fetcher.calls.Load())
	assert.EqualValues(t, 2, again.TotalChecks)
}

func TestCheckWalletWithoutStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeFetcher{points: 500}, false)

	rec, err := h.svc.CheckWallet(ctx, zeroWallet)
	require.NoError(t, err)
	assert.EqualValues(t, 500, rec.TotalPoints)
	assert.Nil(t, rec.ExactRank)
	assert.Equal(t, 1, rec.CurrentLevel)

	_, err = h.svc.CheckWallet(ctx, zeroWallet)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.fetcher.calls.Load())
}

func TestCheckWalletRejectsBadAddress(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, false)

	for _, addr := range []string{"0xZZZ", "", "0x" + "g000000000000000000000000000000000000000", "1x0000000000000000000000000000000000000000"} {
		_, err := h.svc.CheckWallet(context.Background(), addr)
		assert.ErrorIs(t, err, apperror.ErrValidation, addr)
	}
	assert.Zero(t, h.fetcher.calls.Load())
}

func TestCheckWalletUpstreamFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{err: errors.Join(apperror.ErrUpstreamTransient, errors.New("dial tcp: refused"))}
	h := newHarness(t, f, true)

	_, err := h.svc.CheckWallet(ctx, zeroWallet)
	assert.ErrorIs(t, err, apperror.ErrUpstreamTransient)
	assert.Zero(t, h.svc.CacheSize(ctx))
	assert.Zero(t, h.history.len())

	_, err = h.svc.CheckWallet(ctx, zeroWallet)
	assert.Error(t, err)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestCheckWalletCoalescesConcurrentChecks(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{points: 42, release: make(chan struct{})}
	h := newHarness(t, f, false)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*dto.UserStatRecord, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := h.svc.CheckWallet(ctx, zeroWallet)
			assert.NoError(t, err)
			results[i] = rec
		}(i)
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// let the other callers reach the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.LessOrEqual(t, f.calls.Load(), int32(2))
	for _, rec := range results {
		require.NotNil(t, rec)
		assert.EqualValues(t, 42, rec.TotalPoints)
	}
}
