package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharos.xyz/statschecker/internal/modules/leaderboard/repository"
	leaderboardService "pharos.xyz/statschecker/internal/modules/leaderboard/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(h *LeaderboardHandler) *gin.Engine {
	r := gin.New()
	r.GET("/admin/stats", h.GetStats)
	r.GET("/refresh-leaderboard", h.RefreshLeaderboard)
	r.GET("/leaderboard", h.GetLeaderboard)
	return r
}

func newRedisHandler(t *testing.T) (*LeaderboardHandler, repository.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := repository.NewRedisStore(client)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	svc := leaderboardService.NewLeaderboardService(store, nil, clock, leaderboardService.Options{})
	return NewLeaderboardHandler(svc), store
}

func serve(r http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestStatsWithoutStore(t *testing.T) {
	svc := leaderboardService.NewLeaderboardService(repository.NewRedisStore(nil), nil, nil, leaderboardService.Options{})
	r := newRouter(NewLeaderboardHandler(svc))

	for _, path := range []string{"/admin/stats", "/refresh-leaderboard", "/leaderboard"} {
		w, body := serve(r, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, false, body["success"], path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestStatsThenRefresh(t *testing.T) {
	h, store := newRedisHandler(t)
	r := newRouter(h)
	ctx := context.Background()
	require.NoError(t, store.SetScore(ctx, "0x0a", 5000))

	w, body := serve(r, "/admin/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["cached"])
	assert.EqualValues(t, 1, body["total_users"])

	_, body = serve(r, "/admin/stats")
	assert.Equal(t, true, body["cached"])

	require.NoError(t, store.SetScore(ctx, "0x0b", 6000))
	w, body = serve(r, "/refresh-leaderboard")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["total_users"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestLeaderboardLimitClamp(t *testing.T) {
	h, store := newRedisHandler(t)
	r := newRouter(h)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		addr := "0x" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		require.NoError(t, store.SetScore(ctx, addr, int64(i)))
	}

	cases := map[string]int{
		"/leaderboard":          10,
		"/leaderboard?limit=3":  3,
		"/leaderboard?limit=0":  10,
		"/leaderboard?limit=99": 50,
		"/leaderboard?limit=x":  10,
	}
	for path, want := range cases {
		w, body := serve(r, path)
		require.Equal(t, http.StatusOK, w.Code, path)
		data, ok := body["data"].([]any)
		require.True(t, ok, path)
		assert.Len(t, data, want, path)
	}
}
