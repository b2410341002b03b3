package upstream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharos.xyz/statschecker/pkg/apperror"
)

const wallet = "0x0000000000000000000000000000000000000001"

func okHandler(t *testing.T, profileHits, tasksHits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wallet, r.URL.Query().Get("address"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case profilePath:
			profileHits.Add(1)
			_, _ = w.Write([]byte(`{"code":0,"data":{"user_info":{"TotalPoints":1500,"CreateTime":"2025-02-20T10:00:00Z"}}}`))
		case tasksPath:
			tasksHits.Add(1)
			_, _ = w.Write([]byte(`{"code":0,"data":{"user_tasks":[{"TaskId":101,"CompleteTimes":5}]}}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestFetchUserSuccess(t *testing.T) {
	var profileHits, tasksHits atomic.Int32
	srv := httptest.NewServer(okHandler(t, &profileHits, &tasksHits))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, BearerToken: "test-token"})
	payload, err := c.FetchUser(context.Background(), wallet)
	require.NoError(t, err)

	assert.EqualValues(t, 1500, payload.Profile.UserInfo.TotalPoints)
	require.NotNil(t, payload.Profile.UserInfo.CreateTime)
	assert.Equal(t, "2025-02-20T10:00:00Z", string(*payload.Profile.UserInfo.CreateTime))
	require.Len(t, payload.Tasks.UserTasks, 1)
	assert.Equal(t, UserTask{TaskID: 101, CompleteTimes: 5}, payload.Tasks.UserTasks[0])
	assert.EqualValues(t, 1, profileHits.Load())
	assert.EqualValues(t, 1, tasksHits.Load())
}

func TestFetchUserDataErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == profilePath {
			_, _ = w.Write([]byte(`{"code":401,"msg":"token invalid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"user_tasks":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, BearerToken: "test-token"})
	_, err := c.FetchUser(context.Background(), wallet)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrUpstreamData)
	assert.NotErrorIs(t, err, apperror.ErrUpstreamTransient)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, 401, dataErr.Code)
	assert.EqualValues(t, 2, hits.Load(), "one attempt, two requests")
}

func TestFetchUserRetriesOnceThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, BearerToken: "test-token"})
	_, err := c.FetchUser(context.Background(), wallet)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrUpstreamTransient)
	assert.LessOrEqual(t, hits.Load(), int32(4))
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestFetchUserTimeoutFallsBackToDirect(t *testing.T) {
	var profileCalls atomic.Int32
	var profileHits, tasksHits atomic.Int32
	ok := okHandler(t, &profileHits, &tasksHits)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the first profile request hangs past the first timeout
		if r.URL.Path == profilePath && profileCalls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:       srv.URL,
		BearerToken:   "test-token",
		ProxyTimeout:  200 * time.Millisecond,
		DirectTimeout: 2 * time.Second,
	})
	payload, err := c.FetchUser(context.Background(), wallet)
	require.NoError(t, err)
	assert.EqualValues(t, 1500, payload.Profile.UserInfo.TotalPoints)
	assert.EqualValues(t, 2, profileCalls.Load())
}

func TestFetchUserUsesProxyFirst(t *testing.T) {
	var profileHits, tasksHits atomic.Int32
	srv := httptest.NewServer(okHandler(t, &profileHits, &tasksHits))
	defer srv.Close()

	var proxyHits atomic.Int32
	var proxyAuth atomic.Value
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		proxyAuth.Store(r.Header.Get("Proxy-Authorization"))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer proxy.Close()

	host, port, err := net.SplitHostPort(strings.TrimPrefix(proxy.URL, "http://"))
	require.NoError(t, err)
	pool := ParseProxyList(host + ":" + port + ":user:p:ss")

	c := NewClient(Options{BaseURL: srv.URL, BearerToken: "test-token", Proxies: pool})
	assert.Equal(t, 1, c.ProxyCount())

	payload, err := c.FetchUser(context.Background(), wallet)
	require.NoError(t, err)
	assert.EqualValues(t, 1500, payload.Profile.UserInfo.TotalPoints)

	assert.GreaterOrEqual(t, proxyHits.Load(), int32(1), "first attempt goes through the proxy")
	assert.NotEmpty(t, proxyAuth.Load())
	assert.EqualValues(t, 1, profileHits.Load(), "direct retry reached the upstream")
}

func TestParseProxyList(t *testing.T) {
	raw := `# residential pool\n10.0.0.1:8080:alice:secret\n\n  10.0.0.2:3128:bob:pa:ss:word  \nbroken:line\n#10.0.0.3:1:x:y`
	pool := ParseProxyList(raw)
	require.Equal(t, 2, pool.Len())

	assert.Equal(t, "10.0.0.1:8080", pool.proxies[0].Host)
	assert.Equal(t, "alice", pool.proxies[0].User.Username())

	pass, ok := pool.proxies[1].User.Password()
	require.True(t, ok)
	assert.Equal(t, "pa:ss:word", pass)

	assert.NotNil(t, pool.Random())
	assert.Nil(t, ParseProxyList("").Random())

	var nilPool *ProxyPool
	assert.Zero(t, nilPool.Len())
	assert.Nil(t, nilPool.Random())
}

func TestFlexString(t *testing.T) {
	var info UserInfo
	require.NoError(t, json.Unmarshal([]byte(`{"TotalPoints":3,"CreateTime":1739000000}`), &info))
	require.NotNil(t, info.CreateTime)
	assert.Equal(t, "1739000000", string(*info.CreateTime))

	info = UserInfo{}
	require.NoError(t, json.Unmarshal([]byte(`{"TotalPoints":3,"CreateTime":null}`), &info))
	assert.Nil(t, info.CreateTime)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("not-the-upstream-key"))
	require.NoError(t, err)

	got, ok := tokenExpiry(token)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = tokenExpiry("not-a-jwt")
	assert.False(t, ok)
}
