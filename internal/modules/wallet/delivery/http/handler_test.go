package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharos.xyz/statschecker/internal/upstream"
	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubService struct {
	record *dto.UserStatRecord
	err    error
	got    string
}

func (s *stubService) CheckWallet(_ context.Context, address string) (*dto.UserStatRecord, error) {
	s.got = address
	return s.record, s.err
}

func (s *stubService) CacheSize(context.Context) int { return 0 }
func (s *stubService) CacheBackend() string          { return "memory" }

func post(h *WalletHandler, body string) (*httptest.ResponseRecorder, map[string]any) {
	r := gin.New()
	r.POST("/check-wallet", h.CheckWallet)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/check-wallet", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestCheckWalletSuccessBody(t *testing.T) {
	rank := int64(12)
	svc := &stubService{record: &dto.UserStatRecord{
		Address:          "0x0000000000000000000000000000000000000000",
		TotalPoints:      500,
		ExactRank:        &rank,
		CurrentLevel:     1,
		NextLevel:        2,
		PointsNeeded:     500,
		SwapCount:        5,
		LPCount:          2,
		SocialTasksCount: 2,
		TotalChecks:      1,
	}}

	w, body := post(NewWalletHandler(svc), `{"wallet_address":"  0x0000000000000000000000000000000000000000 "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "0x0000000000000000000000000000000000000000", svc.got)

	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 500, body["total_points"])
	assert.EqualValues(t, 12, body["exact_rank"])
	assert.EqualValues(t, 1, body["current_level"])
	assert.EqualValues(t, 500, body["points_needed"])
	assert.EqualValues(t, 5, body["zenith_swaps"])
	assert.EqualValues(t, 2, body["zenith_lp"])
	assert.EqualValues(t, 2, body["social_tasks"])
	assert.Contains(t, body, "member_since")
}

func TestCheckWalletRequestErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"malformed address", `{"wallet_address":"0xZZZ"}`, http.StatusBadRequest, "Invalid wallet address format"},
		{"missing address", `{}`, http.StatusBadRequest, "Invalid wallet address format"},
		{"broken json", `{"wallet_address":`, http.StatusBadRequest, "Invalid JSON format"},
		{"empty body", ``, http.StatusBadRequest, "Invalid JSON format"},
		{"too large", `{"wallet_address":"` + strings.Repeat("a", 1200) + `"}`, http.StatusRequestEntityTooLarge, "Request too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{}
			w, body := post(NewWalletHandler(svc), tc.body)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.msg, body["error"])
			assert.Empty(t, svc.got, "service must not be called")
		})
	}
}

func TestCheckWalletUpstreamErrors(t *testing.T) {
	const addr = `{"wallet_address":"0x0000000000000000000000000000000000000000"}`

	w, body := post(NewWalletHandler(&stubService{err: &upstream.DataError{Path: "/user/profile", Code: 401}}), addr)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "API error")

	w, body = post(NewWalletHandler(&stubService{err: apperror.ErrUpstreamTransient}), addr)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Connection failed", body["error"])

	w, body = post(NewWalletHandler(&stubService{err: assert.AnError}), addr)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", body["error"])
}
