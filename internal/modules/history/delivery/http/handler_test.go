package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharos.xyz/statschecker/internal/model"
	historyService "pharos.xyz/statschecker/internal/modules/history/service"
	"pharos.xyz/statschecker/pkg/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubHistory struct {
	enabled bool
	limit   int
}

func (s *stubHistory) RecordAsync(*dto.UserStatRecord) {}
func (s *stubHistory) Enabled() bool                   { return s.enabled }
func (s *stubHistory) Close()                          {}

func (s *stubHistory) List(_ context.Context, address string, limit int) ([]model.WalletCheck, error) {
	s.limit = limit
	return []model.WalletCheck{{Address: address, TotalPoints: 10}}, nil
}

var _ historyService.HistoryService = (*stubHistory)(nil)

func get(h *HistoryHandler, path string) (*httptest.ResponseRecorder, map[string]any) {
	r := gin.New()
	r.GET("/wallet/:address/history", h.GetWalletHistory)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestGetWalletHistory(t *testing.T) {
	stub := &stubHistory{enabled: true}
	w, body := get(NewHistoryHandler(stub), "/wallet/0x00000000000000000000000000000000000000AA/history?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", body["address"])
	assert.Len(t, body["checks"], 1)
	assert.Equal(t, 5, stub.limit)
}

func TestGetWalletHistoryBadAddress(t *testing.T) {
	w, body := get(NewHistoryHandler(&stubHistory{enabled: true}), "/wallet/0xZZZ/history")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid wallet address format", body["error"])
}

func TestGetWalletHistoryDisabled(t *testing.T) {
	svc, err := historyService.NewHistoryService(nil, 0)
	require.NoError(t, err)

	w, body := get(NewHistoryHandler(svc), "/wallet/0x00000000000000000000000000000000000000aa/history")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "History not available", body["error"])
}
