package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(statsURL, apiURL string) *Client {
	return NewClient(Options{
		StatsURL:          statsURL,
		APIURL:            apiURL,
		MaxConcurrency:    4,
		RequestsPerSecond: 1000,
	})
}

func TestFetchLeaderboardPrimary(t *testing.T) {
	stats := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Mainnet/leaderboard", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"leaderboardRows": []map[string]interface{}{
				{"ethAddress": "0xabc", "windowPerformances": [][]interface{}{
					{"month", map[string]interface{}{"pnl": "100", "roi": "0.1"}},
				}},
			},
		})
	}))
	defer stats.Close()

	c := newTestClient(stats.URL, "http://unused.invalid")
	rows, source, err := c.FetchLeaderboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceStats, source)
	require.Len(t, rows, 1)
	assert.Equal(t, "0xabc", rows[0].EthAddress)
}

func TestFetchLeaderboardFallbackArray(t *testing.T) {
	stats := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer stats.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "leaderboard", payload["type"])
		_, _ = w.Write([]byte(`[{"ethAddress": "0xfallback"}]`))
	}))
	defer api.Close()

	c := newTestClient(stats.URL, api.URL)
	rows, source, err := c.FetchLeaderboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceInfoAPI, source)
	require.Len(t, rows, 1)
	assert.Equal(t, "0xfallback", rows[0].EthAddress)
}

func TestFetchLeaderboardFallbackObject(t *testing.T) {
	stats := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer stats.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"leaderboard": [{"ethAddress": "0xobj"}]}`))
	}))
	defer api.Close()

	c := newTestClient(stats.URL, api.URL)
	rows, source, err := c.FetchLeaderboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceInfoAPI, source)
	require.Len(t, rows, 1)
}

func TestFetchLeaderboardBothFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, _, err := c.FetchLeaderboard(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both leaderboard endpoints failed")
}

func TestFetchWalletPositionsSwallowsErrors(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer api.Close()

	c := newTestClient("http://unused.invalid", api.URL)
	assert.Nil(t, c.FetchWalletPositions(context.Background(), "0xabc"))
}

func TestFetchWalletPositionsSuccess(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "clearinghouseState", payload["type"])
		assert.Equal(t, "0xabc", payload["user"])
		_, _ = w.Write([]byte(`{"assetPositions": [{"position": {"coin": "BTC", "szi": "1.5"}}]}`))
	}))
	defer api.Close()

	c := newTestClient("http://unused.invalid", api.URL)
	state := c.FetchWalletPositions(context.Background(), "0xabc")
	require.NotNil(t, state)
	require.Len(t, state.AssetPositions, 1)
	assert.Equal(t, "BTC", state.AssetPositions[0].Position.Coin)
}

func TestFetchMultiple(t *testing.T) {
	var calls int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["user"] == "0xbad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"assetPositions": []}`))
	}))
	defer api.Close()

	c := newTestClient("http://unused.invalid", api.URL)
	addrs := []string{"0x1", "0x2", "0xbad", "0x3"}
	results := c.FetchMultiple(context.Background(), addrs)

	require.Len(t, results, 4)
	assert.NotNil(t, results["0x1"])
	assert.NotNil(t, results["0x2"])
	assert.NotNil(t, results["0x3"])
	assert.Nil(t, results["0xbad"])
	assert.Equal(t, int64(4), atomic.LoadInt64(&calls))
}
