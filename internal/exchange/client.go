package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Leaderboard sources, recorded on universe runs.
const (
	SourceStats   = "stats-data"
	SourceInfoAPI = "info-api"
)

// Client talks to the Hyperliquid endpoints. All requests share one
// rate limiter; the primary leaderboard endpoint sits behind a circuit
// breaker so repeated failures short-circuit straight to the fallback.
type Client struct {
	httpClient     *http.Client
	statsURL       string
	apiURL         string
	maxConcurrency int
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	StatsURL          string
	APIURL            string
	RequestTimeout    time.Duration
	MaxConcurrency    int
	RequestsPerSecond float64
}

// NewClient creates a Hyperliquid client.
func NewClient(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "leaderboard-stats",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Client{
		httpClient:     &http.Client{Timeout: opts.RequestTimeout},
		statsURL:       opts.StatsURL,
		apiURL:         opts.APIURL,
		maxConcurrency: opts.MaxConcurrency,
		limiter:        rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.MaxConcurrency),
		breaker:        breaker,
	}
}

// FetchLeaderboard returns the raw leaderboard rows and the source that
// supplied them. The stats endpoint is tried first; any failure there,
// including an open breaker, falls back to the info API. It fails only
// when both endpoints fail.
func (c *Client) FetchLeaderboard(ctx context.Context) ([]LeaderboardRow, string, error) {
	rows, primaryErr := c.fetchLeaderboardStats(ctx)
	if primaryErr == nil {
		return rows, SourceStats, nil
	}
	log.Warn().Err(primaryErr).Msg("primary leaderboard endpoint failed, trying fallback")

	rows, fallbackErr := c.fetchLeaderboardInfoAPI(ctx)
	if fallbackErr != nil {
		return nil, "", fmt.Errorf("both leaderboard endpoints failed: primary: %v, fallback: %w",
			primaryErr, fallbackErr)
	}
	return rows, SourceInfoAPI, nil
}

func (c *Client) fetchLeaderboardStats(ctx context.Context) ([]LeaderboardRow, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := c.get(ctx, c.statsURL+"/Mainnet/leaderboard")
		if err != nil {
			return nil, err
		}
		var resp struct {
			LeaderboardRows []LeaderboardRow `json:"leaderboardRows"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode leaderboard response: %w", err)
		}
		if resp.LeaderboardRows == nil {
			return nil, fmt.Errorf("leaderboardRows missing from response")
		}
		return resp.LeaderboardRows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]LeaderboardRow), nil
}

// fetchLeaderboardInfoAPI hits the fallback endpoint. Its response shape
// is not pinned down upstream, so the body is accepted either as a bare
// array of rows or as an object with a "leaderboard" key, and the shape
// is logged on success for operator visibility.
func (c *Client) fetchLeaderboardInfoAPI(ctx context.Context) ([]LeaderboardRow, error) {
	body, err := c.post(ctx, c.apiURL+"/info", map[string]string{"type": "leaderboard"})
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty fallback leaderboard response")
	}

	switch trimmed[0] {
	case '[':
		var rows []LeaderboardRow
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode fallback leaderboard array: %w", err)
		}
		log.Info().Str("shape", "array").Int("rows", len(rows)).
			Msg("fallback leaderboard endpoint succeeded")
		return rows, nil
	case '{':
		var resp struct {
			Leaderboard []LeaderboardRow `json:"leaderboard"`
		}
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode fallback leaderboard object: %w", err)
		}
		if resp.Leaderboard == nil {
			return nil, fmt.Errorf("fallback leaderboard response has no leaderboard key")
		}
		log.Info().Str("shape", "object").Int("rows", len(resp.Leaderboard)).
			Msg("fallback leaderboard endpoint succeeded")
		return resp.Leaderboard, nil
	default:
		return nil, fmt.Errorf("unrecognized fallback leaderboard shape (first byte %q)", trimmed[0])
	}
}

// FetchWalletPositions fetches clearinghouse state for one wallet.
// Transient failures (timeouts, 429s, 5xx, decode errors) are absorbed
// into a nil result: callers only care whether the wallet succeeded.
func (c *Client) FetchWalletPositions(ctx context.Context, address string) *ClearinghouseState {
	body, err := c.post(ctx, c.apiURL+"/info", map[string]string{
		"type": "clearinghouseState",
		"user": address,
	})
	if err != nil {
		log.Warn().Err(err).Str("wallet", address).Msg("wallet position fetch failed")
		return nil
	}

	var state ClearinghouseState
	if err := json.Unmarshal(body, &state); err != nil {
		log.Warn().Err(err).Str("wallet", address).Msg("wallet position decode failed")
		return nil
	}
	return &state
}

// FetchMultiple fetches positions for many wallets with at most
// maxConcurrency requests in flight. The result maps every requested
// address to its state or nil; it never returns an error.
func (c *Client) FetchMultiple(ctx context.Context, addresses []string) map[string]*ClearinghouseState {
	results := make(map[string]*ClearinghouseState, len(addresses))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.maxConcurrency)
	)

	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			state := c.FetchWalletPositions(ctx, addr)

			mu.Lock()
			results[addr] = state
			mu.Unlock()
		}(addr)
	}

	wg.Wait()
	return results
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
