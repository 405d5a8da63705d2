package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"token_chat/pkg/config"
	"token_chat/pkg/log"
)

// ErrPriceUnavailable 價格來源回應成功但沒有價格
var ErrPriceUnavailable = errors.New("price unavailable")

// PriceData 是價格來源回傳的單一代幣報價
type PriceData struct {
	Value          float64 `json:"value"`
	UpdateUnixTime int64   `json:"updateUnixTime"`
	Symbol         string  `json:"symbol,omitempty"`
	Name           string  `json:"name,omitempty"`
}

type priceResponse struct {
	Success bool       `json:"success"`
	Data    *PriceData `json:"data"`
}

type BirdeyeClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chain      string
	maxRetries uint
	retryDelay time.Duration
}

func NewBirdeyeClient(cfg config.PriceConfig) *BirdeyeClient {
	chain := cfg.Chain
	if chain == "" {
		chain = "solana"
	}
	return &BirdeyeClient{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		chain:      chain,
		maxRetries: cfg.MaxRetries,
		retryDelay: 500 * time.Millisecond,
	}
}

// FetchPrice 取得代幣目前價格，網路錯誤、429 與 5xx 會以指數退避重試
func (c *BirdeyeClient) FetchPrice(ctx context.Context, tokenAddress string) (*PriceData, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.retryDelay * 10

	logger := log.Ctx(ctx)
	notify := func(err error, d time.Duration) {
		logger.Debug().Err(err).
			Str(log.FieldTokenAddress, tokenAddress).
			Dur("backoff", d).
			Msg("Retrying price fetch")
	}

	operation := func() (*PriceData, error) {
		return c.fetchOnce(ctx, tokenAddress)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(notify))
}

func (c *BirdeyeClient) fetchOnce(ctx context.Context, tokenAddress string) (*PriceData, error) {
	endpoint := fmt.Sprintf("%s/price?address=%s", c.baseURL, url.QueryEscape(tokenAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-chain", c.chain)
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read price response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("price source returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("price source returned status %d", resp.StatusCode))
	}

	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode price response: %w", err))
	}
	if !parsed.Success || parsed.Data == nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrPriceUnavailable, tokenAddress))
	}
	return parsed.Data, nil
}
