// internal/pricing/http.go
package pricing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
)

// coinResponse is the subset of the coin API payload used for pricing.
type coinResponse struct {
	Mint                 string  `json:"mint"`
	VirtualSolReserves   uint64  `json:"virtual_sol_reserves"`
	VirtualTokenReserves uint64  `json:"virtual_token_reserves"`
	MarketCap            float64 `json:"market_cap"`
	Complete             bool    `json:"complete"`
}

// HTTPSource prices a mint through a Pump.fun style coin API (GET /coins/{mint}).
type HTTPSource struct {
	client *resty.Client
}

// NewHTTPSource creates a source for baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration, retries int) *HTTPSource {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Name() string { return "http" }

// FetchPrice returns the price derived from virtual reserves and the API market cap.
func (s *HTTPSource) FetchPrice(ctx context.Context, mint string) (Quote, error) {
	var coin coinResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("mint", mint).
		SetResult(&coin).
		Get("/coins/{mint}")
	if err != nil {
		return Quote{}, fmt.Errorf("coin request: %w", err)
	}
	if resp.IsError() {
		return Quote{}, fmt.Errorf("coin request: http %d", resp.StatusCode())
	}
	if coin.Complete {
		return Quote{}, ErrCurveComplete
	}
	if coin.VirtualTokenReserves == 0 {
		return Quote{}, fmt.Errorf("coin %s: no reserves in response", mint)
	}

	q := Quote{Price: pumpfun.PriceFromAmounts(coin.VirtualSolReserves, coin.VirtualTokenReserves)}
	if coin.MarketCap > 0 {
		mc := coin.MarketCap
		q.MarketCap = &mc
	}
	return q, nil
}
