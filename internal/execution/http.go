// internal/execution/http.go
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpwatch/internal/orders"
)

// HTTPConfig configures the swap service client.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPExecutor hands triggered orders to an external swap service.
type HTTPExecutor struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewHTTPExecutor creates an executor posting to cfg.URL. Requests are not
// retried: a triggered order is executed at most once.
func NewHTTPExecutor(cfg HTTPConfig, logger *zap.Logger) *HTTPExecutor {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPExecutor{
		client: client,
		url:    cfg.URL,
		logger: logger.Named("executor"),
	}
}

// Execute posts req and maps the service response.
func (x *HTTPExecutor) Execute(ctx context.Context, req orders.ExecutionRequest) (orders.ExecutionResult, error) {
	var result orders.ExecutionResult
	resp, err := x.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(x.url)
	if err != nil {
		return orders.ExecutionResult{}, fmt.Errorf("execution request: %w", err)
	}
	if resp.IsError() {
		return orders.ExecutionResult{}, fmt.Errorf("execution request: http %d: %s", resp.StatusCode(), resp.String())
	}

	x.logger.Debug("Execution response",
		zap.String("order_id", req.OrderID),
		zap.Bool("success", result.Success),
		zap.String("execution_ref", result.ExecutionRef))
	return result, nil
}
