// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Основные константы
const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 250 * time.Millisecond
	defaultReqTimeout    = 10 * time.Second
)

// Определение ошибок
var (
	ErrNoRPCNodes      = errors.New("no RPC nodes configured")
	ErrAccountNotFound = errors.New("account not found")
)

// Options tunes retries of the client.
type Options struct {
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	Commitment     rpc.CommitmentType
}

// Client – тонкий адаптер над solana-go rpc с ротацией узлов и повторами.
type Client struct {
	nodes   []*rpc.Client
	urls    []string
	opts    Options
	mu      sync.Mutex
	current int
	logger  *zap.Logger
}

// NewClient создаёт клиент для одного или нескольких RPC URL.
func NewClient(urls []string, opts Options, logger *zap.Logger) (*Client, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultReqTimeout
	}
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}

	nodes := make([]*rpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = rpc.New(url)
	}

	return &Client{
		nodes:  nodes,
		urls:   urls,
		opts:   opts,
		logger: logger.Named("solbc-client"),
	}, nil
}

// next returns the node to use and advances the cursor.
func (c *Client) next() (*rpc.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, url := c.nodes[c.current], c.urls[c.current]
	c.current = (c.current + 1) % len(c.nodes)
	return node, url
}

// executeWithRetry runs op against successive nodes until it succeeds, returns
// a permanent error, or the attempts run out.
func executeWithRetry[T any](ctx context.Context, c *Client, op func(context.Context, *rpc.Client) (T, error)) (T, error) {
	b := backoff.NewConstantBackOff(c.opts.RetryDelay)

	return backoff.Retry(ctx, func() (T, error) {
		node, url := c.next()

		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()

		res, err := op(reqCtx, node)
		if err != nil {
			c.logger.Debug("RPC request failed",
				zap.String("url", url),
				zap.Error(err))
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.RetryAttempts)),
	)
}

// GetAccountData возвращает бинарные данные аккаунта. Отсутствующий аккаунт
// даёт ErrAccountNotFound без повторов.
func (c *Client) GetAccountData(ctx context.Context, pubkey solana.PublicKey) ([]byte, error) {
	res, err := executeWithRetry(ctx, c, func(ctx context.Context, node *rpc.Client) (*rpc.GetAccountInfoResult, error) {
		out, err := node.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.opts.Commitment,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, backoff.Permanent(ErrAccountNotFound)
		}
		return out, err
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account %s: %w", pubkey, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return nil, ErrAccountNotFound
	}
	return res.Value.Data.GetBinary(), nil
}

// GetSlot возвращает текущий слот. Используется как проверка доступности узла.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	return executeWithRetry(ctx, c, func(ctx context.Context, node *rpc.Client) (uint64, error) {
		return node.GetSlot(ctx, c.opts.Commitment)
	})
}
