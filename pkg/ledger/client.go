package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"paperhands/pkg/httpclient"

	"go.uber.org/zap"
)

const DefaultPageLimit = 100

type Config struct {
	BaseURL   string
	APIKey    string
	RateLimit int // 每分钟请求次数
	Timeout   int // 秒
}

// Client 账本索引服务客户端（增强交易历史API）
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *httpclient.HTTPClient
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	httpCfg := httpclient.HTTPClientConfig{
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		RateLimit: cfg.RateLimit,
		// 429重试由上层显式循环处理，客户端本身不重试
		MaxRetries: 0,
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpclient.NewHTTPClient(httpCfg, logger),
		logger:     logger,
	}
}

// AddressTransactions 拉取单页交易历史，新到旧，before为游标签名
// 不做重试：结果归类为 OK / RateLimited / Failed，由调用方决定下一步
func (c *Client) AddressTransactions(ctx context.Context, address, before string, limit int) ([]EnhancedTransaction, FetchOutcome) {
	if limit <= 0 || limit > DefaultPageLimit {
		limit = DefaultPageLimit
	}

	url := fmt.Sprintf("%s/v0/addresses/%s/transactions", c.baseURL, address)
	params := map[string]string{
		"api-key": c.apiKey,
		"limit":   strconv.Itoa(limit),
	}
	if before != "" {
		params["before"] = before
	}

	var page []EnhancedTransaction
	err := c.httpClient.Get(ctx, url, params, nil, &page)
	if err != nil {
		return nil, classify(err)
	}

	return page, FetchOutcome{Status: FetchOK}
}

func classify(err error) FetchOutcome {
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.Code == 429 {
		retryAfter := se.RetryAfter
		if retryAfter == 0 {
			retryAfter = time.Second
		}
		return FetchOutcome{Status: FetchRateLimited, RetryAfter: retryAfter, Err: err}
	}
	return FetchOutcome{Status: FetchFailed, Err: err}
}
