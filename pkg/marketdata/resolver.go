package marketdata

import (
	"context"
	"fmt"
	"time"

	"paperhands/pkg/httpclient"
	"paperhands/pkg/utils"

	"github.com/patrickmn/go-cache"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	// WrappedSOLMint 原生币的wrapped mint，行情API以此报SOL价格
	WrappedSOLMint = "So11111111111111111111111111111111111111112"

	batchSize      = 100
	fetchWorkers   = 4
	freshWindow    = 5 * time.Minute // 新鲜度窗口内直接走缓存
	missEntryTTL   = 1 * time.Minute // 解析失败的零值条目缓存更短，避免反复打死币
	cleanupPeriod  = time.Minute
	requestTimeout = 15
)

type Config struct {
	BaseURL   string
	APIKey    string
	RateLimit int
}

// FetchFunc 批量行情拉取
type FetchFunc func(ctx context.Context, mints []string) (map[string]TokenMarketData, error)

// Resolver 批量行情解析器，带本地新鲜度缓存
type Resolver struct {
	cfg        Config
	logger     *zap.Logger
	localCache *cache.Cache
	fetchBatch FetchFunc
}

func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	httpCfg := httpclient.HTTPClientConfig{
		Timeout:    requestTimeout * time.Second,
		RateLimit:  cfg.RateLimit,
		MaxRetries: 3,
		XApiKey:    cfg.APIKey,
	}
	httpClient := httpclient.NewHTTPClient(httpCfg, logger)

	r := &Resolver{
		cfg:        cfg,
		logger:     logger,
		localCache: cache.New(freshWindow, cleanupPeriod),
	}
	r.fetchBatch = func(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
		return r.fetchBatchHTTP(ctx, httpClient, mints)
	}
	return r
}

// NewResolverWithFetcher 用自定义拉取函数构建Resolver，离线回放与测试场景用
func NewResolverWithFetcher(logger *zap.Logger, fetch FetchFunc) *Resolver {
	return &Resolver{
		logger:     logger,
		localCache: cache.New(freshWindow, cleanupPeriod),
		fetchBatch: fetch,
	}
}

// Resolve 解析一组mint的行情，新鲜缓存直接返回，缺失/过期的分批并发拉取
// 单个mint解析失败不影响整批：返回零值条目
func (r *Resolver) Resolve(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
	result := make(map[string]TokenMarketData, len(mints))
	var missing []string

	seen := make(map[string]struct{}, len(mints))
	for _, mint := range mints {
		if _, dup := seen[mint]; dup {
			continue
		}
		seen[mint] = struct{}{}

		if cached, found := r.localCache.Get(utils.TokenMarketKey(mint)); found {
			if data, ok := cached.(TokenMarketData); ok {
				result[mint] = data
				continue
			}
		}
		missing = append(missing, mint)
	}

	if len(missing) == 0 {
		return result, nil
	}

	p := pool.NewWithResults[map[string]TokenMarketData]().WithContext(ctx).WithMaxGoroutines(fetchWorkers)
	for start := 0; start < len(missing); start += batchSize {
		end := min(start+batchSize, len(missing))
		chunk := missing[start:end]
		p.Go(func(ctx context.Context) (map[string]TokenMarketData, error) {
			return r.fetchBatch(ctx, chunk)
		})
	}

	chunks, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("market data batch fetch failed: %w", err)
	}

	fetched := make(map[string]TokenMarketData)
	for _, chunk := range chunks {
		for mint, data := range chunk {
			fetched[mint] = data
		}
	}

	for _, mint := range missing {
		data, ok := fetched[mint]
		if !ok || data.PriceUSD == 0 {
			// 死币/下架：零值兜底，不报错
			data = TokenMarketData{Mint: mint, Symbol: data.Symbol, Name: data.Name}
			r.localCache.Set(utils.TokenMarketKey(mint), data, missEntryTTL)
		} else {
			data.Mint = mint
			r.localCache.Set(utils.TokenMarketKey(mint), data, cache.DefaultExpiration)
		}
		result[mint] = data
	}

	return result, nil
}

// SOLPrice 当前SOL美元价，走同一套缓存
func (r *Resolver) SOLPrice(ctx context.Context) (float64, error) {
	data, err := r.Resolve(ctx, []string{WrappedSOLMint})
	if err != nil {
		return 0, err
	}
	price := data[WrappedSOLMint].PriceUSD
	if price <= 0 {
		return 0, fmt.Errorf("sol price unavailable")
	}
	return price, nil
}

func (r *Resolver) fetchBatchHTTP(ctx context.Context, client *httpclient.HTTPClient, mints []string) (map[string]TokenMarketData, error) {
	var resp batchPriceResponse
	url := fmt.Sprintf("%s/v1/tokens/market-data", r.cfg.BaseURL)
	if err := client.PostJSON(ctx, url, batchPriceRequest{Mints: mints}, nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]TokenMarketData, len(resp.Data))
	for mint, entry := range resp.Data {
		out[mint] = TokenMarketData{
			Mint:        mint,
			Symbol:      entry.Symbol,
			Name:        entry.Name,
			PriceUSD:    entry.Price,
			MarketCap:   entry.MarketCap,
			ATHPriceUSD: entry.ATHPrice,
		}
	}
	return out, nil
}
