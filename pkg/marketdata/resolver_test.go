package marketdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func newTestResolver(fetch FetchFunc) *Resolver {
	return NewResolverWithFetcher(zap.NewNop(), fetch)
}

func TestResolve_FetchesAndCaches(t *testing.T) {
	var calls int32
	r := newTestResolver(func(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
		atomic.AddInt32(&calls, 1)
		out := make(map[string]TokenMarketData, len(mints))
		for _, mint := range mints {
			out[mint] = TokenMarketData{Symbol: "TK", PriceUSD: 1.5}
		}
		return out, nil
	})

	ctx := context.Background()
	first, err := r.Resolve(ctx, []string{"mint1", "mint2"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.InDelta(t, 1.5, first["mint1"].PriceUSD, 1e-9)
	assert.Equal(t, "mint1", first["mint1"].Mint)

	// 新鲜窗口内第二次解析不触发网络
	second, err := r.Resolve(ctx, []string{"mint1", "mint2"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResolve_DeduplicatesMints(t *testing.T) {
	var mu sync.Mutex
	var requested []string
	r := newTestResolver(func(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
		mu.Lock()
		requested = append(requested, mints...)
		mu.Unlock()
		out := make(map[string]TokenMarketData, len(mints))
		for _, mint := range mints {
			out[mint] = TokenMarketData{PriceUSD: 2}
		}
		return out, nil
	})

	result, err := r.Resolve(context.Background(), []string{"mint1", "mint1", "mint1"})
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, []string{"mint1"}, requested)
}

// 行情里没有的mint返回零值条目而不是报错
func TestResolve_UnresolvedGetsZeroEntry(t *testing.T) {
	r := newTestResolver(func(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
		return map[string]TokenMarketData{}, nil
	})

	result, err := r.Resolve(context.Background(), []string{"deadmint"})
	require.NoError(t, err)
	require.Contains(t, result, "deadmint")
	assert.Equal(t, "deadmint", result["deadmint"].Mint)
	assert.Zero(t, result["deadmint"].PriceUSD)
}

func TestResolve_FetchErrorPropagates(t *testing.T) {
	r := newTestResolver(func(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
		return nil, errors.New("upstream down")
	})

	_, err := r.Resolve(context.Background(), []string{"mint1"})
	assert.Error(t, err)
}

func TestSOLPrice(t *testing.T) {
	r := newTestResolver(func(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
		assert.Equal(t, []string{WrappedSOLMint}, mints)
		return map[string]TokenMarketData{
			WrappedSOLMint: {Symbol: "SOL", PriceUSD: 142.5},
		}, nil
	})

	price, err := r.SOLPrice(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 142.5, price, 1e-9)
}

func TestSOLPrice_UnavailableIsError(t *testing.T) {
	r := newTestResolver(func(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
		return map[string]TokenMarketData{}, nil
	})

	_, err := r.SOLPrice(context.Background())
	assert.Error(t, err)
}
