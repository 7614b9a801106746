package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"paperhands/internal/worker/model"
	"paperhands/pkg/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

const (
	testWallet = "FvWa11etAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	usdcMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	memeMint   = "MemeMintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

// fakeLedger 按页返回预置交易，并可对前N次请求注入限流或失败
type fakeLedger struct {
	pages     map[string][]ledger.EnhancedTransaction // before -> page
	calls     int
	rateLimit int // 前N次请求返回限流
	failAll   bool
}

func (f *fakeLedger) AddressTransactions(ctx context.Context, address, before string, limit int) ([]ledger.EnhancedTransaction, ledger.FetchOutcome) {
	f.calls++
	if f.failAll {
		return nil, ledger.FetchOutcome{Status: ledger.FetchFailed, Err: errors.New("upstream 500")}
	}
	if f.calls <= f.rateLimit {
		return nil, ledger.FetchOutcome{Status: ledger.FetchRateLimited, RetryAfter: time.Millisecond}
	}
	return f.pages[before], ledger.FetchOutcome{Status: ledger.FetchOK}
}

// buyTx 用USDC买入meme币的标准交易
func buyTx(sig string, ts int64, usdcAmount, tokenAmount float64) ledger.EnhancedTransaction {
	return ledger.EnhancedTransaction{
		Signature: sig,
		Timestamp: ts,
		Source:    "JUPITER",
		Type:      "SWAP",
		TokenTransfers: []ledger.TokenTransfer{
			{FromUserAccount: testWallet, ToUserAccount: "pool", Mint: usdcMint, TokenAmount: usdcAmount},
			{FromUserAccount: "pool", ToUserAccount: testWallet, Mint: memeMint, TokenAmount: tokenAmount},
		},
	}
}

func sellTx(sig string, ts int64, tokenAmount, usdcAmount float64) ledger.EnhancedTransaction {
	return ledger.EnhancedTransaction{
		Signature: sig,
		Timestamp: ts,
		Source:    "RAYDIUM",
		Type:      "SWAP",
		TokenTransfers: []ledger.TokenTransfer{
			{FromUserAccount: testWallet, ToUserAccount: "pool", Mint: memeMint, TokenAmount: tokenAmount},
			{FromUserAccount: "pool", ToUserAccount: testWallet, Mint: usdcMint, TokenAmount: usdcAmount},
		},
	}
}

func TestExtract_PaginatesAndReturnsAscending(t *testing.T) {
	now := time.Now().Unix()
	// 上游新到旧：第一页的交易比第二页新
	api := &fakeLedger{pages: map[string][]ledger.EnhancedTransaction{
		"":     {sellTx("sig3", now-100, 10, 50), buyTx("sig2", now-200, 30, 10)},
		"sig2": {buyTx("sig1", now-300, 20, 10)},
		"sig1": {},
	}}
	extractor := NewSwapExtractor(api, zap.NewNop())

	swaps, err := extractor.Extract(context.Background(), testWallet, 90, 150, nil)
	require.NoError(t, err)
	require.Len(t, swaps, 3)

	assert.Equal(t, "sig1", swaps[0].Signature)
	assert.Equal(t, "sig2", swaps[1].Signature)
	assert.Equal(t, "sig3", swaps[2].Signature)
	assert.True(t, swaps[0].TimestampMs < swaps[1].TimestampMs)
	assert.Equal(t, model.SWAP_DIRECTION_SELL, swaps[2].Direction)
}

func TestExtract_StopsAtLookbackCutoff(t *testing.T) {
	now := time.Now().Unix()
	old := now - 200*24*3600
	api := &fakeLedger{pages: map[string][]ledger.EnhancedTransaction{
		"": {buyTx("recent", now-100, 30, 10), buyTx("ancient", old, 30, 10)},
	}}
	extractor := NewSwapExtractor(api, zap.NewNop())

	swaps, err := extractor.Extract(context.Background(), testWallet, 90, 150, nil)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, "recent", swaps[0].Signature)
	// 窗口边界命中后不再翻页
	assert.Equal(t, 1, api.calls)
}

func TestExtract_RetriesThroughRateLimit(t *testing.T) {
	now := time.Now().Unix()
	api := &fakeLedger{
		rateLimit: 2,
		pages: map[string][]ledger.EnhancedTransaction{
			"":     {buyTx("sig1", now-100, 30, 10)},
			"sig1": {},
		},
	}
	extractor := NewSwapExtractor(api, zap.NewNop())

	swaps, err := extractor.Extract(context.Background(), testWallet, 90, 150, nil)
	require.NoError(t, err)
	assert.Len(t, swaps, 1)
	assert.GreaterOrEqual(t, api.calls, 3)
}

func TestExtract_FailureSurfacesTypedError(t *testing.T) {
	api := &fakeLedger{failAll: true}
	extractor := NewSwapExtractor(api, zap.NewNop())

	_, err := extractor.Extract(context.Background(), testWallet, 90, 150, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestDecodeSwap_StableLegBuy(t *testing.T) {
	tx := buyTx("sig1", 1700000000, 250, 1000)

	swap, ok := DecodeSwap(&tx, testWallet, 150)
	require.True(t, ok)
	assert.Equal(t, model.SWAP_DIRECTION_BUY, swap.Direction)
	assert.Equal(t, memeMint, swap.TokenMint)
	assert.InDelta(t, 250.0, swap.CounterUSD, 1e-9)
	assert.InDelta(t, 1000.0, swap.TokenAmount, 1e-9)
	assert.InDelta(t, 0.25, swap.PricePerToken, 1e-9)
	assert.Equal(t, int64(1700000000000), swap.TimestampMs)
}

func TestDecodeSwap_NativeLegValuedAtSOLPrice(t *testing.T) {
	tx := ledger.EnhancedTransaction{
		Signature: "sig1",
		Timestamp: 1700000000,
		Source:    "PUMP_FUN",
		TokenTransfers: []ledger.TokenTransfer{
			{FromUserAccount: "pool", ToUserAccount: testWallet, Mint: memeMint, TokenAmount: 500},
		},
		NativeTransfers: []ledger.NativeTransfer{
			{FromUserAccount: testWallet, ToUserAccount: "pool", Amount: 2_000_000_000}, // 2 SOL
		},
	}

	swap, ok := DecodeSwap(&tx, testWallet, 150)
	require.True(t, ok)
	assert.Equal(t, model.SWAP_DIRECTION_BUY, swap.Direction)
	assert.InDelta(t, 300.0, swap.CounterUSD, 1e-9)
	assert.InDelta(t, 0.6, swap.PricePerToken, 1e-9)
}

func TestDecodeSwap_Rejections(t *testing.T) {
	t.Run("failed transaction", func(t *testing.T) {
		tx := buyTx("sig1", 1700000000, 250, 1000)
		tx.TransactionError = json.RawMessage(`{"InstructionError":[2,{"Custom":6001}]}`)
		_, ok := DecodeSwap(&tx, testWallet, 150)
		assert.False(t, ok)
	})

	t.Run("unknown source", func(t *testing.T) {
		tx := buyTx("sig1", 1700000000, 250, 1000)
		tx.Source = "SYSTEM_PROGRAM"
		_, ok := DecodeSwap(&tx, testWallet, 150)
		assert.False(t, ok)
	})

	t.Run("dust counter value", func(t *testing.T) {
		tx := buyTx("sig1", 1700000000, 0.05, 1000)
		_, ok := DecodeSwap(&tx, testWallet, 150)
		assert.False(t, ok)
	})

	t.Run("multi token leg", func(t *testing.T) {
		tx := buyTx("sig1", 1700000000, 250, 1000)
		tx.TokenTransfers = append(tx.TokenTransfers, ledger.TokenTransfer{
			FromUserAccount: "pool", ToUserAccount: testWallet,
			Mint: "OtherMintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", TokenAmount: 5,
		})
		_, ok := DecodeSwap(&tx, testWallet, 150)
		assert.False(t, ok)
	})

	t.Run("token to token swap has no counter leg", func(t *testing.T) {
		tx := ledger.EnhancedTransaction{
			Signature: "sig1",
			Timestamp: 1700000000,
			Source:    "JUPITER",
			TokenTransfers: []ledger.TokenTransfer{
				{FromUserAccount: testWallet, ToUserAccount: "pool", Mint: memeMint, TokenAmount: 100},
				{FromUserAccount: "pool", ToUserAccount: testWallet, Mint: "OtherMintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", TokenAmount: 40},
			},
		}
		_, ok := DecodeSwap(&tx, testWallet, 150)
		assert.False(t, ok)
	})

	t.Run("wallet not involved", func(t *testing.T) {
		tx := buyTx("sig1", 1700000000, 250, 1000)
		_, ok := DecodeSwap(&tx, "SomeOtherWa11etAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", 150)
		assert.False(t, ok)
	})
}

// 钱包自转账（进出相抵）不是swap
func TestDecodeSwap_SelfTransferNets(t *testing.T) {
	tx := ledger.EnhancedTransaction{
		Signature: "sig1",
		Timestamp: 1700000000,
		Source:    "RAYDIUM",
		TokenTransfers: []ledger.TokenTransfer{
			{FromUserAccount: testWallet, ToUserAccount: testWallet, Mint: memeMint, TokenAmount: 100},
		},
	}
	_, ok := DecodeSwap(&tx, testWallet, 150)
	assert.False(t, ok)
}
