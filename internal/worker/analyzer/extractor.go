package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperhands/internal/worker/model"
	"paperhands/pkg/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrExtractionFailed 上游账本API重试耗尽，整个分析失败
	ErrExtractionFailed = errors.New("ledger extraction failed")
)

const (
	maxFetchAttempts = 5
	baseBackoff      = 500 * time.Millisecond

	// 尘埃过滤：对手资产价值低于此值的交易不算swap
	minCounterUSD = 0.10
)

// 稳定币mint，1:1计美元
var stableMints = map[string]struct{}{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {}, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {}, // USDT
}

// 已识别的交易所来源，不在名单内的交易一律丢弃
var dexSources = map[string]struct{}{
	"RAYDIUM":  {},
	"JUPITER":  {},
	"ORCA":     {},
	"METEORA":  {},
	"PUMP_FUN": {},
	"PUMP_AMM": {},
	"PHOENIX":  {},
	"LIFINITY": {},
	"OKX_DEX":  {},
}

// LedgerAPI 提取器依赖的账本索引接口
type LedgerAPI interface {
	AddressTransactions(ctx context.Context, address, before string, limit int) ([]ledger.EnhancedTransaction, ledger.FetchOutcome)
}

// SwapExtractor 拉取地址历史交易并解码为swap记录
type SwapExtractor struct {
	api    LedgerAPI
	logger *zap.Logger
}

func NewSwapExtractor(api LedgerAPI, logger *zap.Logger) *SwapExtractor {
	return &SwapExtractor{api: api, logger: logger}
}

// Extract 分页拉取lookback窗口内的历史并解码，返回按时间升序的swap列表
// solPriceUSD用于折算原生币对手腿；限流走指数退避重试，耗尽才算提取失败
func (x *SwapExtractor) Extract(ctx context.Context, address string, lookbackDays int, solPriceUSD float64, obs ProgressObserver) ([]model.Swap, error) {
	if obs == nil {
		obs = NopObserver
	}

	cutoffMs := time.Now().AddDate(0, 0, -lookbackDays).UnixMilli()

	var raw []ledger.EnhancedTransaction
	before := ""
	page := 0

	for {
		obs.OnProgress(ProgressEvent{
			Stage:   STAGE_FETCHING,
			Percent: fetchPercent(page),
			Message: fmt.Sprintf("fetching transaction history page %d", page+1),
		})

		txs, err := x.fetchPage(ctx, address, before, obs)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			break
		}

		reachedCutoff := false
		for _, tx := range txs {
			if tx.Timestamp*1000 < cutoffMs {
				reachedCutoff = true
				break
			}
			raw = append(raw, tx)
		}

		if reachedCutoff {
			break
		}
		before = txs[len(txs)-1].Signature
		page++
	}

	obs.OnProgress(ProgressEvent{
		Stage:   STAGE_EXTRACTING,
		Percent: 60,
		Message: fmt.Sprintf("decoding %d transactions", len(raw)),
	})

	// 上游是新到旧，倒序得到时间升序；时间戳相同的保持上游相对顺序
	swaps := make([]model.Swap, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		if swap, ok := DecodeSwap(&raw[i], address, solPriceUSD); ok {
			swaps = append(swaps, swap)
		}
	}

	x.logger.Info("swap extraction finished",
		zap.String("wallet", address),
		zap.Int("transactions", len(raw)),
		zap.Int("swaps", len(swaps)))

	return swaps, nil
}

// fetchPage 单页拉取的显式重试循环
func (x *SwapExtractor) fetchPage(ctx context.Context, address, before string, obs ProgressObserver) ([]ledger.EnhancedTransaction, error) {
	var outcome ledger.FetchOutcome

	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		var txs []ledger.EnhancedTransaction
		txs, outcome = x.api.AddressTransactions(ctx, address, before, ledger.DefaultPageLimit)

		switch outcome.Status {
		case ledger.FetchOK:
			return txs, nil

		case ledger.FetchRateLimited:
			delay := baseBackoff << attempt
			if outcome.RetryAfter > delay {
				delay = outcome.RetryAfter
			}
			obs.OnProgress(ProgressEvent{
				Stage:   STAGE_RATE_LIMITED,
				Message: fmt.Sprintf("upstream rate limited, retrying in %s", delay),
			})
			x.logger.Warn("ledger api rate limited",
				zap.String("wallet", address), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case ledger.FetchFailed:
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, outcome.Err)
		}
	}

	return nil, fmt.Errorf("%w: rate limit retries exhausted: %v", ErrExtractionFailed, outcome.Err)
}

// DecodeSwap 把一笔已解析交易解码为0或1条swap记录
// 规则：链上成功、来源在交易所名单内、钱包恰好单向换手一种代币、
// 对手资产（原生币或稳定币）非尘埃，缺任何一条都不产出
func DecodeSwap(tx *ledger.EnhancedTransaction, wallet string, solPriceUSD float64) (model.Swap, bool) {
	if tx.Failed() {
		return model.Swap{}, false
	}
	if _, known := dexSources[tx.Source]; !known {
		return model.Swap{}, false
	}

	// 钱包的代币净流向，稳定币单独作为对手腿统计
	tokenNet := make(map[string]float64)
	stableInUSD, stableOutUSD := 0.0, 0.0
	for _, tt := range tx.TokenTransfers {
		if _, stable := stableMints[tt.Mint]; stable {
			if tt.ToUserAccount == wallet {
				stableInUSD += tt.TokenAmount
			}
			if tt.FromUserAccount == wallet {
				stableOutUSD += tt.TokenAmount
			}
			continue
		}
		if tt.ToUserAccount == wallet {
			tokenNet[tt.Mint] += tt.TokenAmount
		}
		if tt.FromUserAccount == wallet {
			tokenNet[tt.Mint] -= tt.TokenAmount
		}
	}

	var lamportsIn, lamportsOut int64
	for _, nt := range tx.NativeTransfers {
		if nt.ToUserAccount == wallet {
			lamportsIn += nt.Amount
		}
		if nt.FromUserAccount == wallet {
			lamportsOut += nt.Amount
		}
	}
	solInUSD := lamportsToSOL(lamportsIn) * solPriceUSD
	solOutUSD := lamportsToSOL(lamportsOut) * solPriceUSD

	bought, sold := "", ""
	boughtAmount, soldAmount := 0.0, 0.0
	for mint, net := range tokenNet {
		switch {
		case net > AmountEpsilon:
			if bought != "" {
				return model.Swap{}, false // 多腿换手，无法归类
			}
			bought = mint
			boughtAmount = net
		case net < -AmountEpsilon:
			if sold != "" {
				return model.Swap{}, false
			}
			sold = mint
			soldAmount = -net
		}
	}

	timestampMs := tx.Timestamp * 1000

	switch {
	case bought != "" && sold == "":
		counterUSD := stableOutUSD + solOutUSD
		if counterUSD < minCounterUSD {
			return model.Swap{}, false
		}
		return model.Swap{
			Signature:     tx.Signature,
			TimestampMs:   timestampMs,
			TokenMint:     bought,
			Direction:     model.SWAP_DIRECTION_BUY,
			CounterUSD:    counterUSD,
			TokenAmount:   boughtAmount,
			PricePerToken: counterUSD / boughtAmount,
		}, true

	case sold != "" && bought == "":
		counterUSD := stableInUSD + solInUSD
		if counterUSD < minCounterUSD {
			return model.Swap{}, false
		}
		return model.Swap{
			Signature:     tx.Signature,
			TimestampMs:   timestampMs,
			TokenMint:     sold,
			Direction:     model.SWAP_DIRECTION_SELL,
			CounterUSD:    counterUSD,
			TokenAmount:   soldAmount,
			PricePerToken: counterUSD / soldAmount,
		}, true
	}

	return model.Swap{}, false
}

func lamportsToSOL(lamports int64) float64 {
	return decimal.New(lamports, -9).InexactFloat64()
}

// fetchPercent 拉取阶段的进度上限压在50%，后续阶段接着走
func fetchPercent(page int) int {
	p := 5 + page*5
	if p > 50 {
		p = 50
	}
	return p
}
