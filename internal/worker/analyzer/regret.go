package analyzer

import (
	"paperhands/internal/worker/model"
	"paperhands/pkg/marketdata"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AmountEpsilon 批次余量的浮点判零阈值，防止舍入渣导致死循环
const AmountEpsilon = 1e-9

// RegretEngine 把仓位的买卖序列按FIFO配对并产出后悔事件
// 纯计算，无隐藏状态：同一输入两次运行产出一致（事件ID除外由调用方关心时可忽略）
type RegretEngine struct {
	materialityUSD float64
	logger         *zap.Logger
}

func NewRegretEngine(materialityUSD float64, logger *zap.Logger) *RegretEngine {
	return &RegretEngine{
		materialityUSD: materialityUSD,
		logger:         logger,
	}
}

// Compute 对所有仓位独立计算；单个仓位的异常只跳过该仓位，不中断整体
func (e *RegretEngine) Compute(positions []model.Position, market map[string]marketdata.TokenMarketData) []model.RegretEvent {
	events := make([]model.RegretEvent, 0)
	for _, pos := range positions {
		data := market[pos.TokenMint]
		posEvents := e.computePosition(pos, data)
		events = append(events, posEvents...)
	}
	return events
}

func (e *RegretEngine) computePosition(pos model.Position, data marketdata.TokenMarketData) (events []model.RegretEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("position matching panicked, skipping token",
				zap.String("mint", pos.TokenMint), zap.Any("panic", r))
			events = nil
		}
	}()

	// 工作队列：复制批次，原始仓位不被修改
	lots := make([]model.Lot, len(pos.Buys))
	copy(lots, pos.Buys)

	symbol := data.Symbol
	if symbol == "" {
		symbol = pos.Symbol
	}

	for _, sale := range pos.Sells {
		if len(lots) == 0 {
			// 观察窗口外买入的代币被卖出：跳过，不产事件也不算瞬时盈利
			continue
		}
		if sale.Amount <= AmountEpsilon {
			continue
		}

		earliestBuyTs := lots[0].TimestampMs
		toMatch := sale.Amount
		matched := 0.0
		buyValue := 0.0

		for len(lots) > 0 && toMatch > AmountEpsilon {
			lot := &lots[0]
			take := lot.RemainingAmount
			if toMatch < take {
				take = toMatch
			}
			buyValue += take * lot.UnitCost
			matched += take
			lot.RemainingAmount -= take
			toMatch -= take
			if lot.RemainingAmount <= AmountEpsilon {
				lots = lots[1:]
			}
		}

		if matched <= AmountEpsilon {
			continue
		}

		// 部分匹配时按比例折算卖出所得，未覆盖部分不计入
		matchedFraction := matched / sale.Amount
		sellValue := sale.Amount * sale.UnitPrice * matchedFraction
		realizedDelta := sellValue - buyValue

		// 参考价优先用实时价，拿不到就用卖出价本身（按零后悔处理，不瞎编）
		refPrice := data.PriceUSD
		if refPrice <= 0 {
			refPrice = sale.UnitPrice
		}

		currentValue := matched * refPrice
		regret := currentValue - sellValue
		if regret < 0 {
			regret = 0
		}

		regretPercent := 0.0
		if buyValue > 0 {
			regretPercent = regret / buyValue * 100
		}

		// 噪音抑制：后悔额或已实现亏损达到门槛才产出事件
		if regret < e.materialityUSD && realizedDelta > -e.materialityUSD {
			continue
		}

		events = append(events, model.RegretEvent{
			ID:                uuid.NewString(),
			TokenMint:         pos.TokenMint,
			Symbol:            symbol,
			BuyUnitPrice:      buyValue / matched,
			SellUnitPrice:     sale.UnitPrice,
			MatchedAmount:     matched,
			BuyTimestampMs:    earliestBuyTs,
			SellTimestampMs:   sale.TimestampMs,
			RealizedDeltaUSD:  realizedDelta,
			RegretUSD:         regret,
			RegretPercent:     regretPercent,
			ReferencePriceUSD: refPrice,
			SellSignature:     sale.Signature,
		})
	}

	return events
}
