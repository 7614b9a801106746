package analyzer

import (
	"paperhands/internal/worker/model"
)

// BuildPositions 按mint分组构建仓位，纯函数
// 两侧保持输入的时间顺序；不做任何过滤，过滤在提取阶段已完成
func BuildPositions(swaps []model.Swap) []model.Position {
	index := make(map[string]int)
	positions := make([]model.Position, 0)

	for _, swap := range swaps {
		i, ok := index[swap.TokenMint]
		if !ok {
			i = len(positions)
			index[swap.TokenMint] = i
			positions = append(positions, model.Position{TokenMint: swap.TokenMint})
		}

		switch swap.Direction {
		case model.SWAP_DIRECTION_BUY:
			positions[i].Buys = append(positions[i].Buys, model.Lot{
				TimestampMs:     swap.TimestampMs,
				Amount:          swap.TokenAmount,
				UnitCost:        swap.PricePerToken,
				RemainingAmount: swap.TokenAmount,
			})
		case model.SWAP_DIRECTION_SELL:
			positions[i].Sells = append(positions[i].Sells, model.Sale{
				TimestampMs: swap.TimestampMs,
				Amount:      swap.TokenAmount,
				UnitPrice:   swap.PricePerToken,
				Signature:   swap.Signature,
			})
		}
	}

	return positions
}
