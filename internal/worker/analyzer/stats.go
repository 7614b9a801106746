package analyzer

import (
	"math"
	"sort"
	"time"

	"paperhands/internal/worker/model"
)

const topTokenLimit = 10

// 交易风格标签的判定规则，全部是输入事件的确定性函数
const (
	TAG_SERIAL_PAPERHANDS   = "serial_paperhands"
	TAG_DEGEN_SCALPER       = "degen_scalper"
	TAG_DIAMOND_HANDED_ONCE = "diamond_handed_once"
	TAG_ROUND_TRIPPER       = "round_tripper"
)

// Aggregate 把事件列表归并为钱包级统计，纯函数
func Aggregate(walletAddress string, positions []model.Position, events []model.RegretEvent, now time.Time) model.AnalysisReport {
	report := model.AnalysisReport{
		WalletAddress:  walletAddress,
		TotalEvents:    len(events),
		DistinctTokens: len(positions),
		TopTokens:      []model.TokenRegret{},
		Tags:           []string{},
		Events:         events,
		ComputedAt:     now.UnixMilli(),
	}

	report.DateFromMs, report.DateToMs = dateRange(positions)

	if len(events) == 0 {
		return report
	}

	wins := 0
	totalHoldDays := 0
	maxSingleRegret := 0.0
	perToken := make(map[string]*model.TokenRegret)

	for _, ev := range events {
		report.TotalRegretUSD += ev.RegretUSD
		if ev.RealizedDeltaUSD > 0 {
			wins++
		}
		// 每个事件取整天数，再取平均
		totalHoldDays += int((ev.SellTimestampMs - ev.BuyTimestampMs) / (24 * time.Hour).Milliseconds())
		if ev.RegretUSD > maxSingleRegret {
			maxSingleRegret = ev.RegretUSD
		}

		tr, ok := perToken[ev.TokenMint]
		if !ok {
			tr = &model.TokenRegret{TokenMint: ev.TokenMint, Symbol: ev.Symbol}
			perToken[ev.TokenMint] = tr
		}
		tr.TotalRegretUSD += ev.RegretUSD
		tr.EventCount++
	}

	report.WinRate = float64(wins) / float64(len(events))
	report.AvgHoldDays = int(math.Round(float64(totalHoldDays) / float64(len(events))))
	report.TopTokens = topTokens(perToken)
	report.Tags = styleTags(report, maxSingleRegret)

	return report
}

// topTokens 先按mint聚合再排序取前N，多事件同币种必须先求和
func topTokens(perToken map[string]*model.TokenRegret) []model.TokenRegret {
	ranked := make([]model.TokenRegret, 0, len(perToken))
	for _, tr := range perToken {
		ranked = append(ranked, *tr)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalRegretUSD != ranked[j].TotalRegretUSD {
			return ranked[i].TotalRegretUSD > ranked[j].TotalRegretUSD
		}
		return ranked[i].TokenMint < ranked[j].TokenMint
	})
	if len(ranked) > topTokenLimit {
		ranked = ranked[:topTokenLimit]
	}
	return ranked
}

func styleTags(report model.AnalysisReport, maxSingleRegret float64) []string {
	tags := []string{}
	if report.TotalEvents >= 10 {
		tags = append(tags, TAG_SERIAL_PAPERHANDS)
	}
	if report.AvgHoldDays < 1 {
		tags = append(tags, TAG_DEGEN_SCALPER)
	}
	if maxSingleRegret >= 10000 {
		tags = append(tags, TAG_DIAMOND_HANDED_ONCE)
	}
	if report.WinRate < 0.25 {
		tags = append(tags, TAG_ROUND_TRIPPER)
	}
	return tags
}

func dateRange(positions []model.Position) (fromMs, toMs int64) {
	for _, pos := range positions {
		for _, lot := range pos.Buys {
			fromMs, toMs = expand(fromMs, toMs, lot.TimestampMs)
		}
		for _, sale := range pos.Sells {
			fromMs, toMs = expand(fromMs, toMs, sale.TimestampMs)
		}
	}
	return fromMs, toMs
}

func expand(fromMs, toMs, ts int64) (int64, int64) {
	if fromMs == 0 || ts < fromMs {
		fromMs = ts
	}
	if ts > toMs {
		toMs = ts
	}
	return fromMs, toMs
}
