package result

import (
	"context"

	"paperhands/internal/worker/model"
	"paperhands/internal/worker/writer"
	"paperhands/pkg/elasticsearch"

	"go.uber.org/zap"
)

// ESResultWriter 把分析结果写入leaderboard检索用的索引
type ESResultWriter struct {
	esClient *elasticsearch.Client
	logger   *zap.Logger
	index    string
}

func NewESResultWriter(esClient *elasticsearch.Client, logger *zap.Logger, index string) writer.BatchWriter[model.WalletAnalysisResult] {
	return &ESResultWriter{
		esClient: esClient,
		logger:   logger,
		index:    index,
	}
}

func (w *ESResultWriter) BWrite(ctx context.Context, results []model.WalletAnalysisResult) error {
	if len(results) == 0 {
		return nil
	}

	operations := make([]elasticsearch.BulkOperation, 0, len(results))
	for i := range results {
		res := &results[i]
		operations = append(operations, elasticsearch.BulkOperation{
			// index操作：存在则更新，不存在则创建
			Action:   "index",
			Index:    w.index,
			ID:       res.WalletAddress,
			Routing:  res.WalletAddress,
			Document: w.convertToESDoc(res),
		})
	}

	return w.esClient.BulkWrite(ctx, operations)
}

func (w *ESResultWriter) Close() error {
	return nil
}

func (w *ESResultWriter) convertToESDoc(res *model.WalletAnalysisResult) map[string]interface{} {
	return map[string]interface{}{
		"wallet_address":   res.WalletAddress,
		"total_regret_usd": res.TotalRegretUSD,
		"total_events":     res.TotalEvents,
		"distinct_tokens":  res.DistinctTokens,
		"win_rate":         res.WinRate,
		"avg_hold_days":    res.AvgHoldDays,
		"tags":             []string(res.Tags),
		"date_from_ms":     res.DateFromMs,
		"date_to_ms":       res.DateToMs,
		"computed_at":      res.ComputedAt.UnixMilli(),
	}
}
