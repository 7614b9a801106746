package queue

import (
	"context"
	"testing"
	"time"

	"paperhands/internal/worker/analyzer"
	"paperhands/internal/worker/model"
	"paperhands/pkg/marketdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// deadlineCheckedJobDAO 复刻database/sql对已过期上下文的拒绝行为
type deadlineCheckedJobDAO struct {
	*memoryJobDAO
}

func (d *deadlineCheckedJobDAO) MarkComplete(ctx context.Context, id string, report datatypes.JSON) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.memoryJobDAO.MarkComplete(ctx, id, report)
}

func (d *deadlineCheckedJobDAO) MarkFailed(ctx context.Context, id string, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.memoryJobDAO.MarkFailed(ctx, id, errMsg)
}

// 管线打到自身超时后仍要亲手写回failed终态，不能滞留processing等回收任务
func TestRunnerPipelineTimeoutMarksFailed(t *testing.T) {
	jobDAO := &deadlineCheckedJobDAO{newMemoryJobDAO()}
	resultDAO := newMemoryResultDAO()

	cfg := testAnalyzerConfig()
	cfg.MaxPipelineMinutes = 0 // 管线上下文创建即过期

	logger := zap.NewNop()
	resolver := marketdata.NewResolverWithFetcher(logger, func(ctx context.Context, mints []string) (map[string]marketdata.TokenMarketData, error) {
		out := make(map[string]marketdata.TokenMarketData, len(mints))
		for _, mint := range mints {
			out[mint] = marketdata.TokenMarketData{Mint: mint, Symbol: "SOL", PriceUSD: 150}
		}
		return out, nil
	})
	extractor := analyzer.NewSwapExtractor(&gatedLedger{release: make(chan struct{})}, logger)
	runner := NewRunner(cfg, logger, jobDAO, resultDAO, unreachableRedis(), extractor, resolver)

	now := time.Now()
	job := &model.AnalysisJob{
		ID:            uuid.NewString(),
		WalletAddress: marketdata.WrappedSOLMint,
		Status:        model.JOB_STATUS_PROCESSING,
		LookbackDays:  90,
		StartedAt:     &now,
	}
	jobDAO.seed(job)

	runner.Dispatch(job)

	require.Eventually(t, func() bool {
		got, err := jobDAO.GetByID(context.Background(), job.ID)
		return err == nil && got != nil && got.Status == model.JOB_STATUS_FAILED
	}, 5*time.Second, 20*time.Millisecond, "timed-out pipeline must record its own failure")

	got, err := jobDAO.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	// 写回的是管线自己的错误，而不是回收任务的占位文案
	require.Contains(t, got.Error, "context deadline exceeded")
	require.NotContains(t, got.Error, "processing timeout exceeded")
}
