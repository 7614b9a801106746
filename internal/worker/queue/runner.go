package queue

import (
	"context"
	"fmt"
	"time"

	"paperhands/internal/worker/analyzer"
	"paperhands/internal/worker/config"
	"paperhands/internal/worker/dao"
	"paperhands/internal/worker/model"
	"paperhands/internal/worker/monitor"
	"paperhands/internal/worker/writer"
	"paperhands/pkg/marketdata"
	"paperhands/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const progressTTL = 10 * time.Minute

// Runner 执行已抢到名额的作业：提取 -> 建仓 -> 行情 -> 配对 -> 聚合
// 管线脱离请求上下文运行，客户端断开不会中止已领取的作业
type Runner struct {
	cfg       config.AnalyzerConfig
	tl        *zap.Logger
	jobDAO    dao.JobDAO
	resultDAO dao.AnalysisResultDAO
	rds       *redis.Client
	extractor *analyzer.SwapExtractor
	resolver  *marketdata.Resolver
	engine    *analyzer.RegretEngine

	// 可选的下游发布（leaderboard消费侧）
	kafkaAsync *writer.AsyncBatchWriter[model.WalletAnalysisResult]
	esAsync    *writer.AsyncBatchWriter[model.WalletAnalysisResult]

	// 终态后由Admission补位
	afterTerminal func(ctx context.Context) error
}

func NewRunner(cfg config.AnalyzerConfig, tl *zap.Logger, jobDAO dao.JobDAO, resultDAO dao.AnalysisResultDAO,
	rds *redis.Client, extractor *analyzer.SwapExtractor, resolver *marketdata.Resolver) *Runner {
	return &Runner{
		cfg:       cfg,
		tl:        tl,
		jobDAO:    jobDAO,
		resultDAO: resultDAO,
		rds:       rds,
		extractor: extractor,
		resolver:  resolver,
		engine:    analyzer.NewRegretEngine(cfg.MaterialityUSD, tl),
	}
}

// SetPublishers 挂接完成结果的异步发布器
func (r *Runner) SetPublishers(kafkaAsync, esAsync *writer.AsyncBatchWriter[model.WalletAnalysisResult]) {
	r.kafkaAsync = kafkaAsync
	r.esAsync = esAsync
}

// Dispatch 异步执行一个processing状态的作业
func (r *Runner) Dispatch(job *model.AnalysisJob) {
	go r.run(job)
}

func (r *Runner) run(job *model.AnalysisJob) {
	// 管线自带超时，和ReclaimStale的判定窗口一致
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(r.cfg.MaxPipelineMinutes)*time.Minute)
	defer cancel()
	// 终态落库不能挂在管线超时上，否则超时的作业写不回failed
	termCtx := context.WithoutCancel(ctx)

	startTime := time.Now()
	tl := r.tl.With(zap.String("job_id", job.ID), zap.String("wallet", job.WalletAddress))

	obs := analyzer.MultiObserver{
		analyzer.NewLogObserver(tl),
		r.redisObserver(job.ID),
		r.metricsObserver(),
	}

	report, err := r.pipeline(ctx, job, obs)
	if err != nil {
		tl.Error("analysis pipeline failed", zap.Error(err), zap.Duration("duration", time.Since(startTime)))
		if markErr := r.jobDAO.MarkFailed(termCtx, job.ID, err.Error()); markErr != nil {
			tl.Error("failed to mark job failed", zap.Error(markErr))
		}
		monitor.AnalysesFailed.Inc()
		r.finish(termCtx)
		return
	}

	reportJSON, err := sonic.Marshal(report)
	if err != nil {
		tl.Error("failed to encode report", zap.Error(err))
		_ = r.jobDAO.MarkFailed(termCtx, job.ID, fmt.Sprintf("encode report: %v", err))
		monitor.AnalysesFailed.Inc()
		r.finish(termCtx)
		return
	}

	if err := r.jobDAO.MarkComplete(termCtx, job.ID, datatypes.JSON(reportJSON)); err != nil {
		tl.Error("failed to mark job complete", zap.Error(err))
		r.finish(termCtx)
		return
	}

	row := resultRow(report, time.Duration(r.cfg.CacheTTLHours)*time.Hour)
	if err := r.resultDAO.Upsert(termCtx, row); err != nil {
		// 结果缓存写失败不回滚作业终态，下次请求重算即可
		tl.Warn("failed to upsert analysis cache", zap.Error(err))
	}

	r.publish(row)

	obs.OnProgress(analyzer.ProgressEvent{Stage: analyzer.STAGE_COMPLETE, Percent: 100, Message: "analysis complete"})
	monitor.AnalysesCompleted.Inc()
	monitor.PipelineDuration.Observe(time.Since(startTime).Seconds())
	tl.Info("analysis complete",
		zap.Int("events", report.TotalEvents),
		zap.Float64("total_regret_usd", report.TotalRegretUSD),
		zap.Duration("duration", time.Since(startTime)))

	r.finish(termCtx)
}

func (r *Runner) pipeline(ctx context.Context, job *model.AnalysisJob, obs analyzer.ProgressObserver) (*model.AnalysisReport, error) {
	// 原生币对手腿按当前SOL价折算，拿不到价整个分析无法定值
	solPrice, err := r.resolver.SOLPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("market data unavailable: %w", err)
	}

	swaps, err := r.extractor.Extract(ctx, job.WalletAddress, job.LookbackDays, solPrice, obs)
	if err != nil {
		return nil, err
	}

	positions := analyzer.BuildPositions(swaps)

	obs.OnProgress(analyzer.ProgressEvent{
		Stage:   analyzer.STAGE_RESOLVING,
		Percent: 70,
		Message: fmt.Sprintf("resolving market data for %d tokens", len(positions)),
	})

	mints := make([]string, 0, len(positions))
	for _, pos := range positions {
		mints = append(mints, pos.TokenMint)
	}

	market, err := r.resolver.Resolve(ctx, mints)
	if err != nil {
		// 行情不可用是降级而非失败：引擎会退回用卖出价作参考价
		r.tl.Warn("market data resolve failed, degrading to sale prices", zap.Error(err))
		market = map[string]marketdata.TokenMarketData{}
	}

	obs.OnProgress(analyzer.ProgressEvent{
		Stage:   analyzer.STAGE_MATCHING,
		Percent: 85,
		Message: fmt.Sprintf("matching trades across %d positions", len(positions)),
	})

	events := r.engine.Compute(positions, market)

	obs.OnProgress(analyzer.ProgressEvent{
		Stage:   analyzer.STAGE_AGGREGATING,
		Percent: 95,
		Message: "aggregating wallet statistics",
	})

	report := analyzer.Aggregate(job.WalletAddress, positions, events, time.Now())
	return &report, nil
}

func (r *Runner) publish(row *model.WalletAnalysisResult) {
	if r.kafkaAsync != nil {
		r.kafkaAsync.Submit(*row)
	}
	if r.esAsync != nil {
		r.esAsync.Submit(*row)
	}
}

func (r *Runner) finish(ctx context.Context) {
	if r.afterTerminal != nil {
		if err := r.afterTerminal(ctx); err != nil {
			r.tl.Error("post-terminal drain failed", zap.Error(err))
		}
	}
}

// redisObserver 把最新进度写进redis，供状态轮询端读取
func (r *Runner) redisObserver(jobID string) analyzer.ProgressObserver {
	return analyzer.ProgressFunc(func(event analyzer.ProgressEvent) {
		data, err := sonic.Marshal(event)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.rds.Set(ctx, utils.JobProgressKey(jobID), string(data), progressTTL)
	})
}

func (r *Runner) metricsObserver() analyzer.ProgressObserver {
	return analyzer.ProgressFunc(func(event analyzer.ProgressEvent) {
		switch event.Stage {
		case analyzer.STAGE_FETCHING:
			monitor.LedgerPagesFetched.Inc()
		case analyzer.STAGE_RATE_LIMITED:
			monitor.LedgerRateLimited.Inc()
		}
	})
}

func resultRow(report *model.AnalysisReport, ttl time.Duration) *model.WalletAnalysisResult {
	reportJSON, _ := sonic.Marshal(report)
	computedAt := time.UnixMilli(report.ComputedAt)
	return &model.WalletAnalysisResult{
		WalletAddress:  report.WalletAddress,
		TotalRegretUSD: report.TotalRegretUSD,
		TotalEvents:    report.TotalEvents,
		DistinctTokens: report.DistinctTokens,
		WinRate:        report.WinRate,
		AvgHoldDays:    report.AvgHoldDays,
		Tags:           report.Tags,
		Report:         datatypes.JSON(reportJSON),
		DateFromMs:     report.DateFromMs,
		DateToMs:       report.DateToMs,
		ComputedAt:     computedAt,
		ExpiresAt:      computedAt.Add(ttl),
	}
}
