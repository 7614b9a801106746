package worker

import (
	"context"
	"time"

	"paperhands/internal/worker/analyzer"
	"paperhands/internal/worker/api"
	"paperhands/internal/worker/config"
	"paperhands/internal/worker/dao"
	"paperhands/internal/worker/job"
	"paperhands/internal/worker/model"
	"paperhands/internal/worker/monitor"
	"paperhands/internal/worker/queue"
	"paperhands/internal/worker/repository"
	"paperhands/internal/worker/writer"
	resultwriter "paperhands/internal/worker/writer/result"
	"paperhands/pkg/ledger"
	"paperhands/pkg/marketdata"

	"go.uber.org/zap"
)

type Core struct {
	cfg        config.Config
	tl         *zap.Logger
	repo       repository.Repository
	scheduler  *job.Scheduler
	admission  *queue.Admission
	apiServer  *api.Server
	metrics    *monitor.MetricsServer
	kafkaAsync *writer.AsyncBatchWriter[model.WalletAnalysisResult]
	esAsync    *writer.AsyncBatchWriter[model.WalletAnalysisResult]
}

func New(cfg config.Config, logger *zap.Logger) *Core {
	// 初始化repo
	repo := repository.New(cfg, logger)

	jobDAO := dao.NewJobDAO(repo.GetDB())
	resultDAO := dao.NewAnalysisResultDAO(repo.GetDB(), repo.GetMainRDB())

	// 上游客户端与分析管线
	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL:   cfg.Ledger.BaseURL,
		APIKey:    cfg.Ledger.APIKey,
		RateLimit: cfg.Ledger.RateLimit,
		Timeout:   cfg.Ledger.Timeout,
	}, logger)
	resolver := marketdata.NewResolver(marketdata.Config{
		BaseURL:   cfg.MarketData.BaseURL,
		APIKey:    cfg.MarketData.APIKey,
		RateLimit: cfg.MarketData.RateLimit,
	}, logger)
	extractor := analyzer.NewSwapExtractor(ledgerClient, logger)

	runner := queue.NewRunner(cfg.Analyzer, logger, jobDAO, resultDAO, repo.GetMainRDB(), extractor, resolver)
	admission := queue.NewAdmission(cfg.Analyzer, logger, jobDAO, resultDAO, repo.GetMainRDB(), runner)

	core := &Core{
		cfg:       cfg,
		tl:        logger,
		repo:      repo,
		admission: admission,
		metrics:   monitor.NewMetricsServer(cfg.Monitor),
		apiServer: api.NewServer(cfg.API, logger, admission),
	}

	// 完成结果的下游发布（leaderboard），两个通道均可选
	if mq := repo.GetMQ(); mq != nil && cfg.Kafka.TopicResult != "" {
		kw := resultwriter.NewKafkaResultWriter(mq, logger, cfg.Kafka.TopicResult)
		core.kafkaAsync = writer.NewAsyncBatchWriter[model.WalletAnalysisResult](logger, kw, 100, 200*time.Millisecond, "result_kafka_writer", 2)
	}
	if esClient := repo.GetElasticsearchClient(); esClient != nil && cfg.Elasticsearch.ResultsIndexName != "" {
		ew := resultwriter.NewESResultWriter(esClient, logger, cfg.Elasticsearch.ResultsIndexName)
		core.esAsync = writer.NewAsyncBatchWriter[model.WalletAnalysisResult](logger, ew, 100, 200*time.Millisecond, "result_es_writer", 2)
	}
	runner.SetPublishers(core.kafkaAsync, core.esAsync)

	// 调度任务：启动恢复 + 定时补位 + 超时回收 + 过期结果清理
	scheduler := job.NewScheduler(logger)
	scheduler.RegisterOnceJob("queue_recover", func(ctx context.Context) error {
		if err := admission.ReclaimStale(ctx); err != nil {
			return err
		}
		return admission.Drain(ctx)
	})
	scheduler.RegisterJob("queue_drain", 5*time.Second, admission.Drain)
	scheduler.RegisterJob("stale_reclaim", 1*time.Minute, admission.ReclaimStale)
	scheduler.RegisterJob("result_cache_sweep", 1*time.Hour, func(ctx context.Context) error {
		deleted, err := resultDAO.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		if deleted > 0 {
			logger.Info("swept expired analysis results", zap.Int64("deleted", deleted))
		}
		return nil
	})
	core.scheduler = scheduler

	return core
}

func (c *Core) Start(ctx context.Context) {
	c.tl.Info("Starting worker core...")
	// 启动监控服务
	if c.metrics != nil {
		c.metrics.Run()
	}

	if c.kafkaAsync != nil {
		c.kafkaAsync.Start(ctx)
	}
	if c.esAsync != nil {
		c.esAsync.Start(ctx)
	}

	// 启动API与调度器
	c.apiServer.Run()
	c.scheduler.Start(ctx)
	c.tl.Info("Worker started successfully")

	// 等待外部关闭信号
	<-ctx.Done()
	c.tl.Info("Shutting down worker due to context cancellation...")
}

// Stop 优雅关闭 Core 的所有资源
func (c *Core) Stop(ctx context.Context) {
	c.tl.Info("Stopping worker core...")

	if err := c.apiServer.Stop(ctx); err != nil {
		c.tl.Warn("API server shutdown error", zap.Error(err))
	}

	if c.scheduler != nil {
		c.scheduler.Stop(ctx)
	}

	if c.kafkaAsync != nil {
		c.kafkaAsync.Close()
	}
	if c.esAsync != nil {
		c.esAsync.Close()
	}

	if c.metrics != nil {
		_ = c.metrics.Stop(ctx)
	}

	c.repo.Close()

	c.tl.Info("Worker core stopped.")
}
