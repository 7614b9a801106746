package queue

import (
	"context"
	"sync"
	"time"

	"paperhands/internal/worker/analyzer"
	"paperhands/internal/worker/config"
	"paperhands/internal/worker/model"
	"paperhands/pkg/ledger"
	"paperhands/pkg/marketdata"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// memoryJobDAO 内存实现，锁内完成claim以复刻数据库事务的名额守恒语义
type memoryJobDAO struct {
	mu   sync.Mutex
	jobs []*model.AnalysisJob // 切片顺序即创建顺序
}

func newMemoryJobDAO() *memoryJobDAO {
	return &memoryJobDAO{}
}

func (d *memoryJobDAO) GetByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, j := range d.jobs {
		if j.ID == id {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *memoryJobDAO) GetLiveByAddress(ctx context.Context, walletAddress string) (*model.AnalysisJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if live := d.findLive(walletAddress); live != nil {
		cp := *live
		return &cp, nil
	}
	return nil, nil
}

func (d *memoryJobDAO) LastCompletedAt(ctx context.Context, walletAddress string) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var latest time.Time
	for _, j := range d.jobs {
		if j.WalletAddress == walletAddress && j.Status == model.JOB_STATUS_COMPLETE &&
			j.CompletedAt != nil && j.CompletedAt.After(latest) {
			latest = *j.CompletedAt
		}
	}
	return latest, nil
}

func (d *memoryJobDAO) EnqueueAndClaim(ctx context.Context, job *model.AnalysisJob, maxConcurrent int) (*model.AnalysisJob, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if live := d.findLive(job.WalletAddress); live != nil {
		cp := *live
		return &cp, false, nil
	}

	stored := *job
	d.jobs = append(d.jobs, &stored)

	if d.countLocked(model.JOB_STATUS_PROCESSING) < int64(maxConcurrent) {
		now := time.Now()
		stored.Status = model.JOB_STATUS_PROCESSING
		stored.StartedAt = &now
		cp := stored
		return &cp, true, nil
	}
	cp := stored
	return &cp, false, nil
}

func (d *memoryJobDAO) ClaimOldestQueued(ctx context.Context, maxConcurrent int) (*model.AnalysisJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.countLocked(model.JOB_STATUS_PROCESSING) >= int64(maxConcurrent) {
		return nil, nil
	}
	for _, j := range d.jobs {
		if j.Status == model.JOB_STATUS_QUEUED {
			now := time.Now()
			j.Status = model.JOB_STATUS_PROCESSING
			j.StartedAt = &now
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *memoryJobDAO) QueuePosition(ctx context.Context, job *model.AnalysisJob) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	position := 1
	for _, j := range d.jobs {
		if j.ID == job.ID {
			break
		}
		if j.Status == model.JOB_STATUS_QUEUED {
			position++
		}
	}
	return position, nil
}

func (d *memoryJobDAO) CountByStatus(ctx context.Context, status string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.countLocked(status), nil
}

func (d *memoryJobDAO) MarkComplete(ctx context.Context, id string, report datatypes.JSON) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, j := range d.jobs {
		if j.ID == id && j.Status == model.JOB_STATUS_PROCESSING {
			now := time.Now()
			j.Status = model.JOB_STATUS_COMPLETE
			j.Result = report
			j.CompletedAt = &now
			return nil
		}
	}
	return nil
}

func (d *memoryJobDAO) MarkFailed(ctx context.Context, id string, errMsg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, j := range d.jobs {
		if j.ID == id && j.Status == model.JOB_STATUS_PROCESSING {
			now := time.Now()
			j.Status = model.JOB_STATUS_FAILED
			j.Error = errMsg
			j.CompletedAt = &now
			return nil
		}
	}
	return nil
}

func (d *memoryJobDAO) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var reclaimed int64
	for _, j := range d.jobs {
		if j.Status == model.JOB_STATUS_PROCESSING && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			now := time.Now()
			j.Status = model.JOB_STATUS_FAILED
			j.Error = "processing timeout exceeded"
			j.CompletedAt = &now
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (d *memoryJobDAO) findLive(walletAddress string) *model.AnalysisJob {
	for _, j := range d.jobs {
		if j.WalletAddress == walletAddress && j.Live() {
			return j
		}
	}
	return nil
}

func (d *memoryJobDAO) countLocked(status string) int64 {
	var n int64
	for _, j := range d.jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

// seed 直接塞入一个指定状态的作业，绕过准入序列
func (d *memoryJobDAO) seed(job *model.AnalysisJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

type memoryResultDAO struct {
	mu      sync.Mutex
	results map[string]*model.WalletAnalysisResult
	upserts int
}

func newMemoryResultDAO() *memoryResultDAO {
	return &memoryResultDAO{results: make(map[string]*model.WalletAnalysisResult)}
}

func (d *memoryResultDAO) GetFresh(ctx context.Context, walletAddress string) (*model.WalletAnalysisResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.results[walletAddress]
	if !ok || !res.Fresh(time.Now()) {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (d *memoryResultDAO) Upsert(ctx context.Context, result *model.WalletAnalysisResult) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *result
	d.results[result.WalletAddress] = &cp
	d.upserts++
	return nil
}

func (d *memoryResultDAO) DeleteExpired(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var deleted int64
	now := time.Now()
	for addr, res := range d.results {
		if !res.Fresh(now) {
			delete(d.results, addr)
			deleted++
		}
	}
	return deleted, nil
}

// gatedLedger 空历史账本，可选地在release关闭前挂起请求，用于把作业钉在processing状态
type gatedLedger struct {
	release chan struct{}
}

func (f *gatedLedger) AddressTransactions(ctx context.Context, address, before string, limit int) ([]ledger.EnhancedTransaction, ledger.FetchOutcome) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ledger.FetchOutcome{Status: ledger.FetchFailed, Err: ctx.Err()}
		}
	}
	return nil, ledger.FetchOutcome{Status: ledger.FetchOK}
}

func testAnalyzerConfig() config.AnalyzerConfig {
	return config.AnalyzerConfig{
		MaxConcurrent:       5,
		CooldownMinutes:     0,
		CacheTTLHours:       48,
		MaterialityUSD:      100,
		DefaultLookbackDays: 90,
		MaxPipelineMinutes:  10,
	}
}

// unreachableRedis 进度写入目标，测试里写失败被忽略
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
		MaxRetries:   -1,
	})
}

func newTestAdmission(cfg config.AnalyzerConfig, jobDAO *memoryJobDAO, resultDAO *memoryResultDAO, api analyzer.LedgerAPI) *Admission {
	logger := zap.NewNop()
	resolver := marketdata.NewResolverWithFetcher(logger, func(ctx context.Context, mints []string) (map[string]marketdata.TokenMarketData, error) {
		out := make(map[string]marketdata.TokenMarketData, len(mints))
		for _, mint := range mints {
			out[mint] = marketdata.TokenMarketData{Mint: mint, Symbol: "SOL", PriceUSD: 150}
		}
		return out, nil
	})
	extractor := analyzer.NewSwapExtractor(api, logger)
	rds := unreachableRedis()
	runner := NewRunner(cfg, logger, jobDAO, resultDAO, rds, extractor, resolver)
	return NewAdmission(cfg, logger, jobDAO, resultDAO, rds, runner)
}
