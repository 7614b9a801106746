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
	"paperhands/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	OUTCOME_CACHED       = "cached"
	OUTCOME_QUEUED       = "queued"
	OUTCOME_PROCESSING   = "processing"
	OUTCOME_RATE_LIMITED = "rate_limited"
)

// EnqueueOutcome 一次准入请求的裁决结果
type EnqueueOutcome struct {
	Status        string                `json:"status"`
	JobID         string                `json:"job_id,omitempty"`
	QueuePosition int                   `json:"queue_position,omitempty"`
	Report        *model.AnalysisReport `json:"result,omitempty"`
	RetryAfterSec int                   `json:"retry_after_seconds,omitempty"`
}

// StatusOutcome 作业轮询结果
type StatusOutcome struct {
	Status        string                  `json:"status"`
	QueuePosition int                     `json:"queue_position,omitempty"`
	Progress      *analyzer.ProgressEvent `json:"progress,omitempty"`
	Report        *model.AnalysisReport   `json:"result,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// QueueMetrics 队列水位
type QueueMetrics struct {
	MaxConcurrent       int   `json:"max_concurrent"`
	CurrentlyProcessing int64 `json:"currently_processing"`
	QueuedCount         int64 `json:"queued_count"`
}

// Admission 准入控制层：缓存命中、去重、冷却期、入队与名额抢占
// 名额守恒交给JobDAO的持锁事务，这里只负责裁决顺序
type Admission struct {
	cfg       config.AnalyzerConfig
	tl        *zap.Logger
	jobDAO    dao.JobDAO
	resultDAO dao.AnalysisResultDAO
	rds       *redis.Client
	runner    *Runner
}

func NewAdmission(cfg config.AnalyzerConfig, tl *zap.Logger, jobDAO dao.JobDAO, resultDAO dao.AnalysisResultDAO, rds *redis.Client, runner *Runner) *Admission {
	a := &Admission{
		cfg:       cfg,
		tl:        tl,
		jobDAO:    jobDAO,
		resultDAO: resultDAO,
		rds:       rds,
		runner:    runner,
	}
	runner.afterTerminal = a.Drain
	return a
}

// Enqueue 准入序列：缓存 -> 去重 -> 冷却 -> 入队+抢名额
func (a *Admission) Enqueue(ctx context.Context, walletAddress string, lookbackDays int) (*EnqueueOutcome, error) {
	// 1. 缓存命中直接返回，唯一完全绕过队列的路径
	if cached, err := a.resultDAO.GetFresh(ctx, walletAddress); err != nil {
		return nil, fmt.Errorf("cache check: %w", err)
	} else if cached != nil {
		report, err := decodeReport(cached.Report)
		if err != nil {
			return nil, err
		}
		return &EnqueueOutcome{Status: OUTCOME_CACHED, Report: report}, nil
	}

	// 2. 去重初检（锁外快速路径，临界区内还会复查）
	if live, err := a.jobDAO.GetLiveByAddress(ctx, walletAddress); err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	} else if live != nil {
		return a.outcomeForLiveJob(ctx, live)
	}

	// 3. 冷却期：刚完成过的地址要求等待
	if remaining, err := a.cooldownRemaining(ctx, walletAddress); err != nil {
		return nil, err
	} else if remaining > 0 {
		return &EnqueueOutcome{
			Status:        OUTCOME_RATE_LIMITED,
			RetryAfterSec: int(remaining.Seconds()) + 1,
		}, nil
	}

	if lookbackDays <= 0 {
		lookbackDays = a.cfg.DefaultLookbackDays
	}

	job := &model.AnalysisJob{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		LookbackDays:  lookbackDays,
		Status:        model.JOB_STATUS_QUEUED,
		CreatedAt:     time.Now(),
	}

	// 4+5. 临界区：插入并尝试抢占processing名额
	effective, claimed, err := a.jobDAO.EnqueueAndClaim(ctx, job, a.cfg.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	a.refreshGauges(ctx)

	// 临界区内发现了并发创建的存活作业，挂到那个作业上
	if effective.ID != job.ID {
		return a.outcomeForLiveJob(ctx, effective)
	}

	if claimed {
		a.runner.Dispatch(effective)
		return &EnqueueOutcome{Status: OUTCOME_PROCESSING, JobID: effective.ID}, nil
	}

	position, err := a.jobDAO.QueuePosition(ctx, effective)
	if err != nil {
		return nil, err
	}
	return &EnqueueOutcome{Status: OUTCOME_QUEUED, JobID: effective.ID, QueuePosition: position}, nil
}

// Status 作业轮询：总是返回一个明确状态
func (a *Admission) Status(ctx context.Context, jobID string) (*StatusOutcome, error) {
	job, err := a.jobDAO.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	out := &StatusOutcome{Status: job.Status}

	switch job.Status {
	case model.JOB_STATUS_QUEUED:
		if position, err := a.jobDAO.QueuePosition(ctx, job); err == nil {
			out.QueuePosition = position
		}
	case model.JOB_STATUS_PROCESSING:
		out.Progress = a.readProgress(ctx, jobID)
	case model.JOB_STATUS_COMPLETE:
		report, err := decodeReport(job.Result)
		if err != nil {
			return nil, err
		}
		out.Report = report
	case model.JOB_STATUS_FAILED:
		out.Error = job.Error
	}

	return out, nil
}

// Metrics 队列水位快照
func (a *Admission) Metrics(ctx context.Context) (*QueueMetrics, error) {
	processing, err := a.jobDAO.CountByStatus(ctx, model.JOB_STATUS_PROCESSING)
	if err != nil {
		return nil, err
	}
	queued, err := a.jobDAO.CountByStatus(ctx, model.JOB_STATUS_QUEUED)
	if err != nil {
		return nil, err
	}
	return &QueueMetrics{
		MaxConcurrent:       a.cfg.MaxConcurrent,
		CurrentlyProcessing: processing,
		QueuedCount:         queued,
	}, nil
}

// Drain 终态或定时触发：容量允许时把排队最久的作业领走
func (a *Admission) Drain(ctx context.Context) error {
	for {
		job, err := a.jobDAO.ClaimOldestQueued(ctx, a.cfg.MaxConcurrent)
		if err != nil {
			return err
		}
		if job == nil {
			a.refreshGauges(ctx)
			return nil
		}
		a.tl.Info("drained queued job",
			zap.String("job_id", job.ID), zap.String("wallet", job.WalletAddress))
		a.runner.Dispatch(job)
	}
}

// ReclaimStale processing超时的作业判为failed（进程崩溃兜底）
func (a *Admission) ReclaimStale(ctx context.Context) error {
	maxDuration := time.Duration(a.cfg.MaxPipelineMinutes) * time.Minute
	reclaimed, err := a.jobDAO.ReclaimStale(ctx, maxDuration)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		a.tl.Warn("reclaimed stale processing jobs", zap.Int64("count", reclaimed))
		return a.Drain(ctx)
	}
	return nil
}

func (a *Admission) outcomeForLiveJob(ctx context.Context, job *model.AnalysisJob) (*EnqueueOutcome, error) {
	if job.Status == model.JOB_STATUS_PROCESSING {
		return &EnqueueOutcome{Status: OUTCOME_PROCESSING, JobID: job.ID}, nil
	}
	position, err := a.jobDAO.QueuePosition(ctx, job)
	if err != nil {
		return nil, err
	}
	return &EnqueueOutcome{Status: OUTCOME_QUEUED, JobID: job.ID, QueuePosition: position}, nil
}

func (a *Admission) cooldownRemaining(ctx context.Context, walletAddress string) (time.Duration, error) {
	if a.cfg.CooldownMinutes <= 0 {
		return 0, nil
	}
	completedAt, err := a.jobDAO.LastCompletedAt(ctx, walletAddress)
	if err != nil {
		return 0, fmt.Errorf("cooldown check: %w", err)
	}
	if completedAt.IsZero() {
		return 0, nil
	}
	cooldown := time.Duration(a.cfg.CooldownMinutes) * time.Minute
	remaining := cooldown - time.Since(completedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (a *Admission) readProgress(ctx context.Context, jobID string) *analyzer.ProgressEvent {
	raw, err := a.rds.Get(ctx, utils.JobProgressKey(jobID)).Result()
	if err != nil {
		return nil
	}
	var event analyzer.ProgressEvent
	if sonic.Unmarshal([]byte(raw), &event) != nil {
		return nil
	}
	return &event
}

func (a *Admission) refreshGauges(ctx context.Context) {
	if processing, err := a.jobDAO.CountByStatus(ctx, model.JOB_STATUS_PROCESSING); err == nil {
		monitor.JobsProcessing.Set(float64(processing))
	}
	if queued, err := a.jobDAO.CountByStatus(ctx, model.JOB_STATUS_QUEUED); err == nil {
		monitor.JobsQueued.Set(float64(queued))
	}
}

func decodeReport(raw datatypes.JSON) (*model.AnalysisReport, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var report model.AnalysisReport
	if err := sonic.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("decode analysis report: %w", err)
	}
	return &report, nil
}
