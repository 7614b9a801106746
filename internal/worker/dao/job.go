package dao

import (
	"context"
	"time"

	"paperhands/internal/worker/model"

	"gorm.io/datatypes"
)

// JobDAO 分析作业数据访问接口
// 名额守恒（processing数量不超过上限）只能由这里的事务性claim保证
type JobDAO interface {
	// GetByID 按作业ID查询
	GetByID(ctx context.Context, id string) (*model.AnalysisJob, error)

	// GetLiveByAddress 查询地址当前存活（queued/processing）的作业
	GetLiveByAddress(ctx context.Context, walletAddress string) (*model.AnalysisJob, error)

	// LastCompletedAt 地址最近一次complete作业的完成时间，没有则返回零值
	LastCompletedAt(ctx context.Context, walletAddress string) (time.Time, error)

	// EnqueueAndClaim 准入临界区：去重复查、插入、容量检查、抢占名额，单事务内完成
	// 返回对外生效的作业（可能是已存在的存活作业）与本次是否抢到processing名额
	EnqueueAndClaim(ctx context.Context, job *model.AnalysisJob, maxConcurrent int) (*model.AnalysisJob, bool, error)

	// ClaimOldestQueued 容量允许时把最老的queued作业转为processing，无可领取返回nil
	ClaimOldestQueued(ctx context.Context, maxConcurrent int) (*model.AnalysisJob, error)

	// QueuePosition 排队位置：比它早创建的queued作业数+1
	QueuePosition(ctx context.Context, job *model.AnalysisJob) (int, error)

	// CountByStatus 按状态统计作业数
	CountByStatus(ctx context.Context, status string) (int64, error)

	// MarkComplete 写入结果并置为complete终态
	MarkComplete(ctx context.Context, id string, report datatypes.JSON) error

	// MarkFailed 记录错误并置为failed终态
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// ReclaimStale 把processing超时的作业判为failed，返回处理条数
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
