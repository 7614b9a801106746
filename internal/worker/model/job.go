package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	JOB_STATUS_QUEUED     = "queued"
	JOB_STATUS_PROCESSING = "processing"
	JOB_STATUS_COMPLETE   = "complete"
	JOB_STATUS_FAILED     = "failed"
)

// AnalysisJob 分析作业，状态机 queued -> processing -> complete | failed
// 仅队列层拥有写权限，Runner只允许推进自己持有的processing作业
type AnalysisJob struct {
	ID            string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	WalletAddress string         `gorm:"column:wallet_address;type:varchar(64);not null;index" json:"wallet_address"`
	LookbackDays  int            `gorm:"column:lookback_days;not null;default:90" json:"lookback_days"`
	Status        string         `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	Error         string         `gorm:"column:error;type:text" json:"error,omitempty"`
	Result        datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	StartedAt     *time.Time     `gorm:"column:started_at;type:timestamptz" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `gorm:"column:completed_at;type:timestamptz" json:"completed_at,omitempty"`
}

func (j *AnalysisJob) TableName() string {
	return "paperhands_v1.t_analysis_job"
}

// Live 是否仍占用队列（未到终态）
func (j *AnalysisJob) Live() bool {
	return j.Status == JOB_STATUS_QUEUED || j.Status == JOB_STATUS_PROCESSING
}
