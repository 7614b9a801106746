package model

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// WalletAnalysisResult 最近一次成功分析的落库结果，按地址upsert
// 过期后视为不存在（由定时任务清理，读路径不依赖清理）
type WalletAnalysisResult struct {
	ID             int64          `gorm:"primaryKey" json:"id"`
	WalletAddress  string         `gorm:"column:wallet_address;type:varchar(64);not null;uniqueIndex" json:"wallet_address"`
	TotalRegretUSD float64        `gorm:"column:total_regret_usd;type:decimal(20,4);not null;default:0" json:"total_regret_usd"`
	TotalEvents    int            `gorm:"column:total_events;not null;default:0" json:"total_events"`
	DistinctTokens int            `gorm:"column:distinct_tokens;not null;default:0" json:"distinct_tokens"`
	WinRate        float64        `gorm:"column:win_rate;type:decimal(5,4);not null;default:0" json:"win_rate"`
	AvgHoldDays    int            `gorm:"column:avg_hold_days;not null;default:0" json:"avg_hold_days"`
	Tags           pq.StringArray `gorm:"column:tags;type:varchar(50)[]" json:"tags"`
	Report         datatypes.JSON `gorm:"column:report;not null" json:"report"` // 完整AnalysisReport
	DateFromMs     int64          `gorm:"column:date_from_ms;not null;default:0" json:"date_from_ms"`
	DateToMs       int64          `gorm:"column:date_to_ms;not null;default:0" json:"date_to_ms"`
	ComputedAt     time.Time      `gorm:"column:computed_at;type:timestamptz;not null" json:"computed_at"`
	ExpiresAt      time.Time      `gorm:"column:expires_at;type:timestamptz;not null;index" json:"expires_at"`
}

func (r *WalletAnalysisResult) TableName() string {
	return "paperhands_v1.t_wallet_analysis"
}

// Fresh 结果是否仍在有效期内
func (r *WalletAnalysisResult) Fresh(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
