package dao

import (
	"context"

	"paperhands/internal/worker/model"
)

// AnalysisResultDAO 分析结果缓存数据访问接口
type AnalysisResultDAO interface {
	// GetFresh 查询地址未过期的结果，过期或不存在均返回nil
	GetFresh(ctx context.Context, walletAddress string) (*model.WalletAnalysisResult, error)

	// Upsert 按地址覆盖写入最新结果
	Upsert(ctx context.Context, result *model.WalletAnalysisResult) error

	// DeleteExpired 删除已过期的结果行，返回删除条数
	DeleteExpired(ctx context.Context) (int64, error)
}
