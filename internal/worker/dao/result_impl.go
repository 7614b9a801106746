package dao

import (
	"context"
	"errors"
	"time"

	"paperhands/internal/worker/model"
	"paperhands/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const resultCacheTTL = 10 * time.Minute

// analysisResultDAO 实现AnalysisResultDAO接口
type analysisResultDAO struct {
	db         *gorm.DB
	rds        *redis.Client
	localCache *cache.Cache
}

// NewAnalysisResultDAO 创建AnalysisResultDAO实例
func NewAnalysisResultDAO(db *gorm.DB, rds *redis.Client) AnalysisResultDAO {
	localCache := cache.New(resultCacheTTL, time.Minute)
	return &analysisResultDAO{
		db:         db,
		rds:        rds,
		localCache: localCache,
	}
}

// GetFresh 读路径：本地缓存 -> Redis -> Postgres，任何一层命中过期结果都按不存在处理
func (d *analysisResultDAO) GetFresh(ctx context.Context, walletAddress string) (*model.WalletAnalysisResult, error) {
	cacheKey := utils.AnalysisResultKey(walletAddress)
	now := time.Now()

	// 先查本地缓存
	if cached, found := d.localCache.Get(cacheKey); found {
		if result, ok := cached.(*model.WalletAnalysisResult); ok {
			if result == nil || !result.Fresh(now) {
				return nil, nil
			}
			return result, nil
		}
	}

	// 再查Redis缓存
	cached, err := d.rds.Get(ctx, cacheKey).Result()
	if err == nil {
		if cached == "null" {
			return nil, nil
		}

		var result model.WalletAnalysisResult
		if sonic.Unmarshal([]byte(cached), &result) == nil {
			if !result.Fresh(now) {
				return nil, nil
			}
			d.localCache.Set(cacheKey, &result, d.tierTTL(&result, now))
			return &result, nil
		}
	}

	// 查数据库
	var result model.WalletAnalysisResult
	err = d.db.WithContext(ctx).
		Where("wallet_address = ?", walletAddress).
		First(&result).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 缓存空结果，避免缓存穿透
			d.localCache.Set(cacheKey, (*model.WalletAnalysisResult)(nil), 1*time.Minute)
			d.rds.Set(ctx, cacheKey, "null", 1*time.Minute)
			return nil, nil
		}
		return nil, err
	}

	if !result.Fresh(now) {
		return nil, nil
	}

	d.updateCache(ctx, cacheKey, &result, now)
	return &result, nil
}

// Upsert 按地址覆盖写入，并同步刷新两级缓存
func (d *analysisResultDAO) Upsert(ctx context.Context, result *model.WalletAnalysisResult) error {
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "wallet_address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_regret_usd", "total_events", "distinct_tokens", "win_rate",
				"avg_hold_days", "tags", "report", "date_from_ms", "date_to_ms",
				"computed_at", "expires_at",
			}),
		}).
		Create(result).Error
	if err != nil {
		return err
	}

	d.updateCache(ctx, utils.AnalysisResultKey(result.WalletAddress), result, time.Now())
	return nil
}

func (d *analysisResultDAO) DeleteExpired(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.WalletAnalysisResult{})
	return res.RowsAffected, res.Error
}

func (d *analysisResultDAO) updateCache(ctx context.Context, cacheKey string, result *model.WalletAnalysisResult, now time.Time) {
	ttl := d.tierTTL(result, now)
	if ttl <= 0 {
		return
	}
	d.localCache.Set(cacheKey, result, ttl)
	if data, err := sonic.Marshal(result); err == nil {
		d.rds.Set(ctx, cacheKey, string(data), ttl)
	}
}

// tierTTL 缓存层TTL不能越过行本身的过期时间
func (d *analysisResultDAO) tierTTL(result *model.WalletAnalysisResult, now time.Time) time.Duration {
	remaining := result.ExpiresAt.Sub(now)
	if remaining < resultCacheTTL {
		return remaining
	}
	return resultCacheTTL
}
