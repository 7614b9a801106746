package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperhands/internal/worker/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// claimLockKey 准入临界区的advisory锁键，所有进程共用同一把事务级锁
// 名额检查+状态翻转必须在持锁事务内完成，否则并发准入会超过上限
const claimLockKey int64 = 0x70617065 // "pape"

type jobDAO struct {
	db *gorm.DB
}

// NewJobDAO 创建JobDAO实例
func NewJobDAO(db *gorm.DB) JobDAO {
	return &jobDAO{db: db}
}

func (d *jobDAO) GetByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (d *jobDAO) GetLiveByAddress(ctx context.Context, walletAddress string) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := d.db.WithContext(ctx).
		Where("wallet_address = ? AND status IN ?", walletAddress, []string{model.JOB_STATUS_QUEUED, model.JOB_STATUS_PROCESSING}).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (d *jobDAO) LastCompletedAt(ctx context.Context, walletAddress string) (time.Time, error) {
	var job model.AnalysisJob
	err := d.db.WithContext(ctx).
		Where("wallet_address = ? AND status = ?", walletAddress, model.JOB_STATUS_COMPLETE).
		Order("completed_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if job.CompletedAt == nil {
		return time.Time{}, nil
	}
	return *job.CompletedAt, nil
}

// EnqueueAndClaim 去重、插入、名额抢占的单事务实现
// advisory锁把所有准入方串行化：两个并发请求不可能同时通过去重或把
// processing数推过上限（对应双请求竞态场景）
func (d *jobDAO) EnqueueAndClaim(ctx context.Context, job *model.AnalysisJob, maxConcurrent int) (*model.AnalysisJob, bool, error) {
	var effective *model.AnalysisJob
	claimed := false

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", claimLockKey).Error; err != nil {
			return fmt.Errorf("acquire claim lock: %w", err)
		}

		// 持锁后复查去重：锁外的初检可能和并发插入交错
		var existing model.AnalysisJob
		err := tx.Where("wallet_address = ? AND status IN ?", job.WalletAddress,
			[]string{model.JOB_STATUS_QUEUED, model.JOB_STATUS_PROCESSING}).
			Order("created_at ASC").
			First(&existing).Error
		if err == nil {
			effective = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(job).Error; err != nil {
			return err
		}
		effective = job

		var processing int64
		if err := tx.Model(&model.AnalysisJob{}).
			Where("status = ?", model.JOB_STATUS_PROCESSING).
			Count(&processing).Error; err != nil {
			return err
		}
		if processing >= int64(maxConcurrent) {
			return nil
		}

		now := time.Now()
		res := tx.Model(&model.AnalysisJob{}).
			Where("id = ? AND status = ?", job.ID, model.JOB_STATUS_QUEUED).
			Updates(map[string]interface{}{"status": model.JOB_STATUS_PROCESSING, "started_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = model.JOB_STATUS_PROCESSING
			job.StartedAt = &now
			claimed = true
		}
		return nil
	})

	if err != nil {
		return nil, false, err
	}
	return effective, claimed, nil
}

func (d *jobDAO) ClaimOldestQueued(ctx context.Context, maxConcurrent int) (*model.AnalysisJob, error) {
	var claimed *model.AnalysisJob

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", claimLockKey).Error; err != nil {
			return fmt.Errorf("acquire claim lock: %w", err)
		}

		var processing int64
		if err := tx.Model(&model.AnalysisJob{}).
			Where("status = ?", model.JOB_STATUS_PROCESSING).
			Count(&processing).Error; err != nil {
			return err
		}
		if processing >= int64(maxConcurrent) {
			return nil
		}

		var job model.AnalysisJob
		err := tx.Where("status = ?", model.JOB_STATUS_QUEUED).
			Order("created_at ASC").
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now()
		res := tx.Model(&model.AnalysisJob{}).
			Where("id = ? AND status = ?", job.ID, model.JOB_STATUS_QUEUED).
			Updates(map[string]interface{}{"status": model.JOB_STATUS_PROCESSING, "started_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = model.JOB_STATUS_PROCESSING
			job.StartedAt = &now
			claimed = &job
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (d *jobDAO) QueuePosition(ctx context.Context, job *model.AnalysisJob) (int, error) {
	var ahead int64
	err := d.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("status = ? AND created_at < ?", model.JOB_STATUS_QUEUED, job.CreatedAt).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

func (d *jobDAO) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (d *jobDAO) MarkComplete(ctx context.Context, id string, report datatypes.JSON) error {
	res := d.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ?", id, model.JOB_STATUS_PROCESSING).
		Updates(map[string]interface{}{
			"status":       model.JOB_STATUS_COMPLETE,
			"result":       report,
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s not in processing state", id)
	}
	return nil
}

func (d *jobDAO) MarkFailed(ctx context.Context, id string, errMsg string) error {
	res := d.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ?", id, model.JOB_STATUS_PROCESSING).
		Updates(map[string]interface{}{
			"status":       model.JOB_STATUS_FAILED,
			"error":        errMsg,
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s not in processing state", id)
	}
	return nil
}

func (d *jobDAO) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := d.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("status = ? AND started_at < ?", model.JOB_STATUS_PROCESSING, cutoff).
		Updates(map[string]interface{}{
			"status":       model.JOB_STATUS_FAILED,
			"error":        "analysis timed out and was reclaimed",
			"completed_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
