package repository

import (
	"time"

	"github.com/wfunc/carousel-dispenser/internal/models"
	"gorm.io/gorm"
)

// DispenseRepository 出料记录仓库
type DispenseRepository struct {
	db *gorm.DB
}

// NewDispenseRepository 创建出料记录仓库
func NewDispenseRepository(db *gorm.DB) *DispenseRepository {
	return &DispenseRepository{
		db: db,
	}
}

// Create 创建出料记录
func (r *DispenseRepository) Create(record *models.DispenseRecord) error {
	return r.db.Create(record).Error
}

// GetByID 根据ID获取出料记录
func (r *DispenseRepository) GetByID(id uint) (*models.DispenseRecord, error) {
	var record models.DispenseRecord
	err := r.db.First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetBySessionID 根据会话ID获取出料记录
func (r *DispenseRepository) GetBySessionID(sessionID string) (*models.DispenseRecord, error) {
	var record models.DispenseRecord
	err := r.db.Where("session_id = ?", sessionID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateInventoryResult 回填后台库存测量结果
func (r *DispenseRepository) UpdateInventoryResult(sessionID, result, distanceCM string) error {
	return r.db.Model(&models.DispenseRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"inventory_result": result,
			"distance_cm":      distanceCM,
		}).Error
}

// Query 查询出料记录
func (r *DispenseRepository) Query(query *models.DispenseQuery) ([]*models.DispenseRecord, int64, error) {
	db := r.db.Model(&models.DispenseRecord{})

	// 构建查询条件
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.ComponentKey != "" {
		db = db.Where("component_key = ?", query.ComponentKey)
	}
	if query.Bin != nil {
		db = db.Where("bin = ?", *query.Bin)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 排序
	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	// 分页
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	// 查询数据
	var records []*models.DispenseRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// GetLatestByBin 获取指定料仓最近的出料记录
func (r *DispenseRepository) GetLatestByBin(bin int, limit int) ([]*models.DispenseRecord, error) {
	var records []*models.DispenseRecord
	err := r.db.Where("bin = ?", bin).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// GetStats 获取统计信息
func (r *DispenseRepository) GetStats(startTime, endTime *time.Time) (*models.DispenseStats, error) {
	stats := &models.DispenseStats{}
	db := r.db.Model(&models.DispenseRecord{})

	// 时间范围过滤
	if startTime != nil {
		db = db.Where("created_at >= ?", *startTime)
	}
	if endTime != nil {
		db = db.Where("created_at <= ?", *endTime)
	}

	// 总数统计
	if err := db.Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	// 成功/失败统计
	if err := r.db.Model(&models.DispenseRecord{}).
		Where("status = ?", models.DispenseStatusSuccess).
		Count(&stats.TotalSuccess).Error; err != nil {
		return nil, err
	}
	stats.TotalFailed = stats.TotalCount - stats.TotalSuccess

	// 性能统计
	type DurationStats struct {
		AvgDuration float64
		MaxDuration int64
	}
	var durationStats DurationStats
	if err := r.db.Model(&models.DispenseRecord{}).
		Select("AVG(duration) as avg_duration, MAX(duration) as max_duration").
		Where("duration > 0").
		Scan(&durationStats).Error; err != nil {
		return nil, err
	}
	stats.AvgDuration = durationStats.AvgDuration
	stats.MaxDuration = durationStats.MaxDuration

	return stats, nil
}

// DeleteOldRecords 删除旧记录
func (r *DispenseRepository) DeleteOldRecords(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.DispenseRecord{})
	return result.RowsAffected, result.Error
}
