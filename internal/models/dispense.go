package models

import (
	"time"

	"gorm.io/gorm"
)

// DispenseStatus 出料状态
type DispenseStatus string

const (
	DispenseStatusSuccess DispenseStatus = "SUCCESS" // 出料成功（库存测量可能仍在进行）
	DispenseStatusFailed  DispenseStatus = "FAILED"  // 出料失败
)

// DispenseRecord 出料记录
type DispenseRecord struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 会话信息
	SessionID string `gorm:"type:varchar(64);index;not null" json:"session_id"` // 出料会话ID (UUID)

	// 元件信息
	ComponentKey  string `gorm:"type:varchar(64);index;not null" json:"component_key"` // 元件键 (如 "1kohm")
	ComponentName string `gorm:"type:varchar(128)" json:"component_name"`              // 显示名称 (如 "1kΩ Resistor")
	Bin           int    `gorm:"index;not null" json:"bin"`                            // 料仓编号 (0-3)

	// 结果信息
	Status      DispenseStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Message     string         `gorm:"type:text" json:"message,omitempty"`
	FailureCode int            `gorm:"default:0" json:"failure_code,omitempty"` // 失败时的错误码

	// 库存测量结果（后台任务完成后回填）
	InventoryResult string `gorm:"type:varchar(16);default:UNKNOWN" json:"inventory_result"` // HI/LO/UNKNOWN
	DistanceCM      string `gorm:"type:varchar(32);default:N/A" json:"distance_cm"`

	// 性能指标
	Duration  int64 `gorm:"default:0" json:"duration,omitempty"` // 前台流程时长（毫秒）
	Timestamp int64 `gorm:"index" json:"timestamp"`              // Unix时间戳（毫秒）
}

// TableName 指定表名
func (DispenseRecord) TableName() string {
	return "dispense_records"
}

// BeforeCreate 创建前的钩子
func (d *DispenseRecord) BeforeCreate(tx *gorm.DB) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.Timestamp == 0 {
		d.Timestamp = time.Now().UnixMilli()
	}
	return nil
}

// DispenseQuery 查询参数
type DispenseQuery struct {
	SessionID    string         `json:"session_id,omitempty"`
	ComponentKey string         `json:"component_key,omitempty"`
	Bin          *int           `json:"bin,omitempty"`
	Status       DispenseStatus `json:"status,omitempty"`
	StartTime    *time.Time     `json:"start_time,omitempty"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
	OrderBy      string         `json:"order_by,omitempty"`
}

// DispenseStats 统计信息
type DispenseStats struct {
	TotalCount   int64   `json:"total_count"`
	TotalSuccess int64   `json:"total_success"`
	TotalFailed  int64   `json:"total_failed"`
	AvgDuration  float64 `json:"avg_duration"`
	MaxDuration  int64   `json:"max_duration"`
}
