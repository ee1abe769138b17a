package models

import (
	"time"

	"gorm.io/gorm"
)

// SerialLogDirection 串口通信方向
type SerialLogDirection string

const (
	SerialLogDirectionSend    SerialLogDirection = "SEND"    // 主机→设备
	SerialLogDirectionReceive SerialLogDirection = "RECEIVE" // 设备→主机
)

// SerialLogLevel 日志级别
type SerialLogLevel string

const (
	SerialLogLevelInfo  SerialLogLevel = "INFO"
	SerialLogLevelDebug SerialLogLevel = "DEBUG"
	SerialLogLevelWarn  SerialLogLevel = "WARN"
	SerialLogLevelError SerialLogLevel = "ERROR"
)

// SerialLog 串口通信日志
type SerialLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 基础信息
	Direction SerialLogDirection `gorm:"type:varchar(10);index;not null" json:"direction"`
	Level     SerialLogLevel     `gorm:"type:varchar(10);default:INFO" json:"level"`

	// 命令与数据内容
	Command    string `gorm:"type:varchar(32);index" json:"command,omitempty"` // 发送的命令 (如 "h", "bin2")
	Line       string `gorm:"type:text" json:"line,omitempty"`                 // 收到的状态行原文
	BytesCount int    `gorm:"default:0" json:"bytes_count"`

	// 关联信息
	SessionID string `gorm:"type:varchar(64);index" json:"session_id,omitempty"` // 出料会话ID
	Bin       *int   `gorm:"index" json:"bin,omitempty"`                         // 关联的料仓编号

	// 错误信息
	ErrorMsg string `gorm:"type:text" json:"error_msg,omitempty"`

	// 时间
	Timestamp int64 `gorm:"index" json:"timestamp"` // Unix时间戳（毫秒）
}

// TableName 指定表名
func (SerialLog) TableName() string {
	return "serial_logs"
}

// BeforeCreate 创建前的钩子
func (s *SerialLog) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}
	return nil
}

// SerialLogQuery 查询参数
type SerialLogQuery struct {
	Direction SerialLogDirection `json:"direction,omitempty"`
	Level     SerialLogLevel     `json:"level,omitempty"`
	Command   string             `json:"command,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	StartTime *time.Time         `json:"start_time,omitempty"`
	EndTime   *time.Time         `json:"end_time,omitempty"`
	HasError  *bool              `json:"has_error,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
	OrderBy   string             `json:"order_by,omitempty"`
}

// SerialLogStats 统计信息
type SerialLogStats struct {
	TotalCount   int64 `json:"total_count"`
	TotalSend    int64 `json:"total_send"`
	TotalReceive int64 `json:"total_receive"`
	TotalErrors  int64 `json:"total_errors"`
}
