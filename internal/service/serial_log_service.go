package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/carousel-dispenser/internal/logger"
	"github.com/wfunc/carousel-dispenser/internal/models"
	"github.com/wfunc/carousel-dispenser/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SerialLogService 串口日志服务
// 写入走内存缓冲异步落库，避免阻塞串口读写路径
type SerialLogService struct {
	repo     *repository.SerialLogRepository
	logger   *zap.Logger
	mu       sync.Mutex
	buffer   []*models.SerialLog
	bufferCh chan *models.SerialLog
	stopCh   chan struct{}
}

// NewSerialLogService 创建串口日志服务
func NewSerialLogService(db *gorm.DB) *SerialLogService {
	service := &SerialLogService{
		repo:     repository.NewSerialLogRepository(db),
		logger:   logger.GetLogger(),
		buffer:   make([]*models.SerialLog, 0, 100),
		bufferCh: make(chan *models.SerialLog, 1000),
		stopCh:   make(chan struct{}),
	}

	// 启动后台写入协程
	go service.backgroundWriter()

	return service
}

// backgroundWriter 后台写入协程
func (s *SerialLogService) backgroundWriter() {
	ticker := time.NewTicker(5 * time.Second) // 每5秒批量写入一次
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.mu.Lock()
			s.buffer = append(s.buffer, log)
			// 如果缓冲区满了，立即写入
			if len(s.buffer) >= 100 {
				s.flushBuffer()
			}
			s.mu.Unlock()

		case <-ticker.C:
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()

		case <-s.stopCh:
			// 退出前写入剩余的日志
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库
func (s *SerialLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.repo.CreateBatch(s.buffer); err != nil {
		s.logger.Error("批量写入串口日志失败", zap.Error(err))
	} else {
		s.logger.Debug("批量写入串口日志成功", zap.Int("count", len(s.buffer)))
	}

	// 清空缓冲区
	s.buffer = s.buffer[:0]
}

// enqueue 异步写入单条日志，缓冲区满时丢弃
func (s *SerialLogService) enqueue(log *models.SerialLog) {
	select {
	case s.bufferCh <- log:
	default:
		s.logger.Warn("串口日志缓冲区满，丢弃日志")
	}
}

// LogSend 记录发往设备的命令
func (s *SerialLogService) LogSend(command string, sessionID string) {
	s.enqueue(&models.SerialLog{
		Direction:  models.SerialLogDirectionSend,
		Level:      models.SerialLogLevelInfo,
		Command:    command,
		BytesCount: len(command) + 1, // 含换行符
		SessionID:  sessionID,
		CreatedAt:  time.Now(),
		Timestamp:  time.Now().UnixMilli(),
	})
}

// LogReceive 记录收到的设备状态行
func (s *SerialLogService) LogReceive(line string, sessionID string) {
	s.enqueue(&models.SerialLog{
		Direction:  models.SerialLogDirectionReceive,
		Level:      models.SerialLogLevelInfo,
		Line:       line,
		BytesCount: len(line),
		SessionID:  sessionID,
		CreatedAt:  time.Now(),
		Timestamp:  time.Now().UnixMilli(),
	})
}

// LogError 记录串口错误
func (s *SerialLogService) LogError(direction models.SerialLogDirection, errorMsg string, sessionID string) {
	s.enqueue(&models.SerialLog{
		Direction: direction,
		Level:     models.SerialLogLevelError,
		ErrorMsg:  errorMsg,
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// Query 查询日志
func (s *SerialLogService) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *SerialLogService) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatestLogs 获取最新的日志
func (s *SerialLogService) GetLatestLogs(limit int, direction models.SerialLogDirection) ([]*models.SerialLog, error) {
	return s.repo.GetLatest(limit, direction)
}

// GetErrorLogs 获取错误日志
func (s *SerialLogService) GetErrorLogs(limit int) ([]*models.SerialLog, error) {
	return s.repo.GetErrorLogs(limit)
}

// CleanupOldLogs 清理旧日志
func (s *SerialLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	return s.repo.CleanupLogs(retentionDays)
}

// ExportLogs 导出日志为JSON格式
func (s *SerialLogService) ExportLogs(query *models.SerialLogQuery) ([]byte, error) {
	logs, _, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(logs, "", "  ")
}

// Close 关闭服务
func (s *SerialLogService) Close() {
	close(s.stopCh)
	// 等待一段时间确保数据写入完成
	time.Sleep(1 * time.Second)
}
