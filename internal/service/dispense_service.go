package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/carousel-dispenser/internal/config"
	"github.com/wfunc/carousel-dispenser/internal/errors"
	"github.com/wfunc/carousel-dispenser/internal/hardware"
	"github.com/wfunc/carousel-dispenser/internal/inventory"
	"github.com/wfunc/carousel-dispenser/internal/models"
	"github.com/wfunc/carousel-dispenser/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DispenseService 出料业务服务
// 负责元件到料仓的解析、缺货检查、流程编排调用和记录落库
type DispenseService struct {
	orch      *hardware.Orchestrator
	repo      *repository.DispenseRepository
	invLogger *inventory.Logger
	serialLog *SerialLogService
	binsCfg   *config.BinsConfig
	logger    *zap.Logger

	mu            sync.Mutex
	activeSession string
	onTraffic     func(direction, line string)
}

// NewDispenseService 创建出料服务
// 编排器在内部构建：本服务同时充当库存落盘接口和串口流量记录器
func NewDispenseService(
	conn *hardware.Conn,
	tracker *hardware.StateTracker,
	cfg *config.Config,
	db *gorm.DB,
	invLogger *inventory.Logger,
	serialLog *SerialLogService,
	log *zap.Logger,
) *DispenseService {
	s := &DispenseService{
		repo:      repository.NewDispenseRepository(db),
		invLogger: invLogger,
		serialLog: serialLog,
		binsCfg:   &cfg.Bins,
		logger:    log,
	}
	conn.SetRecorder(s)
	s.orch = hardware.NewOrchestrator(conn, tracker, &cfg.Serial, &cfg.Dispense, s, log)
	return s
}

// Orchestrator 暴露底层编排器（状态回调注册、优雅关闭用）
func (s *DispenseService) Orchestrator() *hardware.Orchestrator {
	return s.orch
}

// OnTraffic 注册串口流量观察回调（启动前调用，不加锁）
func (s *DispenseService) OnTraffic(fn func(direction, line string)) {
	s.onTraffic = fn
}

// ResolveComponent 元件键到料仓编号的固定映射查询
func (s *DispenseService) ResolveComponent(key string) (int, string, error) {
	bin, ok := s.binsCfg.Components[key]
	if !ok {
		return 0, "", errors.Newf(errors.ErrUnmappedComponent, "未知的元件: %s", key)
	}
	name := s.binsCfg.Display[key]
	if name == "" {
		name = key
	}
	return bin, name, nil
}

// Components 返回全部元件映射（键→料仓）
func (s *DispenseService) Components() map[string]int {
	out := make(map[string]int, len(s.binsCfg.Components))
	for k, v := range s.binsCfg.Components {
		out[k] = v
	}
	return out
}

// RequestComponent 按元件键执行一次完整出料
// 最近一次库存结果为LO的料仓在补货产生新记录前拒绝出料
func (s *DispenseService) RequestComponent(key string) (*models.DispenseRecord, error) {
	bin, name, err := s.ResolveComponent(key)
	if err != nil {
		return nil, err
	}

	// 缺货检查：没有记录视为可出料
	last, err := s.invLogger.GetLastResult(bin)
	if err == nil && last == string(hardware.InventoryLO) {
		return nil, errors.Newf(errors.ErrOutOfStock, "料仓%d（%s）缺货，请补货后重试", bin, name)
	}
	if err != nil && errors.GetCode(err) != errors.ErrNoInventoryRecord {
		return nil, err
	}

	sessionID := uuid.New().String()
	s.mu.Lock()
	prev := s.activeSession
	s.activeSession = sessionID
	s.mu.Unlock()

	s.logger.Info("开始出料",
		zap.String("session_id", sessionID),
		zap.String("component", key),
		zap.Int("bin", bin))

	start := time.Now()
	result, dispErr := s.orch.Dispense(sessionID, bin)

	// 忙碌拒绝时设备未收到任何字节，串口日志仍归属上一个会话
	if errors.GetCode(dispErr) == errors.ErrDispenseBusy {
		s.mu.Lock()
		s.activeSession = prev
		s.mu.Unlock()
	}

	record := &models.DispenseRecord{
		SessionID:       sessionID,
		ComponentKey:    key,
		ComponentName:   name,
		Bin:             bin,
		InventoryResult: string(hardware.InventoryUnknown),
		DistanceCM:      "N/A",
		Duration:        time.Since(start).Milliseconds(),
	}

	if dispErr != nil {
		record.Status = models.DispenseStatusFailed
		record.Message = dispErr.Error()
		record.FailureCode = int(errors.GetCode(dispErr))
	} else {
		record.Status = models.DispenseStatusSuccess
		record.Message = result.Message
	}

	if err := s.repo.Create(record); err != nil {
		s.logger.Error("出料记录落库失败", zap.Error(err))
	}

	if dispErr != nil {
		return record, dispErr
	}
	return record, nil
}

// Append 实现编排器的库存落盘接口：写CSV并回填数据库记录
// 回填使用编排器透传的会话标识，不依赖可变的当前会话字段
func (s *DispenseService) Append(session, result, distanceCM string, bin int) error {
	if err := s.invLogger.Append(result, distanceCM, bin); err != nil {
		return err
	}

	if session != "" {
		if err := s.repo.UpdateInventoryResult(session, result, distanceCM); err != nil {
			s.logger.Error("回填库存结果失败",
				zap.String("session_id", session),
				zap.Error(err))
		}
	}
	return nil
}

// Sent 实现串口流量记录接口（主机→设备）
func (s *DispenseService) Sent(line string) {
	if s.onTraffic != nil {
		s.onTraffic(string(models.SerialLogDirectionSend), line)
	}
	if s.serialLog == nil {
		return
	}
	s.mu.Lock()
	session := s.activeSession
	s.mu.Unlock()
	s.serialLog.LogSend(line, session)
}

// Received 实现串口流量记录接口（设备→主机）
func (s *DispenseService) Received(line string) {
	if s.onTraffic != nil {
		s.onTraffic(string(models.SerialLogDirectionReceive), line)
	}
	if s.serialLog == nil {
		return
	}
	s.mu.Lock()
	session := s.activeSession
	s.mu.Unlock()
	s.serialLog.LogReceive(line, session)
}

// Status 设备与流程状态
type Status struct {
	State   hardware.State       `json:"state"`
	Homed   bool                 `json:"homed"`
	Device  hardware.DeviceState `json:"device"`
	Updated time.Time            `json:"updated"`
}

// GetStatus 当前设备与流程状态快照
func (s *DispenseService) GetStatus() *Status {
	return &Status{
		State:   s.orch.CurrentState(),
		Homed:   s.orch.Homed(),
		Device:  s.orch.Snapshot(),
		Updated: time.Now(),
	}
}

// Home 手动触发回零（会话内幂等）
func (s *DispenseService) Home() error {
	return s.orch.Home()
}

// EStop 急停，任何状态下无条件接受
func (s *DispenseService) EStop() error {
	return s.orch.EStop()
}

// BinInventory 单个料仓的最近库存状态
type BinInventory struct {
	Bin        int    `json:"bin"`
	Component  string `json:"component"`
	LastResult string `json:"last_result"` // HI/LO/UNKNOWN 或 NO_RECORD
}

// LatestInventory 每个料仓的最近库存结果
func (s *DispenseService) LatestInventory() ([]BinInventory, error) {
	byBin := make(map[int]string, len(s.binsCfg.Components))
	for key, bin := range s.binsCfg.Components {
		byBin[bin] = key
	}

	out := make([]BinInventory, 0, len(byBin))
	for bin := 0; bin <= 3; bin++ {
		key, ok := byBin[bin]
		if !ok {
			continue
		}
		entry := BinInventory{Bin: bin, Component: key}
		result, err := s.invLogger.GetLastResult(bin)
		switch {
		case err == nil:
			entry.LastResult = result
		case errors.GetCode(err) == errors.ErrNoInventoryRecord:
			entry.LastResult = "NO_RECORD"
		default:
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Query 查询历史出料记录
func (s *DispenseService) Query(query *models.DispenseQuery) ([]*models.DispenseRecord, int64, error) {
	return s.repo.Query(query)
}

// GetStats 出料统计
func (s *DispenseService) GetStats(startTime, endTime *time.Time) (*models.DispenseStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// Close 等待后台任务结束并关闭串口
func (s *DispenseService) Close() error {
	return s.orch.Close()
}
