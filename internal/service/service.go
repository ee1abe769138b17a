package service

import (
	"github.com/wfunc/carousel-dispenser/internal/config"
	"github.com/wfunc/carousel-dispenser/internal/hardware"
	"github.com/wfunc/carousel-dispenser/internal/inventory"
	"github.com/wfunc/carousel-dispenser/internal/vision"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Auth      *AuthService
	Dispense  *DispenseService
	SerialLog *SerialLogService
	Vision    *vision.Detector
}

// NewServices 创建服务集合
func NewServices(
	conn *hardware.Conn,
	tracker *hardware.StateTracker,
	cfg *config.Config,
	db *gorm.DB,
	log *zap.Logger,
) (*Services, error) {
	invLogger, err := inventory.NewLogger(cfg.Inventory.CSVPath)
	if err != nil {
		return nil, err
	}

	serialLog := NewSerialLogService(db)
	dispense := NewDispenseService(conn, tracker, cfg, db, invLogger, serialLog, log)

	return &Services{
		Auth:      NewAuthService(&cfg.Security, log),
		Dispense:  dispense,
		SerialLog: serialLog,
		Vision:    vision.NewDetector(&cfg.Vision, log),
	}, nil
}

// Close 关闭所有服务
func (s *Services) Close() {
	if s.Dispense != nil {
		if err := s.Dispense.Close(); err != nil {
			zap.L().Warn("关闭出料服务失败", zap.Error(err))
		}
	}
	if s.SerialLog != nil {
		s.SerialLog.Close()
	}
}
