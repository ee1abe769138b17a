package hardware

import (
	"io"

	"github.com/tarm/serial"
	"github.com/wfunc/carousel-dispenser/internal/config"
	apperrors "github.com/wfunc/carousel-dispenser/internal/errors"
)

// Port 串口底层接口（tarm/serial.Port的最小子集，便于测试注入模拟端口）
type Port interface {
	io.Reader
	io.Writer
	// Flush 丢弃驱动缓冲区中未读取的数据
	Flush() error
	Close() error
}

// OpenPort 按固定帧格式打开串口：8数据位、无校验、1停止位
// 设备不存在、被占用或权限不足时返回 ErrSerialPortOpen
func OpenPort(cfg *config.SerialConfig) (Port, error) {
	serialCfg := &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(serialCfg)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "打开串口 %s 失败", cfg.Port)
	}

	return port, nil
}
