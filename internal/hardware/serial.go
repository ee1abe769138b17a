package hardware

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/wfunc/carousel-dispenser/internal/config"
	apperrors "github.com/wfunc/carousel-dispenser/internal/errors"
	"github.com/wfunc/carousel-dispenser/internal/logger"
	"go.uber.org/zap"
)

// Conn 串口连接，独占持有已打开的设备句柄
// 同一时刻只允许一个执行上下文持有：前台出料流程或后台库存任务
// 所有权通过 Handoff 显式移交，移交后原引用的读写立即失效
type Conn struct {
	mu       sync.Mutex
	port     Port
	frag     []byte // 跨Poll调用缓存的不完整行尾部
	moved    bool
	closed   bool
	recorder TrafficRecorder
	logger   *zap.Logger
}

// TrafficRecorder 串口收发旁路记录（落库审计用），实现方不得阻塞
type TrafficRecorder interface {
	Sent(line string)
	Received(line string)
}

// Dial 打开串口并丢弃设备启动时残留的输出
func Dial(cfg *config.SerialConfig) (*Conn, error) {
	port, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}

	// ESP32上电会打印启动信息，先清空避免污染后续解析
	_ = port.Flush()

	return NewConn(port), nil
}

// NewConn 基于已打开的端口创建连接（测试注入模拟端口时使用）
func NewConn(port Port) *Conn {
	return &Conn{
		port:   port,
		logger: logger.GetModuleLogger("serial"),
	}
}

// WriteLine 追加换行符后整行写入，保证完整写出或报错
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return err
	}

	data := []byte(text + "\n")
	n, err := c.port.Write(data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrSerialPortWrite)
	}
	if n != len(data) {
		return apperrors.Newf(apperrors.ErrSerialPortWrite, "短写: %d/%d 字节", n, len(data))
	}

	if c.recorder != nil {
		c.recorder.Sent(text)
	}
	c.logger.Debug("串口发送", zap.String("line", text))
	return nil
}

// SetRecorder 设置收发旁路记录器
func (c *Conn) SetRecorder(r TrafficRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// PollLines 非阻塞读取，返回零或多条完整的行（已去除行尾和首尾空白）
// 字节可能跨多次读取到达，不完整的尾部片段缓存到下一次调用
// 非法编码被替换而不是报错
func (c *Conn) PollLines() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return nil, err
	}

	buf := make([]byte, 1024)
	n, err := c.port.Read(buf)
	if err != nil {
		// EOF和读超时是USB-CDC设备的常态，不视为链路故障
		if isBenignReadError(err) {
			return c.splitLines(nil), nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrSerialPortRead)
	}

	return c.splitLines(buf[:n]), nil
}

// splitLines 将新到达的字节并入片段缓存并切分出完整行，调用方需持锁
func (c *Conn) splitLines(data []byte) []string {
	c.frag = append(c.frag, data...)

	var lines []string
	for {
		idx := bytes.IndexByte(c.frag, '\n')
		if idx == -1 {
			break
		}

		raw := c.frag[:idx]
		c.frag = c.frag[idx+1:]

		line := strings.TrimSpace(sanitize(raw))
		if line != "" {
			if c.recorder != nil {
				c.recorder.Received(line)
			}
			c.logger.Debug("串口接收", zap.String("line", line))
			lines = append(lines, line)
		}
	}

	return lines
}

// Handoff 将连接所有权移交给新的执行上下文
// 返回供新持有者使用的连接，原引用随即失效；重复移交报 ErrConnMoved
func (c *Conn) Handoff() (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.moved {
		return nil, apperrors.New(apperrors.ErrConnMoved)
	}
	if c.closed {
		return nil, apperrors.New(apperrors.ErrDeviceOffline, "连接已关闭")
	}

	c.moved = true

	taken := &Conn{
		port:     c.port,
		frag:     c.frag,
		recorder: c.recorder,
		logger:   c.logger,
	}
	c.port = nil
	c.frag = nil

	return taken, nil
}

// Close 关闭串口；已移交的连接由新持有者负责关闭
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.moved || c.port == nil {
		return nil
	}

	c.closed = true
	return c.port.Close()
}

// usable 检查连接是否仍可用，调用方需持锁
func (c *Conn) usable() error {
	if c.moved {
		return apperrors.New(apperrors.ErrConnMoved)
	}
	if c.closed || c.port == nil {
		return apperrors.New(apperrors.ErrDeviceOffline, "连接已关闭")
	}
	return nil
}

// sanitize 替换非法UTF-8序列
func sanitize(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), "�")
}

// isBenignReadError 判断是否为可忽略的读错误
func isBenignReadError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "EOF") || strings.Contains(msg, "timeout")
}
