package hardware

import (
	"fmt"

	"github.com/wfunc/carousel-dispenser/internal/errors"
	"go.uber.org/zap"
)

// ESP32固件在高波特率下偶尔丢首字符，命令重复发送以保证至少一条完整到达
// 固件端对重复命令做幂等处理
const commandRepeat = 20

// Command 发往ESP32的命令行（不含换行符）
type Command string

const (
	CmdHome      Command = "h" // 回零
	CmdInventory Command = "i" // 库存测量
	CmdEStop     Command = "e" // 急停
)

// MoveToBin 构造移动到指定料仓的命令
func MoveToBin(bin int) (Command, error) {
	if bin < 0 || bin > 3 {
		return "", errors.Newf(errors.ErrInvalidBin, "料仓编号%d超出范围[0,3]", bin)
	}
	return Command(fmt.Sprintf("bin%d", bin)), nil
}

// CommandSender 命令发送器，持有串口连接的引用
type CommandSender struct {
	conn   *Conn
	repeat int
	logger *zap.Logger
}

// NewCommandSender 创建命令发送器，repeat<=0时使用默认重复次数
func NewCommandSender(conn *Conn, repeat int, logger *zap.Logger) *CommandSender {
	if repeat <= 0 {
		repeat = commandRepeat
	}
	return &CommandSender{conn: conn, repeat: repeat, logger: logger}
}

// Send 发送普通命令，连续重复写repeat次，无间隔
func (s *CommandSender) Send(cmd Command) error {
	if s.logger != nil {
		s.logger.Debug("发送串口命令",
			zap.String("command", string(cmd)),
			zap.Int("repeat", s.repeat))
	}
	for i := 0; i < s.repeat; i++ {
		if err := s.conn.WriteLine(string(cmd)); err != nil {
			return err
		}
	}
	return nil
}

// SendEStop 发送急停命令
// 急停只写一次：固件收到即立刻停机，重复发送反而延迟后续恢复命令的处理
func (s *CommandSender) SendEStop() error {
	if s.logger != nil {
		s.logger.Warn("发送急停命令")
	}
	return s.conn.WriteLine(string(CmdEStop))
}
