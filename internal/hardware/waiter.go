package hardware

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Waiter 事件等待器：轮询串口直到目标行出现或超时
// 收到的每一行都会喂入状态跟踪器并记入返回的行集合
type Waiter struct {
	conn    *Conn
	tracker *StateTracker
	poll    time.Duration
	logger  *zap.Logger
}

// NewWaiter 创建事件等待器
func NewWaiter(conn *Conn, tracker *StateTracker, poll time.Duration, logger *zap.Logger) *Waiter {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	return &Waiter{conn: conn, tracker: tracker, poll: poll, logger: logger}
}

// WaitFor 等待包含target子串的状态行
// 返回是否命中以及等待期间观测到的全部行（按到达顺序，超时也返回已收到的行）
func (w *Waiter) WaitFor(target string, timeout time.Duration) (bool, []string, error) {
	deadline := time.Now().Add(timeout)
	var seen []string

	for {
		lines, err := w.conn.PollLines()
		if err != nil {
			return false, seen, err
		}

		found := false
		for _, line := range lines {
			w.tracker.Feed(line)
			seen = append(seen, line)
			if w.logger != nil {
				w.logger.Debug("收到串口状态行", zap.String("line", line))
			}
			if strings.Contains(line, target) {
				found = true
			}
		}
		if found {
			return true, seen, nil
		}

		if time.Now().After(deadline) {
			if w.logger != nil {
				w.logger.Warn("等待串口事件超时",
					zap.String("target", target),
					zap.Duration("timeout", timeout),
					zap.Int("lines_seen", len(seen)))
			}
			return false, seen, nil
		}
		time.Sleep(w.poll)
	}
}

// Drain 读空当前接收缓冲并把所有行喂入状态跟踪器
func (w *Waiter) Drain() ([]string, error) {
	lines, err := w.conn.PollLines()
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		w.tracker.Feed(line)
	}
	return lines, nil
}
