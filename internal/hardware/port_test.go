package hardware

import (
	"strings"
	"sync"
)

// fakePort 测试用模拟串口：写入被记录，读取按预置块出队
// script回调允许按收到的命令行自动注入设备回复
type fakePort struct {
	mu     sync.Mutex
	reads  [][]byte
	writes []string
	script func(line string) []byte
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		return 0, nil
	}
	chunk := p.reads[0]
	n := copy(b, chunk)
	if n < len(chunk) {
		p.reads[0] = chunk[n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := strings.TrimSuffix(string(b), "\n")
	p.writes = append(p.writes, line)
	if p.script != nil {
		if reply := p.script(line); len(reply) > 0 {
			// 每行作为独立读取块，模拟设备逐行输出
			for _, ln := range strings.SplitAfter(string(reply), "\n") {
				if ln != "" {
					p.reads = append(p.reads, []byte(ln))
				}
			}
		}
	}
	return len(b), nil
}

func (p *fakePort) Flush() error { return nil }
func (p *fakePort) Close() error { return nil }

func (p *fakePort) enqueue(chunks ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range chunks {
		p.reads = append(p.reads, []byte(c))
	}
}

func (p *fakePort) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.writes))
	copy(out, p.writes)
	return out
}

// replyOnce 构造只对每条命令的第一次出现注入回复的script
// 命令重复发送时设备侧幂等，只回一次
func replyOnce(replies map[string]string) func(string) []byte {
	seen := make(map[string]bool)
	return func(line string) []byte {
		if seen[line] {
			return nil
		}
		seen[line] = true
		if reply, ok := replies[line]; ok {
			return []byte(reply)
		}
		return nil
	}
}
