package hardware

import (
	"strconv"
	"strings"
	"sync"
)

// InventoryResult 库存测量结果
type InventoryResult string

const (
	InventoryHI      InventoryResult = "HI"      // 元件充足
	InventoryLO      InventoryResult = "LO"      // 料仓空置或偏低
	InventoryUnknown InventoryResult = "UNKNOWN" // 未观测到测量结果
)

// DeviceState 设备状态，由协议解码器根据ESP32的状态行逐条更新
type DeviceState struct {
	Homed               bool             `json:"homed"`
	CurrentBin          *int             `json:"current_bin"`
	GateBlocked         bool             `json:"gate_blocked"`
	InventoryPending    bool             `json:"inventory_pending"`
	LastInventoryResult *InventoryResult `json:"last_inventory_result"`
	LastDistanceCM      *string          `json:"last_distance_cm"`
}

// Apply 用一条已去除首尾空白的状态行推进设备状态
// 纯函数：不修改入参，返回新状态；匹配不到任何谓词的行不改变状态
// 数字载荷解析失败时对应字段保持不变，绝不panic
func Apply(state DeviceState, line string) DeviceState {
	next := state

	// 回零完成，料盘停在0号仓
	if strings.Contains(line, "Homing complete") {
		next.Homed = true
		bin := 0
		next.CurrentBin = &bin
	}

	// 移动完成后的当前料仓（从"BIN"后的数字解析，仅接受0-3）
	if strings.Contains(line, "Now at BIN") {
		parts := strings.Split(line, "BIN")
		if n, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1])); err == nil && n >= 0 && n <= 3 {
			next.CurrentBin = &n
		}
	}

	// 闸门状态
	if strings.Contains(line, "GATE: BLOCKED") {
		next.GateBlocked = true
	}
	if strings.Contains(line, "GATE: OPEN") || strings.Contains(line, "GATE: Ready") {
		next.GateBlocked = false
	}
	if strings.Contains(line, "GATE: Ready") {
		next.InventoryPending = true
	}

	// 库存测量结果（必须整行精确匹配）
	switch line {
	case "HI":
		r := InventoryHI
		next.LastInventoryResult = &r
		next.InventoryPending = false
	case "LO":
		r := InventoryLO
		next.LastInventoryResult = &r
		next.InventoryPending = false
	}

	// 距离读数，形如 "(Distance(cm) = 12.3)"
	if strings.HasPrefix(line, "(Distance(cm)") {
		if idx := strings.LastIndex(line, "="); idx >= 0 {
			val := strings.TrimSpace(strings.Trim(line[idx+1:], "()"))
			if val != "" {
				next.LastDistanceCM = &val
			}
		}
	}

	// 设备提示需要库存测量
	if strings.Contains(line, "Press 'i' to perform inventory") {
		next.InventoryPending = true
	}

	return next
}

// SummarizeInventory 从一段观测到的行中归纳最终的库存结果和距离
// 多次出现时取最后一次；没有观测到则为 UNKNOWN / "N/A"
func SummarizeInventory(lines []string) (InventoryResult, string) {
	result := InventoryUnknown
	distance := "N/A"

	for _, line := range lines {
		switch line {
		case "HI":
			result = InventoryHI
		case "LO":
			result = InventoryLO
		}
		if strings.HasPrefix(line, "(Distance(cm)") {
			if idx := strings.LastIndex(line, "="); idx >= 0 {
				if val := strings.TrimSpace(strings.Trim(line[idx+1:], "()")); val != "" {
					distance = val
				}
			}
		}
	}

	return result, distance
}

// StateTracker 设备状态的并发访问封装
// 单写者（当前持有串口的上下文通过Feed写入）、多读者（快照读取）
type StateTracker struct {
	mu    sync.RWMutex
	state DeviceState
}

// NewStateTracker 创建状态跟踪器
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// Feed 喂入一条收到的状态行
func (t *StateTracker) Feed(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Apply(t.state, line)
}

// Snapshot 返回状态的一致性副本，指针字段深拷贝
func (t *StateTracker) Snapshot() DeviceState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := t.state
	if t.state.CurrentBin != nil {
		bin := *t.state.CurrentBin
		snap.CurrentBin = &bin
	}
	if t.state.LastInventoryResult != nil {
		r := *t.state.LastInventoryResult
		snap.LastInventoryResult = &r
	}
	if t.state.LastDistanceCM != nil {
		d := *t.state.LastDistanceCM
		snap.LastDistanceCM = &d
	}

	return snap
}
