package hardware

import (
	"fmt"
	"sync"

	"github.com/wfunc/carousel-dispenser/internal/config"
	"github.com/wfunc/carousel-dispenser/internal/errors"
	"go.uber.org/zap"
)

// State 出料流程状态
type State string

const (
	StateIdle             State = "idle"
	StateHoming           State = "homing"
	StateHomed            State = "homed"
	StateMoving           State = "moving"
	StateAtBinWaitingGate State = "at_bin_waiting_gate"
	StateGateReady        State = "gate_ready"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// DispenseResult 出料结果
// 返回给调用方时库存结果总是UNKNOWN：库存测量在后台异步完成，不阻塞调用方
type DispenseResult struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Bin       int             `json:"bin"`
	State     State           `json:"state"`
	Inventory InventoryResult `json:"inventory"`
}

// InventorySink 库存记录落盘接口
// session是发起本次出料的会话标识，随流程透传，保证后台回填不串会话
type InventorySink interface {
	Append(session, result, distanceCM string, bin int) error
}

// Orchestrator 出料流程编排器
// 串口连接同一时刻只属于一个执行上下文：前台流程或后台库存任务
// GateReady时通过Handoff移交给后台任务，任务结束后经returned通道归还
type Orchestrator struct {
	mu      sync.Mutex
	conn    *Conn
	busy    bool
	homed   bool // 会话级回零标志，进程重启前不回退
	state   State
	tracker *StateTracker

	serialCfg   *config.SerialConfig
	dispenseCfg *config.DispenseConfig
	sink        InventorySink
	logger      *zap.Logger

	// 状态迁移回调，用于WebSocket推送等旁路观察者
	onStateChange func(State)

	returned chan *Conn
	bg       sync.WaitGroup
}

// NewOrchestrator 创建出料编排器，接管conn的所有权
func NewOrchestrator(conn *Conn, tracker *StateTracker, serialCfg *config.SerialConfig, dispenseCfg *config.DispenseConfig, sink InventorySink, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		conn:        conn,
		state:       StateIdle,
		tracker:     tracker,
		serialCfg:   serialCfg,
		dispenseCfg: dispenseCfg,
		sink:        sink,
		logger:      logger,
		returned:    make(chan *Conn, 1),
	}
}

// OnStateChange 注册状态迁移回调（启动前调用，不加锁）
func (o *Orchestrator) OnStateChange(fn func(State)) {
	o.onStateChange = fn
}

// CurrentState 当前流程状态
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Homed 会话是否已完成回零
func (o *Orchestrator) Homed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.homed
}

// Snapshot 设备状态快照
func (o *Orchestrator) Snapshot() DeviceState {
	return o.tracker.Snapshot()
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.onStateChange != nil {
		o.onStateChange(s)
	}
}

// acquire 占用前台流程并取得串口连接
func (o *Orchestrator) acquire() (*Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return nil, errors.New(errors.ErrDispenseBusy, "出料流程正在进行中")
	}
	if o.conn == nil {
		// 后台任务尚未归还连接
		select {
		case c := <-o.returned:
			o.conn = c
		default:
			return nil, errors.New(errors.ErrDispenseBusy, "后台库存任务尚未完成")
		}
	}
	o.busy = true
	return o.conn, nil
}

func (o *Orchestrator) releaseForeground() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

// release 后台任务归还连接所有权
func (o *Orchestrator) release(conn *Conn) {
	o.returned <- conn
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

// Home 执行回零，会话内幂等：已回零时不写任何字节直接返回
func (o *Orchestrator) Home() error {
	conn, err := o.acquire()
	if err != nil {
		return err
	}
	defer o.releaseForeground()
	return o.ensureHomed(conn)
}

func (o *Orchestrator) ensureHomed(conn *Conn) error {
	o.mu.Lock()
	homed := o.homed
	o.mu.Unlock()
	if homed {
		return nil
	}

	o.setState(StateHoming)
	sender := NewCommandSender(conn, o.dispenseCfg.CommandRepeat, o.logger)
	waiter := NewWaiter(conn, o.tracker, o.dispenseCfg.PollInterval, o.logger)

	if err := sender.Send(CmdHome); err != nil {
		o.setState(StateFailed)
		return err
	}
	found, _, err := waiter.WaitFor("Homing complete", o.dispenseCfg.HomeTimeout)
	if err != nil {
		o.setState(StateFailed)
		return err
	}
	if !found {
		o.setState(StateFailed)
		return errors.Newf(errors.ErrHomingTimeout, "回零在%s内未完成", o.dispenseCfg.HomeTimeout)
	}

	o.mu.Lock()
	o.homed = true
	o.mu.Unlock()
	o.setState(StateHomed)
	o.logger.Info("回零完成")
	return nil
}

// Dispense 执行一次完整出料：回零（如需）→移动→等待取料→后台库存测量
// GateReady后立即返回，库存测量不阻塞调用方
// session透传给后台任务，库存回填始终绑定发起本次出料的会话
func (o *Orchestrator) Dispense(session string, bin int) (*DispenseResult, error) {
	cmd, err := MoveToBin(bin)
	if err != nil {
		return nil, err
	}

	conn, err := o.acquire()
	if err != nil {
		return nil, err
	}

	// 回零阶段
	if err := o.ensureHomed(conn); err != nil {
		o.releaseForeground()
		return &DispenseResult{
			Success:   false,
			Message:   err.Error(),
			Bin:       bin,
			State:     StateFailed,
			Inventory: InventoryUnknown,
		}, err
	}

	sender := NewCommandSender(conn, o.dispenseCfg.CommandRepeat, o.logger)
	waiter := NewWaiter(conn, o.tracker, o.dispenseCfg.PollInterval, o.logger)

	// 移动前守卫：先读空积压的状态行，再检查；拒绝时不写任何字节
	if _, err := waiter.Drain(); err != nil {
		o.releaseForeground()
		return nil, err
	}
	snap := o.tracker.Snapshot()
	if snap.GateBlocked {
		o.releaseForeground()
		return nil, errors.New(errors.ErrGuardRejected, "闸门被阻挡，拒绝移动")
	}
	if snap.InventoryPending {
		o.releaseForeground()
		return nil, errors.New(errors.ErrGuardRejected, "库存测量未完成，拒绝移动")
	}

	// 移动阶段
	o.setState(StateMoving)
	o.logger.Info("移动到料仓", zap.Int("bin", bin))
	if err := sender.Send(cmd); err != nil {
		o.setState(StateFailed)
		o.releaseForeground()
		return nil, err
	}
	found, _, err := waiter.WaitFor(fmt.Sprintf("Done. Now at BIN%d", bin), o.dispenseCfg.MoveTimeout)
	if err != nil {
		o.setState(StateFailed)
		o.releaseForeground()
		return nil, err
	}
	if !found {
		o.setState(StateFailed)
		o.releaseForeground()
		ferr := errors.Newf(errors.ErrMoveTimeout, "移动到料仓%d在%s内未完成", bin, o.dispenseCfg.MoveTimeout)
		return &DispenseResult{
			Success: false, Message: ferr.Error(), Bin: bin,
			State: StateFailed, Inventory: InventoryUnknown,
		}, ferr
	}

	// 等待用户取料并重新插入料仓
	o.setState(StateAtBinWaitingGate)
	found, gateLines, err := waiter.WaitFor("GATE: Ready", o.dispenseCfg.GateTimeout)
	if err != nil {
		o.setState(StateFailed)
		o.releaseForeground()
		return nil, err
	}
	if !found {
		o.setState(StateFailed)
		o.releaseForeground()
		ferr := errors.Newf(errors.ErrGateTimeout, "等待料仓重新插入在%s内未完成", o.dispenseCfg.GateTimeout)
		return &DispenseResult{
			Success: false, Message: ferr.Error(), Bin: bin,
			State: StateFailed, Inventory: InventoryUnknown,
		}, ferr
	}

	// GateReady：连接所有权移交后台库存任务，原句柄随即失效
	o.setState(StateGateReady)
	moved, err := conn.Handoff()
	if err != nil {
		o.setState(StateFailed)
		o.releaseForeground()
		return nil, err
	}
	o.mu.Lock()
	o.conn = nil
	o.mu.Unlock()

	o.bg.Add(1)
	go o.inventoryTask(moved, session, bin, gateLines)

	o.setState(StateDone)
	return &DispenseResult{
		Success:   true,
		Message:   fmt.Sprintf("料仓%d出料完成，库存测量进行中", bin),
		Bin:       bin,
		State:     StateDone,
		Inventory: InventoryUnknown,
	}, nil
}

// inventoryTask 后台库存测量：无论成败都落一条记录并归还连接
func (o *Orchestrator) inventoryTask(conn *Conn, session string, bin int, priorLines []string) {
	defer o.bg.Done()
	defer o.release(conn)

	sender := NewCommandSender(conn, o.dispenseCfg.CommandRepeat, o.logger)
	waiter := NewWaiter(conn, o.tracker, o.dispenseCfg.PollInterval, o.logger)

	var invLines []string

	// 库存命令守卫：仅在闸门就绪且测量未决时发送
	snap := o.tracker.Snapshot()
	if snap.InventoryPending && !snap.GateBlocked {
		if err := sender.Send(CmdInventory); err != nil {
			o.logger.Error("发送库存命令失败", zap.Error(err))
		} else {
			found, lines, err := waiter.WaitFor("Inventory complete", o.dispenseCfg.InventoryTimeout)
			invLines = lines
			if err != nil {
				o.logger.Error("等待库存测量结果失败", zap.Error(err))
			} else if !found {
				o.logger.Warn("库存测量超时，按UNKNOWN记录",
					zap.Int("bin", bin),
					zap.Duration("timeout", o.dispenseCfg.InventoryTimeout))
			}
		}
	} else {
		o.logger.Warn("库存命令被守卫拒绝，按UNKNOWN记录",
			zap.Bool("inventory_pending", snap.InventoryPending),
			zap.Bool("gate_blocked", snap.GateBlocked))
	}

	// 从GateReady以来的全部行归纳最终结果
	all := append(append([]string{}, priorLines...), invLines...)
	result, distance := SummarizeInventory(all)

	if err := o.sink.Append(session, string(result), distance, bin); err != nil {
		o.logger.Error("写入库存记录失败", zap.Error(err))
	}
	o.logger.Info("库存测量完成",
		zap.String("session", session),
		zap.Int("bin", bin),
		zap.String("result", string(result)),
		zap.String("distance_cm", distance))
}

// Wait 等待后台库存任务结束（测试和优雅关闭用）
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

// EStop 急停：任何状态下无条件接受
// 不经过当前连接所有权（可能在后台任务手中），直接开一条短连接单次写入，不等确认
func (o *Orchestrator) EStop() error {
	return EmergencyStop(o.serialCfg, o.logger)
}

// EmergencyStop 向设备发送急停命令，尽力而为：开新连接、单次写入、立即关闭
func EmergencyStop(cfg *config.SerialConfig, logger *zap.Logger) error {
	conn, err := Dial(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := NewCommandSender(conn, 0, logger)
	return sender.SendEStop()
}

// Close 关闭编排器持有的连接（后台任务在跑时等它先归还）
func (o *Orchestrator) Close() error {
	o.bg.Wait()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		select {
		case c := <-o.returned:
			o.conn = c
		default:
			return nil
		}
	}
	err := o.conn.Close()
	o.conn = nil
	return err
}
