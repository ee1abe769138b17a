package hardware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWaitForFindsTarget(t *testing.T) {
	port := &fakePort{}
	port.enqueue("boot noise\nHoming complete\n")

	tracker := NewStateTracker()
	waiter := NewWaiter(NewConn(port), tracker, time.Millisecond, zap.NewNop())

	found, lines, err := waiter.WaitFor("Homing complete", time.Second)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"boot noise", "Homing complete"}, lines)
	assert.True(t, tracker.Snapshot().Homed)
}

func TestWaitForTimeoutReturnsCollectedLines(t *testing.T) {
	port := &fakePort{}
	port.enqueue("GATE: BLOCKED\n")

	tracker := NewStateTracker()
	waiter := NewWaiter(NewConn(port), tracker, time.Millisecond, zap.NewNop())

	found, lines, err := waiter.WaitFor("GATE: Ready", 30*time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"GATE: BLOCKED"}, lines)
	assert.True(t, tracker.Snapshot().GateBlocked)
}

func TestWaitForReassemblesFragments(t *testing.T) {
	port := &fakePort{}
	// 一行被拆成两个读取块
	port.enqueue("Done. Now a", "t BIN3\n")

	tracker := NewStateTracker()
	waiter := NewWaiter(NewConn(port), tracker, time.Millisecond, zap.NewNop())

	found, lines, err := waiter.WaitFor("Now at BIN3", time.Second)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"Done. Now at BIN3"}, lines)

	snap := tracker.Snapshot()
	if assert.NotNil(t, snap.CurrentBin) {
		assert.Equal(t, 3, *snap.CurrentBin)
	}
}

func TestDrainFeedsTracker(t *testing.T) {
	port := &fakePort{}
	port.enqueue("GATE: Ready\nHI\n")

	tracker := NewStateTracker()
	waiter := NewWaiter(NewConn(port), tracker, time.Millisecond, zap.NewNop())

	lines, err := waiter.Drain()
	assert.NoError(t, err)
	assert.Equal(t, []string{"GATE: Ready", "HI"}, lines)

	snap := tracker.Snapshot()
	assert.False(t, snap.InventoryPending)
	if assert.NotNil(t, snap.LastInventoryResult) {
		assert.Equal(t, InventoryHI, *snap.LastInventoryResult)
	}
}
