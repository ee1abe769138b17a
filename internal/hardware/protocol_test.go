package hardware

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplySequence(t *testing.T) {
	lines := []string{
		"Homing complete",
		"Done. Now at BIN2",
		"GATE: Ready",
		"HI",
		"(Distance(cm)=12.3)",
	}

	var state DeviceState
	for _, line := range lines {
		state = Apply(state, line)
	}

	assert.True(t, state.Homed)
	if assert.NotNil(t, state.CurrentBin) {
		assert.Equal(t, 2, *state.CurrentBin)
	}
	assert.False(t, state.GateBlocked)
	assert.False(t, state.InventoryPending)
	if assert.NotNil(t, state.LastInventoryResult) {
		assert.Equal(t, InventoryHI, *state.LastInventoryResult)
	}
	if assert.NotNil(t, state.LastDistanceCM) {
		assert.Equal(t, "12.3", *state.LastDistanceCM)
	}
}

func TestApplyHomingComplete(t *testing.T) {
	state := Apply(DeviceState{}, "Homing complete")
	assert.True(t, state.Homed)
	if assert.NotNil(t, state.CurrentBin) {
		assert.Equal(t, 0, *state.CurrentBin)
	}
}

func TestApplyMoveAllBins(t *testing.T) {
	for n := 0; n <= 3; n++ {
		state := Apply(DeviceState{}, fmt.Sprintf("Done. Now at BIN%d", n))
		if assert.NotNil(t, state.CurrentBin, "BIN%d", n) {
			assert.Equal(t, n, *state.CurrentBin)
		}
	}
}

func TestApplyMalformedBinLeavesFieldUnchanged(t *testing.T) {
	bin := 1
	before := DeviceState{CurrentBin: &bin}
	state := Apply(before, "Done. Now at BINX")
	if assert.NotNil(t, state.CurrentBin) {
		assert.Equal(t, 1, *state.CurrentBin)
	}
}

func TestApplyOutOfRangeBinLeavesFieldUnchanged(t *testing.T) {
	bin := 1
	for _, line := range []string{"Done. Now at BIN9", "Done. Now at BIN-1", "Done. Now at BIN4"} {
		before := DeviceState{CurrentBin: &bin}
		state := Apply(before, line)
		if assert.NotNil(t, state.CurrentBin, line) {
			assert.Equal(t, 1, *state.CurrentBin, line)
		}
	}
}

func TestApplyGateLines(t *testing.T) {
	state := Apply(DeviceState{}, "GATE: BLOCKED (bin removed)")
	assert.True(t, state.GateBlocked)

	state = Apply(state, "GATE: OPEN")
	assert.False(t, state.GateBlocked)

	state = Apply(DeviceState{GateBlocked: true}, "GATE: Ready. Press 'i' to perform inventory")
	assert.False(t, state.GateBlocked)
	assert.True(t, state.InventoryPending)
}

func TestApplyInventoryResultExactMatchOnly(t *testing.T) {
	// HI/LO必须整行匹配，子串出现不算
	state := Apply(DeviceState{InventoryPending: true}, "THIS LINE CONTAINS HI SOMEWHERE")
	assert.Nil(t, state.LastInventoryResult)
	assert.True(t, state.InventoryPending)

	state = Apply(state, "HI")
	if assert.NotNil(t, state.LastInventoryResult) {
		assert.Equal(t, InventoryHI, *state.LastInventoryResult)
	}
	assert.False(t, state.InventoryPending)

	state = Apply(state, "LO")
	assert.Equal(t, InventoryLO, *state.LastInventoryResult)
}

func TestApplyDistanceMalformedLeavesFieldUnchanged(t *testing.T) {
	prev := "5.0"
	before := DeviceState{LastDistanceCM: &prev}

	// 没有等号的距离行不改变字段
	state := Apply(before, "(Distance(cm) unavailable)")
	if assert.NotNil(t, state.LastDistanceCM) {
		assert.Equal(t, "5.0", *state.LastDistanceCM)
	}

	state = Apply(before, "(Distance(cm) = 7.8)")
	assert.Equal(t, "7.8", *state.LastDistanceCM)
}

func TestApplyUnmatchedLineNoChange(t *testing.T) {
	bin := 3
	before := DeviceState{Homed: true, CurrentBin: &bin, GateBlocked: true}
	state := Apply(before, "some unrelated debug output")
	assert.Equal(t, before.Homed, state.Homed)
	assert.Equal(t, *before.CurrentBin, *state.CurrentBin)
	assert.Equal(t, before.GateBlocked, state.GateBlocked)
}

func TestStateTrackerSnapshotIsolation(t *testing.T) {
	tracker := NewStateTracker()
	tracker.Feed("Homing complete")
	tracker.Feed("Done. Now at BIN1")

	snap := tracker.Snapshot()
	*snap.CurrentBin = 99

	again := tracker.Snapshot()
	assert.Equal(t, 1, *again.CurrentBin)
}

func TestSummarizeInventory(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		result   InventoryResult
		distance string
	}{
		{"空集合", nil, InventoryUnknown, "N/A"},
		{"只有HI", []string{"HI"}, InventoryHI, "N/A"},
		{"带距离", []string{"LO", "(Distance(cm) = 31.2)"}, InventoryLO, "31.2"},
		{"多次取最后", []string{"HI", "(Distance(cm)=1.0)", "LO", "(Distance(cm)=2.0)"}, InventoryLO, "2.0"},
		{"噪声行忽略", []string{"boot noise", "Inventory complete"}, InventoryUnknown, "N/A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, distance := SummarizeInventory(tt.lines)
			assert.Equal(t, tt.result, result)
			assert.Equal(t, tt.distance, distance)
		})
	}
}
