package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/carousel-dispenser/internal/errors"
	"go.uber.org/zap"
)

func TestSendRepeatsCommand(t *testing.T) {
	port := &fakePort{}
	sender := NewCommandSender(NewConn(port), 0, zap.NewNop())

	err := sender.Send(CmdHome)
	assert.NoError(t, err)
	assert.Equal(t, commandRepeat, port.writeCount())
	for _, w := range port.written() {
		assert.Equal(t, "h", w)
	}
}

func TestSendCustomRepeat(t *testing.T) {
	port := &fakePort{}
	sender := NewCommandSender(NewConn(port), 5, zap.NewNop())

	err := sender.Send(CmdInventory)
	assert.NoError(t, err)
	assert.Equal(t, 5, port.writeCount())
}

func TestSendEStopWritesExactlyOnce(t *testing.T) {
	port := &fakePort{}
	sender := NewCommandSender(NewConn(port), 0, zap.NewNop())

	err := sender.SendEStop()
	assert.NoError(t, err)
	assert.Equal(t, 1, port.writeCount())
	assert.Equal(t, "e", port.written()[0])
}

func TestMoveToBin(t *testing.T) {
	for n := 0; n <= 3; n++ {
		cmd, err := MoveToBin(n)
		assert.NoError(t, err)
		assert.Equal(t, Command([]string{"bin0", "bin1", "bin2", "bin3"}[n]), cmd)
	}

	for _, n := range []int{-1, 4, 10} {
		_, err := MoveToBin(n)
		assert.Error(t, err)
		assert.Equal(t, errors.ErrInvalidBin, errors.GetCode(err))
	}
}
