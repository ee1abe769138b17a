package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/carousel-dispenser/internal/errors"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "inventory_log.csv"))
	assert.NoError(t, err)
	return l
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	l := newTestLogger(t)

	assert.NoError(t, l.Append("HI", "12.3", 0))
	assert.NoError(t, l.Append("LO", "31.0", 1))

	data, err := os.ReadFile(l.path)
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "timestamp,result,distance_cm,bin", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",HI,12.3,0"))
	assert.True(t, strings.HasSuffix(lines[2], ",LO,31.0,1"))
}

func TestAppendTimestampFormat(t *testing.T) {
	l := newTestLogger(t)
	fixed := time.Date(2026, 8, 31, 9, 30, 5, 0, time.Local)
	l.now = func() time.Time { return fixed }

	assert.NoError(t, l.Append("UNKNOWN", "N/A", 2))

	data, err := os.ReadFile(l.path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "2026-08-31 09:30:05,UNKNOWN,N/A,2")
}

func TestGetLastResultEmptyLog(t *testing.T) {
	l := newTestLogger(t)

	_, err := l.GetLastResult(0)
	assert.Error(t, err)
	assert.Equal(t, errors.ErrNoInventoryRecord, errors.GetCode(err))
}

func TestGetLastResultByMaxTimestamp(t *testing.T) {
	l := newTestLogger(t)

	// 乱序写入：10:00的HI在前，09:00的LO在后，应取时间戳更晚的HI
	ts := []time.Time{
		time.Date(2026, 8, 31, 10, 0, 0, 0, time.Local),
		time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local),
	}
	i := 0
	l.now = func() time.Time { t := ts[i]; i++; return t }

	assert.NoError(t, l.Append("HI", "12.0", 2))
	assert.NoError(t, l.Append("LO", "30.0", 2))

	result, err := l.GetLastResult(2)
	assert.NoError(t, err)
	assert.Equal(t, "HI", result)
}

func TestGetLastResultTieBrokenByFileOrder(t *testing.T) {
	l := newTestLogger(t)
	fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	l.now = func() time.Time { return fixed }

	assert.NoError(t, l.Append("LO", "30.0", 1))
	assert.NoError(t, l.Append("HI", "11.0", 1))

	result, err := l.GetLastResult(1)
	assert.NoError(t, err)
	assert.Equal(t, "HI", result)
}

func TestGetLastResultFiltersBin(t *testing.T) {
	l := newTestLogger(t)

	assert.NoError(t, l.Append("LO", "29.0", 0))
	assert.NoError(t, l.Append("HI", "10.5", 3))

	result, err := l.GetLastResult(3)
	assert.NoError(t, err)
	assert.Equal(t, "HI", result)

	_, err = l.GetLastResult(2)
	assert.Equal(t, errors.ErrNoInventoryRecord, errors.GetCode(err))
}

func TestScanSkipsMalformedRows(t *testing.T) {
	l := newTestLogger(t)
	assert.NoError(t, l.Append("HI", "12.3", 0))

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	assert.NoError(t, err)
	_, err = f.WriteString("not-a-timestamp,HI,1.0,0\n")
	assert.NoError(t, err)
	assert.NoError(t, f.Close())

	records, err := l.Scan()
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "HI", records[0].Result)
}
