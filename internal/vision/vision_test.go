package vision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/carousel-dispenser/internal/config"
	"go.uber.org/zap"
)

func newTestDetector(t *testing.T) (*Detector, string) {
	t.Helper()
	resultFile := filepath.Join(t.TempDir(), "result.txt")
	cfg := &config.VisionConfig{
		Command:    "true",
		ResultFile: resultFile,
		Timeout:    time.Second,
	}
	return NewDetector(cfg, zap.NewNop()), resultFile
}

func TestDetectParsesResultFile(t *testing.T) {
	d, resultFile := newTestDetector(t)
	d.runCommand = func(ctx context.Context, command string) error {
		return os.WriteFile(resultFile, []byte("led_red,0.93\n"), 0644)
	}

	result, err := d.Detect(context.Background())
	assert.NoError(t, err)
	assert.True(t, result.Detected)
	assert.Equal(t, "led_red", result.Label)
	assert.InDelta(t, 0.93, result.Confidence, 1e-9)
}

func TestDetectNoneLabelIsNotAnError(t *testing.T) {
	d, resultFile := newTestDetector(t)
	d.runCommand = func(ctx context.Context, command string) error {
		return os.WriteFile(resultFile, []byte("none,0.0\n"), 0644)
	}

	result, err := d.Detect(context.Background())
	assert.NoError(t, err)
	assert.False(t, result.Detected)
	assert.Empty(t, result.Label)
}

func TestDetectMissingResultFileIsNotAnError(t *testing.T) {
	d, _ := newTestDetector(t)
	d.runCommand = func(ctx context.Context, command string) error {
		return nil // 识别进程没有产出结果文件
	}

	result, err := d.Detect(context.Background())
	assert.NoError(t, err)
	assert.False(t, result.Detected)
}

func TestDetectRemovesStaleResult(t *testing.T) {
	d, resultFile := newTestDetector(t)
	assert.NoError(t, os.WriteFile(resultFile, []byte("1kohm,0.99\n"), 0644))

	d.runCommand = func(ctx context.Context, command string) error {
		// 新一轮识别没有写结果文件，上一次的结果不得泄漏
		return nil
	}

	result, err := d.Detect(context.Background())
	assert.NoError(t, err)
	assert.False(t, result.Detected)
}

func TestReadResultWithoutConfidence(t *testing.T) {
	d, resultFile := newTestDetector(t)
	assert.NoError(t, os.WriteFile(resultFile, []byte("cap_100nf"), 0644))

	result, err := d.ReadResult()
	assert.NoError(t, err)
	assert.True(t, result.Detected)
	assert.Equal(t, "cap_100nf", result.Label)
	assert.Zero(t, result.Confidence)
}
