package vision

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/wfunc/carousel-dispenser/internal/config"
	"github.com/wfunc/carousel-dispenser/internal/errors"
	"go.uber.org/zap"
)

// Result 一次元件识别的结果
type Result struct {
	Detected   bool    `json:"detected"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Detector 元件视觉识别
// 识别本体是外部进程，结果通过单行文件"<label>,<confidence>"交付
// 文件缺失或label为"none"表示没识别到，不算错误
type Detector struct {
	cfg    *config.VisionConfig
	logger *zap.Logger

	// 测试注入
	runCommand func(ctx context.Context, command string) error
}

// NewDetector 创建识别器
func NewDetector(cfg *config.VisionConfig, log *zap.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: log,
		runCommand: func(ctx context.Context, command string) error {
			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			return cmd.Run()
		},
	}
}

// Detect 触发一次识别并读取结果文件
func (d *Detector) Detect(ctx context.Context) (*Result, error) {
	if d.cfg.Command == "" {
		return nil, errors.New(errors.ErrConfigMissing, "未配置识别命令")
	}

	timeout := d.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 旧结果文件先删掉，避免读到上一次的结果
	_ = os.Remove(d.cfg.ResultFile)

	if err := d.runCommand(ctx, d.cfg.Command); err != nil {
		return nil, errors.Wrap(err, errors.ErrVisionFailed, "识别进程执行失败")
	}

	return d.ReadResult()
}

// ReadResult 解析结果文件
// 文件不存在或label为"none"返回未识别到的结果，不报错
func (d *Detector) ReadResult() (*Result, error) {
	data, err := os.ReadFile(d.cfg.ResultFile)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Warn("识别结果文件不存在", zap.String("path", d.cfg.ResultFile))
			return &Result{Detected: false}, nil
		}
		return nil, errors.Wrap(err, errors.ErrVisionNoResult, "读取识别结果失败")
	}

	line := strings.TrimSpace(string(data))
	parts := strings.SplitN(line, ",", 2)
	label := strings.TrimSpace(parts[0])
	if label == "" || strings.EqualFold(label, "none") {
		return &Result{Detected: false}, nil
	}

	result := &Result{Detected: true, Label: label}
	if len(parts) == 2 {
		if conf, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			result.Confidence = conf
		}
	}

	d.logger.Info("元件识别完成",
		zap.String("label", result.Label),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}
