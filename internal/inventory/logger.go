package inventory

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/wfunc/carousel-dispenser/internal/errors"
	"github.com/wfunc/carousel-dispenser/internal/logger"
	"go.uber.org/zap"
)

const timestampLayout = "2006-01-02 15:04:05"

var header = []string{"timestamp", "result", "distance_cm", "bin"}

// Record 一条库存测量记录
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Result     string    `json:"result"`      // HI/LO/UNKNOWN
	DistanceCM string    `json:"distance_cm"` // 数值字符串或"N/A"
	Bin        int       `json:"bin"`
}

// Logger 追加式CSV库存日志
// 表头只在文件创建时写一次，之后只追加数据行
type Logger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	log  *zap.Logger
}

// NewLogger 创建库存日志器，按需建立父目录
func NewLogger(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrUnknown, "创建库存日志目录失败")
		}
	}
	return &Logger{
		path: path,
		now:  time.Now,
		log:  logger.GetModuleLogger("inventory"),
	}, nil
}

// Append 追加一条库存记录，时间戳取本地当前时间
func (l *Logger) Append(result, distanceCM string, bin int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	writeHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "打开库存日志失败")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return errors.Wrap(err, errors.ErrUnknown, "写入库存日志表头失败")
		}
	}
	row := []string{l.now().Format(timestampLayout), result, distanceCM, strconv.Itoa(bin)}
	if err := w.Write(row); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "写入库存记录失败")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "刷新库存日志失败")
	}

	l.log.Info("库存记录已写入",
		zap.Int("bin", bin),
		zap.String("result", result),
		zap.String("distance_cm", distanceCM))
	return nil
}

// GetLastResult 全量扫描，返回指定料仓时间戳最大记录的结果
// 时间戳相同取文件中靠后的一条；没有记录时返回ErrNoInventoryRecord
func (l *Logger) GetLastResult(bin int) (string, error) {
	records, err := l.Scan()
	if err != nil {
		return "", err
	}

	var (
		best  *Record
		found bool
	)
	for i := range records {
		r := &records[i]
		if r.Bin != bin {
			continue
		}
		// 晚于等于当前最优即取代，保证平局时取文件序靠后者
		if !found || !r.Timestamp.Before(best.Timestamp) {
			best = r
			found = true
		}
	}
	if !found {
		return "", errors.Newf(errors.ErrNoInventoryRecord, "料仓%d没有库存记录", bin)
	}
	return best.Result, nil
}

// Scan 读出全部记录，文件不存在视为空日志
func (l *Logger) Scan() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrUnknown, "打开库存日志失败")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "解析库存日志失败")
	}

	var records []Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == header[0] {
			continue
		}
		if len(row) < 4 {
			l.log.Warn("库存日志行字段不足，跳过", zap.Int("line", i+1))
			continue
		}
		ts, err := time.ParseInLocation(timestampLayout, row[0], time.Local)
		if err != nil {
			l.log.Warn("库存日志时间戳解析失败，跳过",
				zap.Int("line", i+1),
				zap.String("timestamp", row[0]))
			continue
		}
		binNo, err := strconv.Atoi(row[3])
		if err != nil {
			l.log.Warn("库存日志料仓编号解析失败，跳过", zap.Int("line", i+1))
			continue
		}
		records = append(records, Record{
			Timestamp:  ts,
			Result:     row[1],
			DistanceCM: row[2],
			Bin:        binNo,
		})
	}
	return records, nil
}
