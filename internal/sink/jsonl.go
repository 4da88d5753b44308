package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-datamatrix/internal/models"
)

// RecordWriter 解码结果写入端
type RecordWriter interface {
	Append(ctx context.Context, record *models.DecodeRecord) error
}

// WriterFunc 函数适配为 RecordWriter
type WriterFunc func(ctx context.Context, record *models.DecodeRecord) error

// Append 实现 RecordWriter
func (f WriterFunc) Append(ctx context.Context, record *models.DecodeRecord) error {
	return f(ctx, record)
}

// resultFileName 分区目录内的结果文件名（与既有数据集布局一致）
const resultFileName = "dm_results.jsonl"

// JSONLSink 按采集日期分区的追加式结果日志
// 每条记录一行自包含 JSON，只追加从不改写；并发追加由互斥锁串行化，
// 保证行不会在记录中间交错
type JSONLSink struct {
	root   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewJSONLSink 创建 JSONL 结果日志，root 为数据集根目录
func NewJSONLSink(root string, logger *zap.Logger) *JSONLSink {
	return &JSONLSink{
		root:   root,
		logger: logger,
	}
}

var _ RecordWriter = (*JSONLSink)(nil)

// Append 追加一条解码记录到 <root>/<YYYYMMDD>/dm_results.jsonl
// 分区键取记录的采集日期；重复处理同一张图会产生两行，去重由调用方比较 seq
func (s *JSONLSink) Append(ctx context.Context, record *models.DecodeRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal decode record: %w", err)
	}

	dir := filepath.Join(s.root, partitionKey(record))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition dir: %w", err)
	}

	path := filepath.Join(dir, resultFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open result log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append decode record: %w", err)
	}

	s.logger.Debug("Appended decode record",
		zap.String("record_id", record.RecordID),
		zap.String("path", path),
		zap.Bool("checksum_ok", record.ChecksumOK),
	)
	return nil
}

// partitionKey 采集日期分区键；采集时间不可解析时退回处理时间
func partitionKey(record *models.DecodeRecord) string {
	if t, err := time.Parse(models.TimestampLayout, record.CapturedAt); err == nil {
		return t.UTC().Format("20060102")
	}
	if t, err := time.Parse(models.TimestampLayout, record.ProcessedAt); err == nil {
		return t.UTC().Format("20060102")
	}
	return time.Now().UTC().Format("20060102")
}

// Composite 按顺序写入多个 RecordWriter，任一失败即返回
func Composite(writers ...RecordWriter) RecordWriter {
	return WriterFunc(func(ctx context.Context, record *models.DecodeRecord) error {
		for _, w := range writers {
			if err := w.Append(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
}
