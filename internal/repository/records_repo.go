package repository

import (
	"context"

	"wisefido-datamatrix/internal/models"
)

// DecodeRecordRepository 解码结果仓储
// JSONL 结果日志是权威存储，数据库镜像用于检索与统计
type DecodeRecordRepository interface {
	Insert(ctx context.Context, record *models.DecodeRecord) error
	ListByRun(ctx context.Context, runID string) ([]*models.DecodeRecord, error)
}
