package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-datamatrix/internal/models"
)

// PostgresDecodeRecordRepository 解码结果Repository的PostgreSQL实现
type PostgresDecodeRecordRepository struct {
	db *sql.DB
}

// NewPostgresDecodeRecordRepository 创建解码结果Repository
func NewPostgresDecodeRecordRepository(db *sql.DB) *PostgresDecodeRecordRepository {
	return &PostgresDecodeRecordRepository{db: db}
}

// 确保实现了接口
var _ DecodeRecordRepository = (*PostgresDecodeRecordRepository)(nil)

// EnsureSchema 创建结果表（幂等）
func (r *PostgresDecodeRecordRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS dm_decode_records (
			record_id       UUID PRIMARY KEY,
			run_id          UUID NOT NULL,
			source_image    TEXT NOT NULL,
			captured_at     TIMESTAMPTZ,
			processed_at    TIMESTAMPTZ NOT NULL,
			checksum_ok     BOOLEAN NOT NULL,
			failure_reason  TEXT,
			sequence        BIGINT,
			payload         JSONB,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure dm_decode_records schema: %w", err)
	}
	return nil
}

// Insert 插入一条解码记录（记录不可变，只插入不更新）
func (r *PostgresDecodeRecordRepository) Insert(ctx context.Context, record *models.DecodeRecord) error {
	var capturedAt sql.NullTime
	if t, err := time.Parse(models.TimestampLayout, record.CapturedAt); err == nil {
		capturedAt = sql.NullTime{Time: t, Valid: true}
	}

	processedAt, err := time.Parse(models.TimestampLayout, record.ProcessedAt)
	if err != nil {
		return fmt.Errorf("invalid processed_at %q: %w", record.ProcessedAt, err)
	}

	var failureReason sql.NullString
	if record.FailureReason != "" {
		failureReason = sql.NullString{String: string(record.FailureReason), Valid: true}
	}

	var sequence sql.NullInt64
	var payload []byte
	if record.DecodedPayload != nil {
		sequence = sql.NullInt64{Int64: int64(record.DecodedPayload.Sequence), Valid: true}
		payload, err = json.Marshal(record.DecodedPayload)
		if err != nil {
			return fmt.Errorf("failed to marshal decoded payload: %w", err)
		}
	}

	query := `
		INSERT INTO dm_decode_records (
			record_id, run_id, source_image, captured_at, processed_at,
			checksum_ok, failure_reason, sequence, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.RecordID,
		record.RunID,
		record.SourceImage,
		capturedAt,
		processedAt,
		record.ChecksumOK,
		failureReason,
		sequence,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decode record: %w", err)
	}
	return nil
}

// ListByRun 按恢复批次查询解码记录（按处理时间升序）
func (r *PostgresDecodeRecordRepository) ListByRun(ctx context.Context, runID string) ([]*models.DecodeRecord, error) {
	query := `
		SELECT record_id, run_id, source_image, captured_at, processed_at,
		       checksum_ok, failure_reason, payload
		FROM dm_decode_records
		WHERE run_id = $1
		ORDER BY processed_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decode records: %w", err)
	}
	defer rows.Close()

	var records []*models.DecodeRecord
	for rows.Next() {
		var rec models.DecodeRecord
		var capturedAt sql.NullTime
		var processedAt time.Time
		var failureReason sql.NullString
		var payload []byte

		if err := rows.Scan(
			&rec.RecordID,
			&rec.RunID,
			&rec.SourceImage,
			&capturedAt,
			&processedAt,
			&rec.ChecksumOK,
			&failureReason,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decode record: %w", err)
		}

		if capturedAt.Valid {
			rec.CapturedAt = capturedAt.Time.UTC().Format(models.TimestampLayout)
		}
		rec.ProcessedAt = processedAt.UTC().Format(models.TimestampLayout)
		if failureReason.Valid {
			rec.FailureReason = models.FailureReason(failureReason.String)
		}
		if len(payload) > 0 {
			var p models.MonitorPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("failed to unmarshal stored payload: %w", err)
			}
			rec.DecodedPayload = &p
		}

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decode records: %w", err)
	}
	return records, nil
}
