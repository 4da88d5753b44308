package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-datamatrix/internal/frame"
	"wisefido-datamatrix/internal/models"
	"wisefido-datamatrix/internal/sink"
	"wisefido-datamatrix/internal/source"
	"wisefido-datamatrix/internal/symbol"
)

// Summary 单次恢复批次的汇总
type Summary struct {
	RunID               string
	Total               int
	OK                  int
	Failed              int
	SequenceRegressions int
}

// Recovery 批量恢复流水线
// 逐图解码互不依赖，可并行执行；唯一共享资源是结果写入端，
// 由 sink 自身串行化追加
type Recovery struct {
	src     source.ImageSource
	writer  sink.RecordWriter
	logger  *zap.Logger
	roiSize int
	workers int
	clock   func() time.Time
}

// NewRecovery 创建恢复流水线；clock 为 nil 时使用系统时钟
func NewRecovery(src source.ImageSource, writer sink.RecordWriter, roiSize, workers int, logger *zap.Logger, clock func() time.Time) *Recovery {
	if workers <= 0 {
		workers = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &Recovery{
		src:     src,
		writer:  writer,
		logger:  logger,
		roiSize: roiSize,
		workers: workers,
		clock:   clock,
	}
}

// Run 处理最近 latestN 张截图
// 单图失败只记录不中断批次；来源列举失败与结果写入失败属于配置级错误，
// 会终止整个批次。ctx 取消在图像之间生效，不会打断进行中的单图解码
func (r *Recovery) Run(ctx context.Context, latestN int) (*Summary, error) {
	images, err := r.src.List(ctx, latestN)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture images: %w", err)
	}

	runID := uuid.New().String()
	r.logger.Info("Starting recovery run",
		zap.String("run_id", runID),
		zap.Int("images", len(images)),
		zap.Int("workers", r.workers),
	)

	records := make([]*models.DecodeRecord, len(images))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				records[idx] = r.processOne(ctx, runID, images[idx])
			}
		}()
	}

feed:
	for i := range images {
		select {
		case <-ctx.Done():
			r.logger.Warn("Recovery run cancelled",
				zap.String("run_id", runID),
				zap.Int("remaining", len(images)-i),
			)
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	// 记录按采集顺序落盘；取消时未处理的图像没有记录，
	// 已完成的解码结果仍然写出，落盘上下文与取消信号解耦
	writeCtx := context.WithoutCancel(ctx)
	summary := &Summary{RunID: runID}
	var lastSeq uint64
	var haveSeq bool
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := r.writer.Append(writeCtx, rec); err != nil {
			return summary, fmt.Errorf("failed to append decode record: %w", err)
		}
		summary.Total++
		if rec.ChecksumOK {
			summary.OK++
			seq := rec.DecodedPayload.Sequence
			if haveSeq && seq < lastSeq {
				// 序号回退：生产端重启或重复截图，提示不判错
				summary.SequenceRegressions++
				r.logger.Warn("Sequence regression across decoded payloads",
					zap.Uint64("previous", lastSeq),
					zap.Uint64("current", seq),
					zap.String("source_image", rec.SourceImage),
				)
			}
			lastSeq = seq
			haveSeq = true
		} else {
			summary.Failed++
		}
	}

	r.logger.Info("Recovery run finished",
		zap.String("run_id", runID),
		zap.Int("total", summary.Total),
		zap.Int("ok", summary.OK),
		zap.Int("failed", summary.Failed),
		zap.Int("sequence_regressions", summary.SequenceRegressions),
	)
	return summary, nil
}

// processOne 处理单张截图，始终返回一条不可变记录
func (r *Recovery) processOne(ctx context.Context, runID string, img source.CapturedImage) *models.DecodeRecord {
	rec := &models.DecodeRecord{
		RecordID:    uuid.New().String(),
		RunID:       runID,
		SourceImage: img.Ref,
		CapturedAt:  img.CapturedAt.UTC().Format(models.TimestampLayout),
		ProcessedAt: r.clock().UTC().Format(models.TimestampLayout),
	}

	fail := func(reason models.FailureReason, err error) *models.DecodeRecord {
		rec.FailureReason = reason
		r.logger.Warn("Decode attempt failed",
			zap.String("source_image", img.Ref),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return rec
	}

	data, err := r.src.Read(ctx, img.Ref)
	if err != nil {
		return fail(models.FailureSymbolNotFound, err)
	}

	loaded, err := symbol.LoadImage(data)
	if err != nil {
		return fail(models.FailureSymbolNotFound, err)
	}

	blob, err := r.decodeSymbol(loaded)
	if err != nil {
		if errors.Is(err, symbol.ErrUnrecoverableDamage) {
			return fail(models.FailureUnrecoverableDamage, err)
		}
		return fail(models.FailureSymbolNotFound, err)
	}

	raw, err := symbol.Decompress(blob)
	if err != nil {
		return fail(models.FailureMalformedPayload, err)
	}

	payload, err := frame.Unmarshal(raw)
	if err != nil {
		return fail(models.FailureMalformedPayload, err)
	}

	// 校验和基于接收到的原始字节重新计算，与解析后的结构无关
	if !frame.VerifyBytes(raw) {
		return fail(models.FailureChecksumMismatch, fmt.Errorf("crc32 %s does not match canonical bytes", payload.Checksum))
	}

	rec.ChecksumOK = true
	rec.DecodedPayload = payload
	r.logger.Debug("Decoded payload",
		zap.String("source_image", img.Ref),
		zap.Uint64("seq", payload.Sequence),
		zap.Int("beds", len(payload.Beds)),
	)
	return rec
}

// decodeSymbol 先在固定的右下角 ROI 内找符号，找不到再回退整图
func (r *Recovery) decodeSymbol(img *symbol.SymbolImage) ([]byte, error) {
	roi := img.CropBottomRight(r.roiSize)
	blob, err := symbol.Decode(roi)
	if err == nil {
		return blob, nil
	}
	if errors.Is(err, symbol.ErrSymbolNotFound) && roi != img {
		return symbol.Decode(img)
	}
	return nil, err
}
