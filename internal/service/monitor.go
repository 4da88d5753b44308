package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"wisefido-datamatrix/internal/cache"
	"wisefido-datamatrix/internal/config"
	"wisefido-datamatrix/internal/frame"
	"wisefido-datamatrix/internal/models"
	"wisefido-datamatrix/internal/payload"
	"wisefido-datamatrix/internal/symbol"
)

// MonitorService 编码端服务
// 按固定间隔读取床位缓存快照，构建载荷、计算校验和、编码 DataMatrix，
// 并把渲染好的 PNG 写到固定路径供显示端读取
type MonitorService struct {
	config  *config.Config
	logger  *zap.Logger
	cache   cache.BedCache
	builder *payload.Builder
	seq     uint64
}

// NewMonitorService 创建编码端服务
func NewMonitorService(cfg *config.Config, bedCache cache.BedCache, logger *zap.Logger) *MonitorService {
	return &MonitorService{
		config:  cfg,
		logger:  logger,
		cache:   bedCache,
		builder: payload.NewBuilder(models.CurrentSchemaVersion, nil),
	}
}

// Start 启动刷新循环，直到 ctx 取消
func (s *MonitorService) Start(ctx context.Context) error {
	interval := time.Duration(s.config.Monitor.RefreshInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting monitor symbol loop",
		zap.Duration("interval", interval),
		zap.String("symbol_path", s.config.Monitor.SymbolPath),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RefreshOnce(ctx); err != nil {
				s.logger.Error("Failed to refresh symbol", zap.Error(err))
			}
		}
	}
}

// RefreshOnce 一次刷新：快照 → 载荷 → 校验和 → 符号 → PNG
func (s *MonitorService) RefreshOnce(ctx context.Context) error {
	snapshot, err := s.cache.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot bed cache: %w", err)
	}

	p := s.builder.Build(snapshot, s.seq+1)
	if len(p.Beds) == 0 {
		// 空载荷不参与编码，序号也不消耗
		s.logger.Debug("No beds with vitals, skipping symbol refresh")
		return nil
	}
	s.seq++

	framed, blob, err := s.frameAndFit(p)
	if err != nil {
		return err
	}

	sym, err := symbol.Encode(blob, s.config.Monitor.SymbolSize)
	if err != nil {
		return fmt.Errorf("failed to encode symbol: %w", err)
	}

	pngData, err := sym.PNG()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.config.Monitor.SymbolPath, pngData); err != nil {
		return fmt.Errorf("failed to write symbol png: %w", err)
	}

	s.logger.Info("Refreshed symbol",
		zap.Uint64("seq", framed.Sequence),
		zap.String("crc32", framed.Checksum),
		zap.Int("beds", len(framed.Beds)),
		zap.Int("bytes", len(blob)),
	)
	return nil
}

// frameAndFit 计算校验和并压缩；超出符号容量时按最旧床位逐个丢弃后重试，
// 绝不静默截断
func (s *MonitorService) frameAndFit(p *models.MonitorPayload) (*models.MonitorPayload, []byte, error) {
	for {
		framed, err := frame.Frame(p)
		if err != nil {
			return nil, nil, err
		}

		raw, err := frame.Marshal(framed)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		blob, err := symbol.Compress(raw)
		if err != nil {
			return nil, nil, err
		}

		if len(blob) <= symbol.MaxPayloadBytes {
			return framed, blob, nil
		}
		if len(p.Beds) <= 1 {
			return nil, nil, fmt.Errorf("%w: single bed payload is %d bytes", symbol.ErrPayloadTooLarge, len(blob))
		}

		dropped := dropOldestBed(p)
		s.logger.Warn("Payload exceeds symbol capacity, dropping oldest bed",
			zap.String("bed", dropped),
			zap.Int("bytes", len(blob)),
			zap.Int("remaining_beds", len(p.Beds)),
		)
	}
}

// dropOldestBed 删除 bed_ts 最旧的床位并返回其床位号
// 时间戳为固定格式字符串，字典序即时间序
func dropOldestBed(p *models.MonitorPayload) string {
	oldest := ""
	for bedID, bed := range p.Beds {
		if oldest == "" || bed.BedTS < p.Beds[oldest].BedTS {
			oldest = bedID
		}
	}
	delete(p.Beds, oldest)
	return oldest
}

// writeFileAtomic 先写临时文件再原子改名，显示端不会读到半张图
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dm_symbol_*.png")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
