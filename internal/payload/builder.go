package payload

import (
	"time"

	"wisefido-datamatrix/internal/cache"
	"wisefido-datamatrix/internal/models"
)

// Builder 规范化载荷构建器
// 输出结构逐字段按允许清单 {bed_id, 时间戳, vitals} 构建，而非复制后删减，
// 缓存里的患者身份信息在结构上不可能进入载荷
type Builder struct {
	schemaVersion int
	clock         func() time.Time
}

// NewBuilder 创建载荷构建器；clock 为 nil 时使用系统时钟
func NewBuilder(schemaVersion int, clock func() time.Time) *Builder {
	if clock == nil {
		clock = time.Now
	}
	return &Builder{
		schemaVersion: schemaVersion,
		clock:         clock,
	}
}

// Build 从缓存快照构建未带校验和的载荷
// (快照, 序号, 时钟) 的纯函数，无副作用；没有任何体征的床位不输出
func (b *Builder) Build(snapshot map[string]cache.BedState, seq uint64) *models.MonitorPayload {
	beds := make(map[string]models.BedVitalsSnapshot, len(snapshot))
	for bedID, state := range snapshot {
		if len(state.Vitals) == 0 {
			continue
		}
		vitals := make(map[string]models.VitalReading, len(state.Vitals))
		for code, obs := range state.Vitals {
			vitals[code] = models.VitalReading{
				Value: obs.Value,
				Unit:  obs.Unit,
				Flag:  obs.Flag,
			}
		}
		beds[bedID] = models.BedVitalsSnapshot{
			Vitals: vitals,
			BedTS:  state.UpdatedAt,
		}
	}

	return &models.MonitorPayload{
		SchemaVersion: b.schemaVersion,
		GeneratedAt:   b.clock().UTC().Format(models.TimestampLayout),
		Sequence:      seq,
		Beds:          beds,
	}
}
