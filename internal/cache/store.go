package cache

import (
	"context"
	"sync"
)

// VitalObservation 采集到的单项观测（与 HL7 OBX 对应）
type VitalObservation struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Flag  string  `json:"flag"`
}

// PatientInfo 患者身份信息（PHI）
// 仅存在于床位缓存内供护理端排查使用，载荷构建器在结构上无法访问它
type PatientInfo struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	DOB       string `json:"dob"`
}

// BedState 单床位最新状态
type BedState struct {
	BedID     string                      `json:"bed_id"`
	UpdatedAt string                      `json:"updated_at"`
	Patient   *PatientInfo                `json:"patient,omitempty"`
	Vitals    map[string]VitalObservation `json:"vitals"`
}

// BedCache 床位缓存：HL7 接收端写入，监护端读取一致性快照
// 读取方只能拿到完整快照副本，不暴露字段级修改入口
type BedCache interface {
	Update(ctx context.Context, state BedState) error
	Snapshot(ctx context.Context) (map[string]BedState, error)
}

// MemoryBedCache 进程内床位缓存（读写锁 + 快照深拷贝）
type MemoryBedCache struct {
	mu   sync.RWMutex
	beds map[string]BedState
}

// NewMemoryBedCache 创建进程内床位缓存
func NewMemoryBedCache() *MemoryBedCache {
	return &MemoryBedCache{
		beds: make(map[string]BedState),
	}
}

var _ BedCache = (*MemoryBedCache)(nil)

// Update 覆盖指定床位的最新状态
func (c *MemoryBedCache) Update(ctx context.Context, state BedState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beds[state.BedID] = copyBedState(state)
	return nil
}

// Snapshot 返回全部床位的一致性快照（深拷贝，后续写入不影响已读快照）
func (c *MemoryBedCache) Snapshot(ctx context.Context) (map[string]BedState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]BedState, len(c.beds))
	for bedID, state := range c.beds {
		snapshot[bedID] = copyBedState(state)
	}
	return snapshot, nil
}

// copyBedState 深拷贝床位状态（map 与指针字段逐项复制）
func copyBedState(state BedState) BedState {
	out := state
	if state.Patient != nil {
		patient := *state.Patient
		out.Patient = &patient
	}
	out.Vitals = make(map[string]VitalObservation, len(state.Vitals))
	for code, obs := range state.Vitals {
		out.Vitals[code] = obs
	}
	return out
}
