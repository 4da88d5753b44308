package models

// TimestampLayout 载荷内时间戳的固定格式（UTC、微秒精度）
// 时间戳全程以字符串形式携带，避免重新序列化时格式漂移
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// CurrentSchemaVersion 当前载荷协议版本
const CurrentSchemaVersion = 1

// VitalReading 单项生命体征测量值
type VitalReading struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Flag  string  `json:"flag"` // HL7 异常标志：""/N/L/H/LL/HH/A
}

// BedVitalsSnapshot 单床位某一时刻的生命体征快照
// 允许字段仅有 vitals 和 bed_ts，不包含任何患者身份信息（PHI）
type BedVitalsSnapshot struct {
	Vitals map[string]VitalReading `json:"vitals"`
	BedTS  string                  `json:"bed_ts"`
}

// MonitorPayload 编码进单个 DataMatrix 符号的载荷
// crc32 是最后写入的字段，计算摘要时被排除在输入之外
type MonitorPayload struct {
	SchemaVersion int                          `json:"v"`
	GeneratedAt   string                       `json:"ts"`
	Sequence      uint64                       `json:"seq"`
	Beds          map[string]BedVitalsSnapshot `json:"beds"`
	Checksum      string                       `json:"crc32,omitempty"`
}
