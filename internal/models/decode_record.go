package models

// FailureReason 恢复失败原因（固定枚举，逐图记录）
type FailureReason string

const (
	// FailureSymbolNotFound 图像中未找到可识别的 DataMatrix 符号
	FailureSymbolNotFound FailureReason = "symbol_not_found"
	// FailureUnrecoverableDamage 找到符号但纠错无法恢复数据
	FailureUnrecoverableDamage FailureReason = "unrecoverable_damage"
	// FailureMalformedPayload 字节已恢复但无法解析为预期结构（含版本不符）
	FailureMalformedPayload FailureReason = "malformed_payload"
	// FailureChecksumMismatch 结构解析成功但校验和不一致
	FailureChecksumMismatch FailureReason = "checksum_mismatch"
)

// DecodeRecord 单张截图一次恢复尝试的结果
// 创建后不可变；无论成功失败都追加到结果日志
type DecodeRecord struct {
	RecordID       string          `json:"record_id"`
	RunID          string          `json:"run_id"`
	SourceImage    string          `json:"source_image"`
	CapturedAt     string          `json:"captured_at"`
	ProcessedAt    string          `json:"processed_at"`
	ChecksumOK     bool            `json:"checksum_ok"`
	FailureReason  FailureReason   `json:"failure_reason,omitempty"`
	DecodedPayload *MonitorPayload `json:"decoded_payload,omitempty"`
}
