package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"

	"wisefido-datamatrix/internal/models"
)

// canonicalBytes 生成规范化字节序列：键递归排序的紧凑 JSON，不含 crc32
// encoding/json 对 map 按键排序输出，因此全部字段经由 map 显式构建，
// 保证逻辑相等的载荷得到逐字节相同的序列化结果
func canonicalBytes(p *models.MonitorPayload) ([]byte, error) {
	beds := make(map[string]interface{}, len(p.Beds))
	for bedID, bed := range p.Beds {
		vitals := make(map[string]interface{}, len(bed.Vitals))
		for code, v := range bed.Vitals {
			vitals[code] = map[string]interface{}{
				"value": v.Value,
				"unit":  v.Unit,
				"flag":  v.Flag,
			}
		}
		beds[bedID] = map[string]interface{}{
			"vitals": vitals,
			"bed_ts": bed.BedTS,
		}
	}

	canonical := map[string]interface{}{
		"v":    p.SchemaVersion,
		"ts":   p.GeneratedAt,
		"seq":  p.Sequence,
		"beds": beds,
	}
	return json.Marshal(canonical)
}

// Checksum 计算载荷的 CRC-32（IEEE，与 zlib.crc32 一致），返回 8 位小写十六进制
func Checksum(p *models.MonitorPayload) (string, error) {
	data, err := canonicalBytes(p)
	if err != nil {
		return "", fmt.Errorf("failed to build canonical bytes: %w", err)
	}
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)), nil
}

// Frame 计算校验和并写入副本的 crc32 字段，原载荷不被修改
func Frame(p *models.MonitorPayload) (*models.MonitorPayload, error) {
	sum, err := Checksum(p)
	if err != nil {
		return nil, err
	}
	framed := *p
	framed.Checksum = sum
	return &framed, nil
}

// Verify 以相同的规范化编码重新计算校验和并比较（大小写不敏感）
// 任何不一致都返回 false，不抛错；结构性解析失败由调用方单独上报
func Verify(p *models.MonitorPayload) bool {
	if p == nil || p.Checksum == "" {
		return false
	}
	expected, err := Checksum(p)
	if err != nil {
		return false
	}
	return strings.EqualFold(p.Checksum, expected)
}

// VerifyBytes 直接基于接收到的线格式字节重新计算校验和并比较
// 数字字面量经 json.Number 原样参与摘要，不做 float 再序列化；
// 其他生产端写出的 "72.0" 与本端写出的 "72" 都按各自原文校验
func VerifyBytes(data []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return false
	}

	received, ok := doc["crc32"].(string)
	if !ok || received == "" {
		return false
	}
	delete(doc, "crc32")

	canonical, err := json.Marshal(doc)
	if err != nil {
		return false
	}
	expected := fmt.Sprintf("%08x", crc32.ChecksumIEEE(canonical))
	return strings.EqualFold(received, expected)
}

// Marshal 载荷的线格式：紧凑 JSON，含 crc32
func Marshal(p *models.MonitorPayload) ([]byte, error) {
	return json.Marshal(p)
}

// Unmarshal 严格解析线格式
// 未知字段、版本不符、缺失必需字段一律拒绝，不做尽力而为的宽松转换
func Unmarshal(data []byte) (*models.MonitorPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p models.MonitorPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.SchemaVersion != models.CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version: %d", p.SchemaVersion)
	}
	if p.GeneratedAt == "" {
		return nil, fmt.Errorf("payload missing required field: ts")
	}
	if p.Checksum == "" {
		return nil, fmt.Errorf("payload missing required field: crc32")
	}
	return &p, nil
}
