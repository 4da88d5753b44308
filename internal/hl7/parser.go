package hl7

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"wisefido-datamatrix/internal/cache"
	"wisefido-datamatrix/internal/models"
)

// ParsedMessage 单条 ORU^R01 消息的解析结果（床位缓存入口格式）
// Patient 与 Vitals 分开携带：患者信息只进缓存，永远不进载荷
type ParsedMessage struct {
	Bed     string
	TS      string
	Patient *cache.PatientInfo
	Vitals  map[string]cache.VitalObservation
}

// BedState 转换为床位缓存条目
func (m *ParsedMessage) BedState() cache.BedState {
	return cache.BedState{
		BedID:     m.Bed,
		UpdatedAt: m.TS,
		Patient:   m.Patient,
		Vitals:    m.Vitals,
	}
}

// ParseMessage 解析最小化的 HL7 v2 ORU 消息
// PV1-3 第三分量为床位号，PID 为患者信息，OBX 为体征观测；
// 值无法解析为数字的 OBX 直接丢弃（强类型模型，不做宽松转换）
func ParseMessage(raw string, now time.Time) (*ParsedMessage, error) {
	normalized := strings.ReplaceAll(raw, "\r\n", "\r")
	var segments []string
	for _, seg := range strings.Split(normalized, "\r") {
		if strings.TrimSpace(seg) != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty hl7 message")
	}

	msg := &ParsedMessage{
		Bed:    "UNKNOWN",
		TS:     now.UTC().Format(models.TimestampLayout),
		Vitals: make(map[string]cache.VitalObservation),
	}

	for _, seg := range segments {
		fields := strings.Split(seg, "|")
		switch fields[0] {
		case "PV1":
			if len(fields) > 3 {
				parts := strings.Split(fields[3], "^")
				if len(parts) > 2 && parts[2] != "" {
					msg.Bed = parts[2]
				} else if fields[3] != "" {
					msg.Bed = fields[3]
				}
			}
		case "PID":
			patient := &cache.PatientInfo{}
			if len(fields) > 3 {
				patient.PatientID = fields[3]
			}
			if len(fields) > 5 {
				patient.Name = fields[5]
			}
			if len(fields) > 7 {
				patient.DOB = fields[7]
			}
			msg.Patient = patient
		case "OBX":
			code, obs, ok := parseOBX(fields)
			if ok {
				msg.Vitals[code] = obs
			}
		}
	}

	return msg, nil
}

// parseOBX 解析单条 OBX 段；字段不足或值非数字时返回 ok=false
func parseOBX(fields []string) (string, cache.VitalObservation, bool) {
	if len(fields) < 7 {
		return "", cache.VitalObservation{}, false
	}

	code := strings.ToUpper(strings.TrimSpace(strings.Split(fields[3], "^")[0]))
	if code == "" {
		return "", cache.VitalObservation{}, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64)
	if err != nil {
		return "", cache.VitalObservation{}, false
	}

	obs := cache.VitalObservation{
		Value: value,
		Unit:  strings.TrimSpace(fields[6]),
	}
	if len(fields) > 8 {
		obs.Flag = strings.TrimSpace(fields[8])
	}
	return code, obs, true
}
