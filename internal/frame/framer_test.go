package frame_test

import (
	"fmt"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"wisefido-datamatrix/internal/frame"
	"wisefido-datamatrix/internal/models"
)

func samplePayload() *models.MonitorPayload {
	return &models.MonitorPayload{
		SchemaVersion: models.CurrentSchemaVersion,
		GeneratedAt:   "2026-08-28T09:30:00.000000Z",
		Sequence:      42,
		Beds: map[string]models.BedVitalsSnapshot{
			"BED01": {
				BedTS: "2026-08-28T09:29:58.000000Z",
				Vitals: map[string]models.VitalReading{
					"HR":   {Value: 72, Unit: "bpm", Flag: ""},
					"SPO2": {Value: 98, Unit: "%", Flag: "N"},
				},
			},
			"BED02": {
				BedTS: "2026-08-28T09:29:59.000000Z",
				Vitals: map[string]models.VitalReading{
					"TSKIN": {Value: 36.8, Unit: "Cel", Flag: "H"},
				},
			},
		},
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	framed, err := frame.Frame(samplePayload())
	require.NoError(t, err)
	require.Len(t, framed.Checksum, 8)
	require.Equal(t, strings.ToLower(framed.Checksum), framed.Checksum)

	require.True(t, frame.Verify(framed))
}

func TestFrame_DoesNotMutateInput(t *testing.T) {
	p := samplePayload()
	_, err := frame.Frame(p)
	require.NoError(t, err)
	require.Empty(t, p.Checksum)
}

func TestFrame_Deterministic(t *testing.T) {
	// 构造顺序不同、逻辑相等的两个载荷
	a := samplePayload()

	b := &models.MonitorPayload{
		SchemaVersion: models.CurrentSchemaVersion,
		GeneratedAt:   "2026-08-28T09:30:00.000000Z",
		Sequence:      42,
		Beds:          map[string]models.BedVitalsSnapshot{},
	}
	b.Beds["BED02"] = models.BedVitalsSnapshot{
		BedTS: "2026-08-28T09:29:59.000000Z",
		Vitals: map[string]models.VitalReading{
			"TSKIN": {Value: 36.8, Unit: "Cel", Flag: "H"},
		},
	}
	b.Beds["BED01"] = models.BedVitalsSnapshot{
		BedTS: "2026-08-28T09:29:58.000000Z",
		Vitals: map[string]models.VitalReading{
			"SPO2": {Value: 98, Unit: "%", Flag: "N"},
			"HR":   {Value: 72, Unit: "bpm", Flag: ""},
		},
	}

	sumA, err := frame.Checksum(a)
	require.NoError(t, err)
	sumB, err := frame.Checksum(b)
	require.NoError(t, err)
	require.Equal(t, sumA, sumB)
}

func TestVerify_CaseInsensitive(t *testing.T) {
	framed, err := frame.Frame(samplePayload())
	require.NoError(t, err)

	framed.Checksum = strings.ToUpper(framed.Checksum)
	require.True(t, frame.Verify(framed))
}

func TestVerify_DetectsTamper(t *testing.T) {
	framed, err := frame.Frame(samplePayload())
	require.NoError(t, err)

	tampered := *framed
	tampered.Sequence = framed.Sequence + 1
	require.False(t, frame.Verify(&tampered))
}

func TestVerify_MissingChecksum(t *testing.T) {
	require.False(t, frame.Verify(samplePayload()))
	require.False(t, frame.Verify(nil))
}

func TestChecksum_SensitiveToMutations(t *testing.T) {
	base, err := frame.Checksum(samplePayload())
	require.NoError(t, err)

	// 逐项修改字段值，校验和都应改变
	for i := 0; i < 50; i++ {
		p := samplePayload()
		bed := p.Beds["BED01"]
		v := bed.Vitals["HR"]
		v.Value = float64(60 + i + 1)
		bed.Vitals["HR"] = v
		p.Beds["BED01"] = bed

		sum, err := frame.Checksum(p)
		require.NoError(t, err)
		require.NotEqual(t, base, sum, "mutation %d should change checksum", i)
	}
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	framed, err := frame.Frame(samplePayload())
	require.NoError(t, err)

	raw, err := frame.Marshal(framed)
	require.NoError(t, err)

	parsed, err := frame.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, framed.Sequence, parsed.Sequence)
	require.Equal(t, framed.Checksum, parsed.Checksum)
	require.True(t, frame.Verify(parsed))
}

func TestUnmarshal_RejectsUnknownFields(t *testing.T) {
	raw := []byte(`{"v":1,"ts":"2026-08-28T09:30:00.000000Z","seq":1,"beds":{},"crc32":"00000000","patient_name":"YAMADA"}`)
	_, err := frame.Unmarshal(raw)
	require.Error(t, err)
}

func TestUnmarshal_RejectsWrongSchemaVersion(t *testing.T) {
	raw := []byte(fmt.Sprintf(`{"v":%d,"ts":"2026-08-28T09:30:00.000000Z","seq":1,"beds":{},"crc32":"00000000"}`, models.CurrentSchemaVersion+1))
	_, err := frame.Unmarshal(raw)
	require.Error(t, err)
}

func TestVerifyBytes_RoundTrip(t *testing.T) {
	framed, err := frame.Frame(samplePayload())
	require.NoError(t, err)

	raw, err := frame.Marshal(framed)
	require.NoError(t, err)
	require.True(t, frame.VerifyBytes(raw))
}

func TestVerifyBytes_PreservesNumberLiterals(t *testing.T) {
	// 其他生产端会把整数值写成 "72.0"；校验必须按接收到的字面量计算，
	// 不能经 float 再序列化成 "72"
	canonical := `{"beds":{"BED01":{"bed_ts":"2026-08-28T09:29:58.000000Z",` +
		`"vitals":{"HR":{"flag":"N","unit":"bpm","value":72.0}}}},` +
		`"seq":7,"ts":"2026-08-28T09:30:00.000000Z","v":1}`
	sum := fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(canonical)))

	raw := []byte(fmt.Sprintf(`{"v":1,"ts":"2026-08-28T09:30:00.000000Z","seq":7,`+
		`"beds":{"BED01":{"vitals":{"HR":{"value":72.0,"unit":"bpm","flag":"N"}},`+
		`"bed_ts":"2026-08-28T09:29:58.000000Z"}},"crc32":"%s"}`, sum))

	require.True(t, frame.VerifyBytes(raw))

	// 同一份字节仍能被严格解析为结构
	parsed, err := frame.Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, 72.0, parsed.Beds["BED01"].Vitals["HR"].Value)
}

func TestVerifyBytes_DetectsTamper(t *testing.T) {
	framed, err := frame.Frame(samplePayload())
	require.NoError(t, err)
	raw, err := frame.Marshal(framed)
	require.NoError(t, err)

	tampered := strings.Replace(string(raw), `"seq":42`, `"seq":43`, 1)
	require.False(t, frame.VerifyBytes([]byte(tampered)))
}

func TestVerifyBytes_RejectsInvalidInput(t *testing.T) {
	require.False(t, frame.VerifyBytes([]byte(`not json`)))
	require.False(t, frame.VerifyBytes([]byte(`{"v":1,"ts":"x","seq":1,"beds":{}}`)))
}

func TestUnmarshal_RejectsMissingFields(t *testing.T) {
	_, err := frame.Unmarshal([]byte(`{"v":1,"seq":1,"beds":{}}`))
	require.Error(t, err)

	_, err = frame.Unmarshal([]byte(`not json`))
	require.Error(t, err)
}
