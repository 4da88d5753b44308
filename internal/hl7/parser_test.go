package hl7

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var sampleORU = "MSH|^~\\&|CENTRAL|ICU|RECV|DM|20260828093000||ORU^R01|MSG0001|P|2.3\r" +
	"PID|1||SIM001||YAMADA^TARO||19600101|M\r" +
	"PV1|1|I|ICU^101^BED01\r" +
	"OBX|1|NM|HR^Heart Rate||72|bpm|60-160|N\r" +
	"OBX|2|NM|SpO2^Oxygen Saturation||98|%|85-100|N\r" +
	"OBX|3|NM|TSKIN^Skin Temp||36.8|Cel|34.0-39.5|H\r"

func TestParseMessage_Vitals(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	msg, err := ParseMessage(sampleORU, now)
	require.NoError(t, err)

	require.Equal(t, "BED01", msg.Bed)
	require.Equal(t, "2026-08-28T09:30:00.000000Z", msg.TS)
	require.Len(t, msg.Vitals, 3)

	hr := msg.Vitals["HR"]
	require.Equal(t, 72.0, hr.Value)
	require.Equal(t, "bpm", hr.Unit)
	require.Equal(t, "N", hr.Flag)

	// 观测代码统一大写
	spo2, ok := msg.Vitals["SPO2"]
	require.True(t, ok)
	require.Equal(t, 98.0, spo2.Value)

	tskin := msg.Vitals["TSKIN"]
	require.Equal(t, 36.8, tskin.Value)
	require.Equal(t, "H", tskin.Flag)
}

func TestParseMessage_PatientStaysOutOfVitals(t *testing.T) {
	msg, err := ParseMessage(sampleORU, time.Now())
	require.NoError(t, err)

	require.NotNil(t, msg.Patient)
	require.Equal(t, "SIM001", msg.Patient.PatientID)
	require.Equal(t, "YAMADA^TARO", msg.Patient.Name)

	state := msg.BedState()
	require.Equal(t, "BED01", state.BedID)
	require.NotNil(t, state.Patient)
	require.Len(t, state.Vitals, 3)
}

func TestParseMessage_RejectsNonNumericValues(t *testing.T) {
	raw := "MSH|^~\\&|CENTRAL|ICU\r" +
		"PV1|1|I|ICU^101^BED02\r" +
		"OBX|1|ST|RHYTHM^Rhythm||SINUS|--\r" +
		"OBX|2|NM|HR^Heart Rate||88|bpm||N\r"

	msg, err := ParseMessage(raw, time.Now())
	require.NoError(t, err)

	// 非数字观测被丢弃，数字观测保留
	require.Len(t, msg.Vitals, 1)
	require.Equal(t, 88.0, msg.Vitals["HR"].Value)
}

func TestParseMessage_MissingBed(t *testing.T) {
	raw := "MSH|^~\\&|CENTRAL|ICU\rOBX|1|NM|HR^Heart Rate||70|bpm||N\r"
	msg, err := ParseMessage(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, "UNKNOWN", msg.Bed)
}

func TestParseMessage_Empty(t *testing.T) {
	_, err := ParseMessage("", time.Now())
	require.Error(t, err)
}

func TestParseMessage_CRLFNormalization(t *testing.T) {
	raw := "MSH|^~\\&|CENTRAL|ICU\r\nPV1|1|I|ICU^101^BED03\r\nOBX|1|NM|HR^Heart Rate||65|bpm||N\r\n"
	msg, err := ParseMessage(raw, time.Now())
	require.NoError(t, err)
	require.Equal(t, "BED03", msg.Bed)
	require.Len(t, msg.Vitals, 1)
}

func TestExtractMLLPPayload(t *testing.T) {
	framed := append(append([]byte{0x0b}, []byte("MSH|^~\\&|X")...), 0x1c, 0x0d)
	require.Equal(t, "MSH|^~\\&|X", extractMLLPPayload(framed))

	require.Equal(t, "", extractMLLPPayload([]byte("no frame markers")))
	require.Equal(t, "", extractMLLPPayload([]byte{0x1c, 0x0d, 0x0b}))
}
