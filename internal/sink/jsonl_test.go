package sink_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-datamatrix/internal/models"
	"wisefido-datamatrix/internal/sink"
)

func sampleRecord(id string, capturedAt string) *models.DecodeRecord {
	return &models.DecodeRecord{
		RecordID:    id,
		RunID:       "run-1",
		SourceImage: "cap-" + id + ".png",
		CapturedAt:  capturedAt,
		ProcessedAt: "2026-08-28T10:00:00.000000Z",
		ChecksumOK:  true,
	}
}

func TestJSONLSink_PartitionByCaptureDate(t *testing.T) {
	root := t.TempDir()
	s := sink.NewJSONLSink(root, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, sampleRecord("a", "2026-08-28T09:30:00.000000Z")))
	require.NoError(t, s.Append(ctx, sampleRecord("b", "2026-08-29T00:10:00.000000Z")))

	for _, day := range []string{"20260828", "20260829"} {
		path := filepath.Join(root, day, "dm_results.jsonl")
		data, err := os.ReadFile(path)
		require.NoError(t, err, "expected partition %s", day)
		require.NotEmpty(t, data)
	}
}

func TestJSONLSink_AppendOnly(t *testing.T) {
	root := t.TempDir()
	s := sink.NewJSONLSink(root, zap.NewNop())
	ctx := context.Background()

	// 同一张图处理两次产生两行，sink 不去重
	rec := sampleRecord("a", "2026-08-28T09:30:00.000000Z")
	require.NoError(t, s.Append(ctx, rec))
	require.NoError(t, s.Append(ctx, rec))

	lines := readLines(t, filepath.Join(root, "20260828", "dm_results.jsonl"))
	require.Len(t, lines, 2)
	require.Equal(t, lines[0], lines[1])
}

func TestJSONLSink_SelfContainedLines(t *testing.T) {
	root := t.TempDir()
	s := sink.NewJSONLSink(root, zap.NewNop())

	rec := sampleRecord("a", "2026-08-28T09:30:00.000000Z")
	rec.DecodedPayload = &models.MonitorPayload{
		SchemaVersion: models.CurrentSchemaVersion,
		GeneratedAt:   "2026-08-28T09:29:59.000000Z",
		Sequence:      11,
		Beds:          map[string]models.BedVitalsSnapshot{},
		Checksum:      "0a1b2c3d",
	}
	require.NoError(t, s.Append(context.Background(), rec))

	lines := readLines(t, filepath.Join(root, "20260828", "dm_results.jsonl"))
	require.Len(t, lines, 1)

	var decoded models.DecodeRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	require.Equal(t, "a", decoded.RecordID)
	require.NotNil(t, decoded.DecodedPayload)
	require.Equal(t, uint64(11), decoded.DecodedPayload.Sequence)
}

func TestJSONLSink_ConcurrentAppends(t *testing.T) {
	root := t.TempDir()
	s := sink.NewJSONLSink(root, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := sampleRecord(fmt.Sprintf("r%d", i), "2026-08-28T09:30:00.000000Z")
			require.NoError(t, s.Append(ctx, rec))
		}(i)
	}
	wg.Wait()

	// 并发追加后每行仍是完整 JSON
	lines := readLines(t, filepath.Join(root, "20260828", "dm_results.jsonl"))
	require.Len(t, lines, 20)
	for _, line := range lines {
		var decoded models.DecodeRecord
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	}
}

func TestComposite_WritesAll(t *testing.T) {
	var a, b []*models.DecodeRecord
	writer := sink.Composite(
		sink.WriterFunc(func(ctx context.Context, r *models.DecodeRecord) error {
			a = append(a, r)
			return nil
		}),
		sink.WriterFunc(func(ctx context.Context, r *models.DecodeRecord) error {
			b = append(b, r)
			return nil
		}),
	)

	rec := sampleRecord("a", "2026-08-28T09:30:00.000000Z")
	require.NoError(t, writer.Append(context.Background(), rec))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
}

func TestComposite_StopsOnError(t *testing.T) {
	called := false
	writer := sink.Composite(
		sink.WriterFunc(func(ctx context.Context, r *models.DecodeRecord) error {
			return fmt.Errorf("disk full")
		}),
		sink.WriterFunc(func(ctx context.Context, r *models.DecodeRecord) error {
			called = true
			return nil
		}),
	)

	err := writer.Append(context.Background(), sampleRecord("a", "2026-08-28T09:30:00.000000Z"))
	require.Error(t, err)
	require.False(t, called)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}
