package pipeline_test

import (
	"context"
	"fmt"
	"time"

	"wisefido-datamatrix/internal/source"
)

// fakeImageSource 仅用于单元测试（内存截图来源）
type fakeImageSource struct {
	images []source.CapturedImage
	data   map[string][]byte
	onRead func()
}

func newFakeImageSource() *fakeImageSource {
	return &fakeImageSource{
		data: make(map[string][]byte),
	}
}

func (f *fakeImageSource) refName(i int) string {
	return fmt.Sprintf("cap-%d.png", i)
}

func (f *fakeImageSource) add(ref string, capturedAt time.Time, data []byte) {
	f.images = append(f.images, source.CapturedImage{Ref: ref, CapturedAt: capturedAt})
	f.data[ref] = data
}

func (f *fakeImageSource) List(ctx context.Context, latestN int) ([]source.CapturedImage, error) {
	if latestN > 0 && len(f.images) > latestN {
		return f.images[len(f.images)-latestN:], nil
	}
	return f.images, nil
}

func (f *fakeImageSource) Read(ctx context.Context, ref string) ([]byte, error) {
	data, ok := f.data[ref]
	if !ok {
		return nil, fmt.Errorf("no such image: %s", ref)
	}
	if f.onRead != nil {
		f.onRead()
	}
	return data, nil
}

// failingSource List 失败（模拟配置级错误）
type failingSource struct{}

func (failingSource) List(ctx context.Context, latestN int) ([]source.CapturedImage, error) {
	return nil, fmt.Errorf("capture dir unavailable")
}

func (failingSource) Read(ctx context.Context, ref string) ([]byte, error) {
	return nil, fmt.Errorf("capture dir unavailable")
}
