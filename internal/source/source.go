package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CapturedImage 一张已采集的截图引用（字节按需读取）
type CapturedImage struct {
	Ref        string
	CapturedAt time.Time
}

// ImageSource 截图来源
// List 返回按采集时间升序排列的最近 latestN 张；"选最近 N 张"属于采集端职责，
// 恢复流水线只依赖返回顺序
type ImageSource interface {
	List(ctx context.Context, latestN int) ([]CapturedImage, error)
	Read(ctx context.Context, ref string) ([]byte, error)
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// DirSource 本地目录截图来源（按 mtime 取最近 N 张）
// path 指向单个文件时仅返回该文件
type DirSource struct {
	path string
}

// NewDirSource 创建目录截图来源
func NewDirSource(path string) *DirSource {
	return &DirSource{path: path}
}

var _ ImageSource = (*DirSource)(nil)

// List 列出目录内最近 latestN 张截图，按采集时间升序
func (s *DirSource) List(ctx context.Context, latestN int) ([]CapturedImage, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input path: %w", err)
	}

	if !info.IsDir() {
		return []CapturedImage{{Ref: s.path, CapturedAt: info.ModTime()}}, nil
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input dir: %w", err)
	}

	var images []CapturedImage
	for _, entry := range entries {
		if entry.IsDir() || !imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		images = append(images, CapturedImage{
			Ref:        filepath.Join(s.path, entry.Name()),
			CapturedAt: fi.ModTime(),
		})
	}

	// 最新的 N 张，处理顺序按采集时间从旧到新
	sort.Slice(images, func(i, j int) bool {
		return images[i].CapturedAt.After(images[j].CapturedAt)
	})
	if latestN > 0 && len(images) > latestN {
		images = images[:latestN]
	}
	for i, j := 0, len(images)-1; i < j; i, j = i+1, j-1 {
		images[i], images[j] = images[j], images[i]
	}
	return images, nil
}

// Read 读取单张截图的原始字节
func (s *DirSource) Read(ctx context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", ref, err)
	}
	return data, nil
}
