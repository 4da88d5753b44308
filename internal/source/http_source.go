package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
)

// captureItem 采集服务返回的单条截图条目
type captureItem struct {
	ID         string `json:"id"`
	CapturedAt string `json:"captured_at"`
}

// HTTPSource 远端采集服务截图来源
// GET {base}/captures?limit=N 返回条目列表，GET {base}/captures/{id} 返回图像字节
type HTTPSource struct {
	client *resty.Client
}

// NewHTTPSource 创建远端采集服务客户端
func NewHTTPSource(baseURL string) *HTTPSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &HTTPSource{client: client}
}

var _ ImageSource = (*HTTPSource)(nil)

// List 列出远端最近 latestN 张截图，按采集时间升序
func (s *HTTPSource) List(ctx context.Context, latestN int) ([]CapturedImage, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", latestN)).
		Get("/captures")
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("capture server returned status %d", resp.StatusCode())
	}

	var items []captureItem
	if err := json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, fmt.Errorf("failed to parse capture list: %w", err)
	}

	images := make([]CapturedImage, 0, len(items))
	for _, item := range items {
		capturedAt, err := time.Parse(time.RFC3339, item.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid captured_at for %s: %w", item.ID, err)
		}
		images = append(images, CapturedImage{
			Ref:        item.ID,
			CapturedAt: capturedAt,
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].CapturedAt.Before(images[j].CapturedAt)
	})
	return images, nil
}

// Read 拉取单张截图的原始字节
func (s *HTTPSource) Read(ctx context.Context, ref string) ([]byte, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get("/captures/" + ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch capture %s: %w", ref, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("capture server returned status %d for %s", resp.StatusCode(), ref)
	}
	return resp.Body(), nil
}
