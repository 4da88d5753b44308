package symbol

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
)

// SymbolImage 待解码的截图（或其裁剪区域）
type SymbolImage struct {
	img image.Image
}

// LoadImage 从原始字节解析图像（支持 png/jpeg/bmp）
func LoadImage(data []byte) (*SymbolImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &SymbolImage{img: img}, nil
}

// Width 图像宽度（像素）
func (s *SymbolImage) Width() int {
	return s.img.Bounds().Dx()
}

// Height 图像高度（像素）
func (s *SymbolImage) Height() int {
	return s.img.Bounds().Dy()
}

// CropBottomRight 裁剪右下角 roi x roi 区域（符号的固定显示位置）
// roi 不小于图像尺寸时返回原图
func (s *SymbolImage) CropBottomRight(roi int) *SymbolImage {
	b := s.img.Bounds()
	if roi <= 0 || (roi >= b.Dx() && roi >= b.Dy()) {
		return s
	}

	left := b.Max.X - roi
	if left < b.Min.X {
		left = b.Min.X
	}
	top := b.Max.Y - roi
	if top < b.Min.Y {
		top = b.Min.Y
	}

	rect := image.Rect(left, top, b.Max.X, b.Max.Y)
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), s.img, rect.Min, draw.Src)
	return &SymbolImage{img: cropped}
}

// moduleScale 每模块渲染像素数：期望尺寸按模块数（含静区）折算，
// 不低于 minModulePixels
func (s *EncodedSymbol) moduleScale() int {
	modules := s.matrix.GetWidth()
	if h := s.matrix.GetHeight(); h > modules {
		modules = h
	}
	scale := s.size / (modules + 2*quietZoneModules)
	if scale < minModulePixels {
		scale = minModulePixels
	}
	return scale
}

// Image 将符号渲染为灰度位图，每模块 moduleScale 像素，四周留静区
func (s *EncodedSymbol) Image() image.Image {
	cols := s.matrix.GetWidth()
	rows := s.matrix.GetHeight()
	scale := s.moduleScale()

	w := (cols + 2*quietZoneModules) * scale
	h := (rows + 2*quietZoneModules) * scale
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	off := quietZoneModules * scale
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if !s.matrix.Get(x, y) {
				continue
			}
			block := image.Rect(off+x*scale, off+y*scale, off+(x+1)*scale, off+(y+1)*scale)
			draw.Draw(img, block, &image.Uniform{C: color.Gray{Y: 0}}, image.Point{}, draw.Src)
		}
	}
	return img
}

// PNG 将符号渲染为 PNG 字节（交给显示端）
func (s *EncodedSymbol) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode symbol png: %w", err)
	}
	return buf.Bytes(), nil
}
