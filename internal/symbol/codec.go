package symbol

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
)

// DataMatrix ECC200 144x144 符号名义上可承载 1556 个二进制码字，但接近满载的
// 多块交错符号在解码端的 Reed-Solomon 纠错无法稳定还原，载荷上限取解码端
// 必定能完整往返的保守值。载荷字节在进入符号前做 base64 包装，
// 保证任意字节串经任何 ECC200 编码器都可无损往返
const (
	// MaxPayloadBytes Encode 可接受的最大载荷字节数
	MaxPayloadBytes = 1000
	// minModulePixels 每模块最少渲染像素；密度再低解码端无法定位符号
	minModulePixels = 4
	// quietZoneModules 符号四周静区宽度（模块数）
	quietZoneModules = 2
)

var (
	// ErrPayloadTooLarge 载荷超出符号容量；调用方须先缩减载荷（如丢弃床位）
	ErrPayloadTooLarge = errors.New("payload too large for symbol capacity")
	// ErrSymbolNotFound 图像中未找到可识别的符号
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnrecoverableDamage 符号已定位但纠错无法恢复数据
	ErrUnrecoverableDamage = errors.New("symbol damage unrecoverable")
)

// EncodedSymbol 已编码的 DataMatrix 符号（模块栅格 + 期望渲染尺寸）
type EncodedSymbol struct {
	matrix *gozxing.BitMatrix
	size   int
}

// Width 渲染后的符号宽度（像素，含静区）
func (s *EncodedSymbol) Width() int {
	return (s.matrix.GetWidth() + 2*quietZoneModules) * s.moduleScale()
}

// Height 渲染后的符号高度（像素，含静区）
func (s *EncodedSymbol) Height() int {
	return (s.matrix.GetHeight() + 2*quietZoneModules) * s.moduleScale()
}

// Encode 将字节载荷编码为 DataMatrix 符号
// size 为期望的像素尺寸；实际渲染尺寸由模块数决定，每模块不低于
// minModulePixels，载荷越大符号越大，绝不压缩模块密度
func Encode(data []byte, size int) (*EncodedSymbol, error) {
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), MaxPayloadBytes)
	}

	text := base64.StdEncoding.EncodeToString(data)
	writer := datamatrix.NewDataMatrixWriter()
	// 以 1x1 请求得到模块级栅格，像素缩放在渲染阶段按模块数换算
	matrix, err := writer.Encode(text, gozxing.BarcodeFormat_DATA_MATRIX, 1, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode datamatrix: %w", err)
	}
	return &EncodedSymbol{matrix: matrix, size: size}, nil
}

// Decode 在图像中定位 DataMatrix 符号并还原原始字节
// 搜索范围以单次检测为界，不会在畸形图像上无限循环
func Decode(img *SymbolImage) ([]byte, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img.img)
	if err != nil {
		return nil, fmt.Errorf("failed to binarize image: %w", err)
	}

	reader := datamatrix.NewDataMatrixReader()
	result, err := reader.Decode(bmp, nil)
	if err != nil {
		return nil, mapDecodeError(err)
	}

	data, err := base64.StdEncoding.DecodeString(result.GetText())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transport encoding", ErrUnrecoverableDamage)
	}
	return data, nil
}

// mapDecodeError 将 gozxing 的异常归入固定的失败分类
func mapDecodeError(err error) error {
	if _, ok := err.(gozxing.NotFoundException); ok {
		return fmt.Errorf("%w: %v", ErrSymbolNotFound, err)
	}
	if _, ok := err.(gozxing.ChecksumException); ok {
		return fmt.Errorf("%w: %v", ErrUnrecoverableDamage, err)
	}
	if _, ok := err.(gozxing.FormatException); ok {
		return fmt.Errorf("%w: %v", ErrUnrecoverableDamage, err)
	}
	return fmt.Errorf("%w: %v", ErrSymbolNotFound, err)
}

// Compress zlib 压缩（级别 9，与既有监护端线格式一致）
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush zlib writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress zlib 解压
func Decompress(blob []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	return raw, nil
}
