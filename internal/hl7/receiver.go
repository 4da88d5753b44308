package hl7

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"wisefido-datamatrix/internal/cache"
)

// MLLP 帧定界符
var (
	mllpStart = []byte{0x0b}
	mllpEnd   = []byte{0x1c, 0x0d}
	mllpAck   = []byte("MSA|AA|OK")
)

// Receiver MLLP/TCP 接收端，解析 ORU 消息并写入床位缓存
type Receiver struct {
	addr   string
	cache  cache.BedCache
	logger *zap.Logger
}

// NewReceiver 创建 HL7 接收端
func NewReceiver(addr string, bedCache cache.BedCache, logger *zap.Logger) *Receiver {
	return &Receiver{
		addr:   addr,
		cache:  bedCache,
		logger: logger,
	}
}

// Start 监听并处理连接，直到 ctx 取消
func (r *Receiver) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.addr, err)
	}

	r.logger.Info("HL7 receiver listening", zap.String("addr", r.addr))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("failed to accept connection: %w", err)
			}
		}
		go r.handleConn(ctx, conn)
	}
}

// handleConn 处理单个连接：一次 MLLP 帧，解析入缓存后回 ACK
func (r *Receiver) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		r.logger.Warn("Failed to read from connection", zap.Error(err))
		return
	}

	message := extractMLLPPayload(buf[:n])
	if message == "" {
		r.logger.Warn("Dropped malformed MLLP frame",
			zap.String("remote", conn.RemoteAddr().String()),
		)
		return
	}

	parsed, err := ParseMessage(message, time.Now())
	if err != nil {
		r.logger.Warn("Failed to parse HL7 message", zap.Error(err))
		return
	}

	if err := r.cache.Update(ctx, parsed.BedState()); err != nil {
		r.logger.Error("Failed to update bed cache",
			zap.String("bed", parsed.Bed),
			zap.Error(err),
		)
		return
	}

	r.logger.Debug("Updated bed from HL7 message",
		zap.String("bed", parsed.Bed),
		zap.Int("vitals", len(parsed.Vitals)),
	)

	ack := append(append(append([]byte{}, mllpStart...), mllpAck...), mllpEnd...)
	if _, err := conn.Write(ack); err != nil {
		r.logger.Warn("Failed to write ACK", zap.Error(err))
	}
}

// extractMLLPPayload 提取 0x0B ... 0x1C0x0D 之间的消息体
func extractMLLPPayload(data []byte) string {
	start := bytes.Index(data, mllpStart)
	end := bytes.Index(data, mllpEnd)
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return string(data[start+1 : end])
}
