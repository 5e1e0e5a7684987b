package websocket

import "context"

// Transport 一条已建立的实时连接
// 用于解耦连接生命周期管理与 gorilla/websocket 的具体实现
type Transport interface {
	// Send 异步发送一帧，连接不可用时返回 TransportUnavailable
	Send(f Frame) error
	// Done 连接断开（无论主动还是被动）时关闭
	Done() <-chan struct{}
	// Err 连接断开的原因，主动关闭时为 nil
	Err() error
	// Close 主动关闭连接
	Close() error
}

// DialFunc 建立连接，onFrame 在读协程中按到达顺序被调用
type DialFunc func(ctx context.Context, onFrame func(Frame)) (Transport, error)
