// Package websocket 实现实时推送通道的客户端
// bus.go
// 核心职责：按事件名分发入站帧
// 同一事件可以挂多个处理器，处理器以 (事件, 名称) 为键"注册或替换"，重连后重复注册不会叠加
package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"kama_chat_client/internal/infrastructure/metrics"
)

// Handler 事件处理器
type Handler func(data json.RawMessage) error

type namedHandler struct {
	name    string
	handler Handler
}

// Bus 事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]namedHandler)}
}

// On 注册或替换处理器
func (b *Bus) On(event, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i := range list {
		if list[i].name == name {
			list[i].handler = h
			return
		}
	}
	b.handlers[event] = append(list, namedHandler{name: name, handler: h})
}

// Off 注销处理器
func (b *Bus) Off(event, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i := range list {
		if list[i].name == name {
			b.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

// OffAll 注销某名称下的全部处理器
func (b *Bus) OffAll(name string) {
	b.mu.Lock()
	events := make([]string, 0, len(b.handlers))
	for event := range b.handlers {
		events = append(events, event)
	}
	b.mu.Unlock()
	for _, event := range events {
		b.Off(event, name)
	}
}

// Handlers 某事件当前挂载的处理器数量
func (b *Bus) Handlers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// Dispatch 依次调用该事件的全部处理器
// 每个处理器单独包裹：返回错误或 panic 都只会被记录，不影响兄弟处理器和后续事件
// 返回失败的处理器数量
func (b *Bus) Dispatch(f Frame) int {
	b.mu.RLock()
	list := append([]namedHandler(nil), b.handlers[f.Event]...)
	b.mu.RUnlock()

	if len(list) == 0 {
		zap.L().Debug("no handler for event", zap.String("event", f.Event))
		return 0
	}
	failed := 0
	for _, nh := range list {
		if err := safeCall(nh, f); err != nil {
			failed++
			zap.L().Warn("event dropped",
				zap.String("event", f.Event),
				zap.String("handler", nh.name),
				zap.Error(err),
			)
		}
	}
	return failed
}

func safeCall(nh namedHandler, f Frame) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.HandlerPanics.Inc()
			zap.L().Error("event handler panic",
				zap.String("event", f.Event),
				zap.String("handler", nh.name),
				zap.Any("recover", rec),
			)
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return nh.handler(f.Data)
}
