// Package websocket 实现实时推送通道的客户端
// conn_manager.go
// 核心职责：单条 WebSocket 连接的读写
// 1. 拨号建立连接 (Dial)
// 2. 读协程：读取文本帧 -> 解码 -> 交给 onFrame
// 3. 写协程：从 send 通道取帧写出，并定期发送 ping
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kama_chat_client/pkg/constants"
	"kama_chat_client/pkg/errorx"
)

// Dialer 实时通道拨号器
type Dialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Dial 建立连接并启动读写协程
func (d *Dialer) Dial(ctx context.Context, onFrame func(Frame)) (Transport, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = constants.HANDSHAKE_TIMEOUT
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		ReadBufferSize:   2048,
		WriteBufferSize:  2048,
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeTransportUnavailable, "dial %s", d.URL)
	}
	client := NewClient(conn, onFrame)
	zap.L().Info("ws连接成功", zap.String("url", d.URL))
	return client, nil
}

// Client 一条客户端 WebSocket 连接
type Client struct {
	conn      *websocket.Conn
	send      chan Frame
	done      chan struct{}
	onFrame   func(Frame)
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewClient 包装已建立的连接并启动读写协程
func NewClient(conn *websocket.Conn, onFrame func(Frame)) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan Frame, constants.SEND_BUFFER_SIZE),
		done:    make(chan struct{}),
		onFrame: onFrame,
	}
	go c.Read()
	go c.Write()
	return c
}

// Read 读取服务端推送
func (c *Client) Read() {
	zap.L().Debug("ws read goroutine start")
	c.conn.SetReadLimit(constants.WS_MAX_MESSAGE_SIZE)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WS_PONG_WAIT))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WS_PONG_WAIT))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		frame, err := DecodeFrame(raw)
		if err != nil {
			// 畸形帧直接丢弃，不断开连接
			zap.L().Warn("drop malformed frame", zap.Error(err), zap.Int("size", len(raw)))
			continue
		}
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}

// Write 将 send 通道中的帧写到连接上
func (c *Client) Write() {
	zap.L().Debug("ws write goroutine start")
	ticker := time.NewTicker(constants.WS_PING_PERIOD)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			data, err := json.Marshal(frame)
			if err != nil {
				zap.L().Error("encode frame failed", zap.String("event", frame.Event), zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WS_WRITE_WAIT))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WS_WRITE_WAIT))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send 异步发送一帧
func (c *Client) Send(f Frame) error {
	select {
	case <-c.done:
		return errorx.Wrapf(errorx.ErrTransportUnavailable, errorx.CodeTransportUnavailable, "send %s on closed connection", f.Event)
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errorx.Wrapf(errorx.ErrTransportUnavailable, errorx.CodeTransportUnavailable, "send %s on closed connection", f.Event)
	default:
		return errorx.Newf(errorx.CodeTransportUnavailable, "send buffer full, drop %s", f.Event)
	}
}

// Done 连接断开时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err 断开原因
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close 主动关闭，先尝试发送 close 帧
func (c *Client) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second),
	)
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if cause != nil && !isNormalClose(cause) {
			zap.L().Warn("ws connection lost", zap.Error(cause))
		}
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
