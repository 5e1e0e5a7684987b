// Package websocket 实现实时推送通道的客户端
// frame.go
// 核心职责：定义线上帧格式与事件名
package websocket

import (
	"encoding/json"
	"strings"

	"kama_chat_client/pkg/errorx"
)

// 入站事件
const (
	EventConnected       = "connected"        // 服务端确认身份，连接建立
	EventTyping          = "typing"           // 对方开始输入
	EventStopTyping      = "stop typing"      // 对方停止输入
	EventMessageReceived = "message received" // 新消息送达
	EventNewStatus       = "new status"       // 联系人发布了新动态
)

// 出站事件
const (
	EventSetup    = "setup"     // 声明身份
	EventJoinChat = "join chat" // 加入会话房间
)

// Frame 线上帧，文本帧内容为 {"event": "...", "data": ...}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame 构造出站帧
func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, errorx.Wrapf(err, errorx.CodeInvalidParam, "encode %s payload", event)
	}
	return Frame{Event: event, Data: data}, nil
}

// DecodeFrame 解析入站文本帧
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, errorx.Wrap(err, errorx.CodeInvalidParam, "decode frame")
	}
	if strings.TrimSpace(f.Event) == "" {
		return Frame{}, errorx.New(errorx.CodeInvalidParam, "frame without event name")
	}
	return f, nil
}

// ConversationIdFrom 从事件数据中取会话 ID
// 兼容两种形态："chat_id" 字符串，或 {"chatId": "..."} / {"_id": "..."} 对象
func ConversationIdFrom(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		if id = strings.TrimSpace(id); id != "" {
			return id, nil
		}
		return "", errorx.New(errorx.CodeInvalidParam, "empty conversation id")
	}
	var obj struct {
		ChatId string `json:"chatId"`
		Id     string `json:"_id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", errorx.Wrap(err, errorx.CodeInvalidParam, "decode conversation id")
	}
	if obj.ChatId != "" {
		return obj.ChatId, nil
	}
	if obj.Id != "" {
		return obj.Id, nil
	}
	return "", errorx.New(errorx.CodeInvalidParam, "missing conversation id")
}
