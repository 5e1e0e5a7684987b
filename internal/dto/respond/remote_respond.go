package respond

import (
	"encoding/json"
	"strings"
	"time"

	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/enum/message/message_status_enum"
)

// UserRespond 服务端用户文档
// 使用位置:
//   - internal/dao/remote/client.go: Me, SearchContacts, StatusViewers
type UserRespond struct {
	Id       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// ToParticipant 转换为领域模型
func (u UserRespond) ToParticipant() model.Participant {
	return model.Participant{
		Id:       u.Id,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}

// UserRef 用户引用：可能是纯 ID 字符串，也可能是已展开的用户对象
type UserRef struct {
	UserRespond
}

func (u *UserRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		u.UserRespond = UserRespond{Id: id}
		return nil
	}
	var obj UserRespond
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	u.UserRespond = obj
	return nil
}

// ChatRespond 服务端会话文档
// 使用位置:
//   - internal/dao/remote/client.go: FetchChats, AccessChat
//   - internal/service/chat/reconciler.go: message received 事件内嵌的 chat
type ChatRespond struct {
	Id            string      `json:"_id"`
	ChatName      string      `json:"chatName"`
	IsGroupChat   bool        `json:"isGroupChat"`
	Users         []UserRef   `json:"users"`
	LatestMessage *MessageRef `json:"latestMessage"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Complete 是否携带完整会话信息（而不只是一个 ID）
func (c ChatRespond) Complete() bool {
	return c.Id != "" && len(c.Users) > 0
}

// ToConversation 转换为领域模型
// 初始排序使用服务端给出的最新消息时间
func (c ChatRespond) ToConversation() model.Conversation {
	conv := model.Conversation{
		Id:      c.Id,
		Name:    c.ChatName,
		IsGroup: c.IsGroupChat,
	}
	for _, u := range c.Users {
		conv.Participants = append(conv.Participants, u.ToParticipant())
	}
	if lm := c.LatestMessage; lm != nil && lm.Id != "" {
		at := lm.CreatedAt
		if at.IsZero() {
			at = c.UpdatedAt
		}
		conv.LatestMessage = &model.MessageSummary{
			MessageId: lm.Id,
			SenderId:  lm.Sender.Id,
			Snippet:   model.Snippet(lm.Content),
			Timestamp: at,
		}
	}
	return conv
}

// ChatRef 会话引用：可能是纯 ID 字符串，也可能是完整会话对象
type ChatRef struct {
	ChatRespond
}

func (c *ChatRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		c.ChatRespond = ChatRespond{Id: id}
		return nil
	}
	var obj ChatRespond
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.ChatRespond = obj
	return nil
}

// MessageRespond 服务端消息文档
// 使用位置:
//   - internal/dao/remote/client.go: FetchMessages, SendMessage
//   - internal/service/chat/reconciler.go: message received 事件
type MessageRespond struct {
	Id        string    `json:"_id"`
	Sender    UserRef   `json:"sender"`
	Content   string    `json:"content"`
	Chat      ChatRef   `json:"chat"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToMessage 转换为领域模型，服务端返回的消息视为已发送
func (m MessageRespond) ToMessage() model.Message {
	return model.Message{
		Id:             m.Id,
		ConversationId: m.Chat.Id,
		SenderId:       m.Sender.Id,
		SenderName:     m.Sender.Username,
		Body:           m.Content,
		CreatedAt:      m.CreatedAt,
		Status:         message_status_enum.Sent,
	}
}

// MessageRef 最新消息引用，兼容未展开的纯 ID
type MessageRef struct {
	MessageRespond
}

func (m *MessageRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		m.MessageRespond = MessageRespond{Id: id}
		return nil
	}
	var obj MessageRespond
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	m.MessageRespond = obj
	return nil
}

// StatusRespond 服务端动态文档
type StatusRespond struct {
	Id        string    `json:"_id"`
	User      UserRef   `json:"user"`
	Media     string    `json:"media"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToStory 转换为领域模型，按扩展名区分视频与图片
func (s StatusRespond) ToStory() model.Story {
	kind := "image"
	lower := strings.ToLower(s.Media)
	if strings.HasSuffix(lower, ".mp4") || strings.HasSuffix(lower, ".webm") {
		kind = "video"
	}
	return model.Story{
		Id:        s.Id,
		Url:       s.Media,
		Type:      kind,
		Caption:   s.Caption,
		CreatedAt: s.CreatedAt,
	}
}

// MeRespond GET /user/me
type MeRespond struct {
	User UserRespond `json:"user"`
}

// ViewersRespond GET /status/viewers/{id}
type ViewersRespond struct {
	Viewers []UserRespond `json:"viewers"`
}
