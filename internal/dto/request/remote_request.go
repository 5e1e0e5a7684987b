package request

// ChatCreateRequest POST /chat/create
type ChatCreateRequest struct {
	UserId string `json:"userId"`
}

// MessageSendRequest POST /message/send
type MessageSendRequest struct {
	Content string `json:"content"`
	ChatId  string `json:"chatId"`
}
