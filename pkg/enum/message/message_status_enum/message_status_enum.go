// Package message_status_enum 定义消息投递状态
// 仅供界面展示使用，属于尽力而为的状态
package message_status_enum

const (
	Pending   = 0 // 本地乐观消息，等待服务端确认
	Sent      = 1 // 服务端已确认
	Delivered = 2 // 已推送到对方
	Read      = 3 // 对方已读
	Failed    = 4 // 发送失败，保留在列表中供重试
)

// Name 返回状态的字符串形式
func Name(status int8) string {
	switch status {
	case Pending:
		return "pending"
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
