// Package load_state_enum 定义列表加载的三态（外加初始的空闲态）
package load_state_enum

const (
	Idle    = 0 // 尚未请求
	Loading = 1 // 请求中
	Ready   = 2 // 已就绪
	Error   = 3 // 请求失败
)

// Name 返回状态的字符串形式
func Name(state int8) string {
	switch state {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "idle"
	}
}
