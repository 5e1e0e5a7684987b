package constants

import "time"

const (
	CHANNEL_SIZE         = 100  // 事件循环任务通道大小
	SEND_BUFFER_SIZE     = 64   // websocket 写协程缓冲大小
	SNIPPET_MAX_RUNES    = 80   // 会话列表中最新消息摘要的最大字符数
	PERSIST_WORKERS      = 1    // 快照持久化 Worker 数量，快照必须按提交顺序落盘
	DEFAULT_REQUEST_SECS = 10   // REST 请求默认超时（秒）

	TYPING_STOP_AFTER   = 3 * time.Second        // 停止输入后自动发送 stop typing 的间隔
	RECONNECT_INITIAL   = 500 * time.Millisecond // 断线重连初始退避
	RECONNECT_MAX       = 30 * time.Second       // 断线重连最大退避
	HANDSHAKE_TIMEOUT   = 10 * time.Second       // websocket 握手超时
	WS_WRITE_WAIT       = 10 * time.Second       // 单帧写超时
	WS_PONG_WAIT        = 60 * time.Second       // 等待 pong 的最长时间
	WS_PING_PERIOD      = 54 * time.Second       // ping 发送周期，需小于 WS_PONG_WAIT
	WS_MAX_MESSAGE_SIZE = 1 << 20                // 单帧最大字节数
)
