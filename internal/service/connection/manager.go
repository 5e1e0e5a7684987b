// Package connection 管理实时通道的生命周期
// 状态机：Disconnected -> Connecting -> Identified，掉线后进入 RetryPending 并按指数退避自动重连
// 订阅集合只增不减，每次服务端确认身份后整体重放一次，只有登出（Disconnect）才会清空
package connection

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"kama_chat_client/internal/gateway/websocket"
	"kama_chat_client/internal/infrastructure/metrics"
	"kama_chat_client/pkg/constants"
	"kama_chat_client/pkg/errorx"
)

// State 连接状态
type State int32

const (
	Disconnected State = iota
	Connecting
	Identified
	RetryPending
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Identified:
		return "identified"
	case RetryPending:
		return "retry_pending"
	default:
		return "unknown"
	}
}

// Options 重连参数
type Options struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Manager 连接生命周期管理器
type Manager struct {
	dial    websocket.DialFunc
	onFrame func(websocket.Frame)
	opts    Options

	mu          sync.Mutex
	state       State
	userId      string
	transport   websocket.Transport
	established bool // 服务端已回复 connected
	subs        map[string]struct{}
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager 创建管理器，onFrame 接收全部入站帧
func NewManager(dial websocket.DialFunc, onFrame func(websocket.Frame), opts Options) *Manager {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = constants.RECONNECT_INITIAL
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = constants.RECONNECT_MAX
	}
	return &Manager{
		dial:    dial,
		onFrame: onFrame,
		opts:    opts,
		subs:    make(map[string]struct{}),
	}
}

// Connect 以 userId 身份建立连接
// 同一用户已处于 Connecting/Identified/RetryPending 时不做任何事，避免重复发送 setup
// 换用户时先按登出处理旧会话
func (m *Manager) Connect(ctx context.Context, userId string) error {
	if userId == "" {
		return errorx.New(errorx.CodeInvalidParam, "connect without user id")
	}
	for {
		m.mu.Lock()
		if m.state != Disconnected && m.userId == userId {
			state := m.state
			m.mu.Unlock()
			zap.L().Debug("connect ignored, session already active", zap.String("user_id", userId), zap.Stringer("state", state))
			return nil
		}
		if m.state == Disconnected {
			break
		}
		m.mu.Unlock()
		m.Disconnect()
	}
	// 仍持有锁：检查与启动之间不会有其他 Connect 插入
	defer m.mu.Unlock()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.userId = userId
	m.state = Connecting
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx, userId, m.done)
	return nil
}

// Disconnect 登出：断开连接并清空订阅集合
// 网络抖动不会走到这里，掉线由 run 自动重连
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done, tr := m.cancel, m.done, m.transport
	m.cancel, m.done, m.transport = nil, nil, nil
	m.state = Disconnected
	m.userId = ""
	m.established = false
	m.subs = make(map[string]struct{})
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tr != nil {
		_ = tr.Close()
	}
	if done != nil {
		<-done
	}
	zap.L().Info("realtime session torn down")
}

// Established 服务端确认身份后调用，重放全部订阅，返回发送的 join 数量
func (m *Manager) Established() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil {
		zap.L().Warn("connected event without transport")
		return 0
	}
	m.state = Identified
	m.established = true
	sent := 0
	for _, id := range m.sortedSubsLocked() {
		if err := m.sendLocked(websocket.EventJoinChat, id); err != nil {
			zap.L().Warn("replay join failed", zap.String("conversation_id", id), zap.Error(err))
			continue
		}
		sent++
	}
	zap.L().Info("subscriptions replayed", zap.Int("count", sent))
	return sent
}

// EnsureSubscribed 加入会话房间
// 已确认身份时立即发送 join，否则只记录，等下一次 Established 重放
func (m *Manager) EnsureSubscribed(conversationId string) error {
	if conversationId == "" {
		return errorx.New(errorx.CodeInvalidParam, "subscribe without conversation id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[conversationId]; ok {
		return nil
	}
	m.subs[conversationId] = struct{}{}
	if !m.established {
		zap.L().Debug("join deferred", zap.String("conversation_id", conversationId))
		return nil
	}
	return m.sendLocked(websocket.EventJoinChat, conversationId)
}

// Emit 发送交互类消息（typing 等），未确认身份时直接拒绝
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Identified || m.transport == nil {
		return errorx.Wrapf(errorx.ErrTransportUnavailable, errorx.CodeTransportUnavailable, "emit %s while %s", event, m.state)
	}
	return m.sendLocked(event, payload)
}

// State 当前状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected 是否已收到服务端确认
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.established
}

// UserId 当前会话身份
func (m *Manager) UserId() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userId
}

// Subscriptions 订阅集合快照，按会话 ID 排序
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedSubsLocked()
}

func (m *Manager) run(ctx context.Context, userId string, done chan struct{}) {
	defer close(done)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.InitialInterval
	bo.MaxInterval = m.opts.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		tr, err := m.dial(ctx, m.onFrame)
		if err == nil {
			if !m.attach(ctx, tr, userId) {
				_ = tr.Close()
				return
			}
			bo.Reset()
			select {
			case <-ctx.Done():
				return
			case <-tr.Done():
			}
			err = tr.Err()
			m.detach(ctx, tr)
		}
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		zap.L().Warn("realtime transport unavailable, retrying",
			zap.String("user_id", userId),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		metrics.ReconnectsTotal.Inc()
		m.transition(ctx, Connecting)
	}
}

// attach 挂上新连接并发送 setup
func (m *Manager) attach(ctx context.Context, tr websocket.Transport, userId string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	m.transport = tr
	m.established = false
	if err := m.sendLocked(websocket.EventSetup, userId); err != nil {
		zap.L().Warn("setup emit failed", zap.Error(err))
		return true
	}
	m.state = Identified
	zap.L().Info("realtime transport identified", zap.String("user_id", userId))
	return true
}

func (m *Manager) detach(ctx context.Context, tr websocket.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil || m.transport != tr {
		return
	}
	m.transport = nil
	m.established = false
	m.state = RetryPending
}

func (m *Manager) transition(ctx context.Context, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	m.state = s
}

func (m *Manager) sendLocked(event string, payload any) error {
	if m.transport == nil {
		return errorx.Wrapf(errorx.ErrTransportUnavailable, errorx.CodeTransportUnavailable, "emit %s without transport", event)
	}
	f, err := websocket.NewFrame(event, payload)
	if err != nil {
		return err
	}
	return m.transport.Send(f)
}

func (m *Manager) sortedSubsLocked() []string {
	list := make([]string, 0, len(m.subs))
	for id := range m.subs {
		list = append(list, id)
	}
	slices.Sort(list)
	return list
}
