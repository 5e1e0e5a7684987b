// engine.go
// 核心职责：客户端状态核心的单线程事件循环
// 1. 注册表、账本、消息列表、输入状态只在 Run 所在的协程中读写
// 2. 推送帧按到达顺序投递到循环中，经事件总线分发
// 3. 网络请求在循环外执行，结果再投递回循环
package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/gateway/websocket"
	"kama_chat_client/internal/infrastructure/metrics"
	"kama_chat_client/internal/infrastructure/worker"
	"kama_chat_client/internal/model"
	"kama_chat_client/internal/service/connection"
	"kama_chat_client/internal/service/ledger"
	"kama_chat_client/internal/service/registry"
	"kama_chat_client/pkg/constants"
	"kama_chat_client/pkg/enum/load_state_enum"
	"kama_chat_client/pkg/enum/message/message_status_enum"
	"kama_chat_client/pkg/errorx"
	"kama_chat_client/pkg/util/snowflake"
)

// Remote 远端服务中聊天核心依赖的部分
type Remote interface {
	FetchChats(ctx context.Context) ([]respond.ChatRespond, error)
	AccessChat(ctx context.Context, userId string) (*respond.ChatRespond, error)
	FetchMessages(ctx context.Context, chatId string) ([]respond.MessageRespond, error)
	SendMessage(ctx context.Context, chatId, content string) (*respond.MessageRespond, error)
}

// Session 实时通道，由 connection.Manager 实现
type Session interface {
	Connect(ctx context.Context, userId string) error
	Disconnect()
	Established() int
	EnsureSubscribed(conversationId string) error
	Emit(event string, payload any) error
	State() connection.State
	Connected() bool
	Subscriptions() []string
}

// SnapshotStore 本地快照存储，由 dao/sqlite 与 dao/redis 实现
type SnapshotStore interface {
	Save(ctx context.Context, snap model.Snapshot) error
	Load(ctx context.Context, userId string) (*model.Snapshot, error)
}

// Options 引擎参数
type Options struct {
	// TypingStopAfter 最后一次输入后自动发送 stop typing 的间隔
	TypingStopAfter time.Duration
	// Store 为 nil 时不做持久化
	Store SnapshotStore
	// Pool 快照异步落盘使用的任务池，为 nil 时同步保存
	Pool *worker.Pool
	Now  func() time.Time
}

// ConversationsState 会话列表的只读视图
type ConversationsState struct {
	State         int8
	Err           error
	Conversations []model.Conversation
	Unread        map[string]int
	Selected      string
}

// SessionInfo 当前身份与连接状态
type SessionInfo struct {
	UserId        string
	State         connection.State
	Connected     bool
	Subscriptions []string
	Selected      string
}

// Engine 客户端状态核心
type Engine struct {
	remote  Remote
	session Session
	bus     *websocket.Bus
	opts    Options

	tasks   chan func()
	stopped chan struct{}
	runCtx  context.Context

	// 以下字段只在事件循环中访问
	selfId     string
	registry   *registry.Registry
	ledger     *ledger.Ledger
	messages   *MessageList
	typing     *TypingTracker
	reconciler *Reconciler
	convState  int8
	convErr    error

	localTyping  bool
	typingFor    string
	typingTimer  *time.Timer
	typingSerial uint64

	statusHooks []func()
}

// NewEngine 创建引擎，需调用 Run 启动事件循环
func NewEngine(remote Remote, opts Options) *Engine {
	if opts.TypingStopAfter <= 0 {
		opts.TypingStopAfter = constants.TYPING_STOP_AFTER
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		remote:   remote,
		bus:      websocket.NewBus(),
		opts:     opts,
		tasks:    make(chan func(), constants.CHANNEL_SIZE),
		stopped:  make(chan struct{}),
		runCtx:   context.Background(),
		registry: registry.New(""),
		ledger:   ledger.New(),
		messages: NewMessageList(),
		typing:   NewTypingTracker(),
	}
	e.reconciler = NewReconciler(e.registry, e.ledger, e.messages, e.typing)
	e.reconciler.now = opts.Now
	e.reconciler.onChange = e.changed
	e.reconciler.onStatus = e.fireStatusHooks
	e.registry.OnSelect(e.onSelect)
	return e
}

// UseSession 注入实时通道，需在 Run 之前调用
func (e *Engine) UseSession(s Session) {
	e.session = s
}

// Bus 事件总线，供其他模块挂载自己的处理器
func (e *Engine) Bus() *websocket.Bus {
	return e.bus
}

// OnNewStatus 注册 new status 事件的回调，回调在独立协程中执行
func (e *Engine) OnNewStatus(hook func()) {
	e.statusHooks = append(e.statusHooks, hook)
}

// Run 事件循环，ctx 结束时返回
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	defer close(e.stopped)
	zap.L().Info("chat engine started")
	for {
		select {
		case <-ctx.Done():
			e.messages.Clear()
			e.stopTypingTimer()
			zap.L().Info("chat engine stopped")
			return ctx.Err()
		case task := <-e.tasks:
			task()
		}
	}
}

// Dispatch 投递一帧入站推送，保持到达顺序
// 由传输层的读协程调用
func (e *Engine) Dispatch(f websocket.Frame) {
	if err := e.post(context.Background(), func() { e.bus.Dispatch(f) }); err != nil {
		zap.L().Warn("engine stopped, frame dropped", zap.String("event", f.Event))
	}
}

func (e *Engine) post(ctx context.Context, task func()) error {
	select {
	case e.tasks <- task:
		return nil
	case <-e.stopped:
		return errorx.Wrap(errorx.ErrServerBusy, errorx.CodeServerBusy, "chat engine stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do 在事件循环中执行 fn 并等待完成
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.post(ctx, func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return errorx.Wrap(errorx.ErrServerBusy, errorx.CodeServerBusy, "chat engine stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// query 在事件循环中读取一个值
func query[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var out T
	err := e.do(ctx, func() { out = fn() })
	return out, err
}

// ==================== 会话身份 ====================

// Connect 以 userId 登录：切换本地状态、挂载事件处理器并建立实时连接
func (e *Engine) Connect(ctx context.Context, userId string) error {
	if userId == "" {
		return errorx.New(errorx.CodeInvalidParam, "connect without user id")
	}
	if err := e.do(ctx, func() {
		if e.selfId != userId {
			e.resetLocked(userId)
		}
		e.reconciler.Attach(e.bus, e.session)
	}); err != nil {
		return err
	}
	if e.session == nil {
		return errorx.Wrap(errorx.ErrTransportUnavailable, errorx.CodeTransportUnavailable, "no realtime session configured")
	}
	return e.session.Connect(ctx, userId)
}

// Logout 断开实时连接并清空全部本地状态
func (e *Engine) Logout(ctx context.Context) error {
	if e.session != nil {
		e.session.Disconnect()
	}
	return e.do(ctx, func() {
		e.reconciler.Detach(e.bus)
		e.resetLocked("")
		zap.L().Info("logged out")
	})
}

// SelfId 当前登录用户
func (e *Engine) SelfId(ctx context.Context) (string, error) {
	return query(ctx, e, func() string { return e.selfId })
}

// SessionInfo 身份与连接状态
func (e *Engine) SessionInfo(ctx context.Context) (SessionInfo, error) {
	info, err := query(ctx, e, func() SessionInfo {
		selected, _ := e.registry.Selected()
		return SessionInfo{UserId: e.selfId, Selected: selected}
	})
	if err != nil || e.session == nil {
		return info, err
	}
	info.State = e.session.State()
	info.Connected = e.session.Connected()
	info.Subscriptions = e.session.Subscriptions()
	return info, nil
}

func (e *Engine) resetLocked(userId string) {
	e.stopTypingTimer()
	e.localTyping = false
	e.typingFor = ""
	e.selfId = userId
	e.registry.Reset(userId)
	e.ledger.Reset()
	e.messages.Clear()
	e.typing.Reset()
	e.reconciler.Reset()
	e.convState = load_state_enum.Idle
	e.convErr = nil
	metrics.UnreadTotal.Set(0)
}

// ==================== 快照 ====================

// Hydrate 从本地快照恢复会话列表和未读通知，返回恢复的会话数
// 没有快照时返回 0
func (e *Engine) Hydrate(ctx context.Context) (int, error) {
	if e.opts.Store == nil {
		return 0, nil
	}
	userId, err := e.SelfId(ctx)
	if err != nil {
		return 0, err
	}
	if userId == "" {
		return 0, errorx.Wrap(errorx.ErrUnauthorized, errorx.CodeUnauthorized, "hydrate before connect")
	}
	snap, err := e.opts.Store.Load(ctx, userId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return query(ctx, e, func() int {
		if e.selfId != snap.UserId {
			return 0
		}
		restored := 0
		for _, c := range snap.Conversations {
			if e.registry.Upsert(c) {
				restored++
			}
		}
		for _, n := range snap.Notifications {
			if e.registry.IsSelected(n.ConversationId) {
				continue
			}
			if e.ledger.Record(n.ConversationId, n.MessageId) {
				e.reconciler.MarkApplied(n.ConversationId, n.MessageId)
			}
		}
		metrics.UnreadTotal.Set(float64(e.ledger.TotalCount()))
		zap.L().Info("snapshot restored",
			zap.String("user_id", snap.UserId),
			zap.Int("conversations", restored),
			zap.Int("notifications", e.ledger.TotalCount()),
		)
		return restored
	})
}

// changed 会话或未读变化后刷新指标并异步保存快照
func (e *Engine) changed() {
	metrics.UnreadTotal.Set(float64(e.ledger.TotalCount()))
	if e.opts.Store == nil || e.selfId == "" {
		return
	}
	snap := model.Snapshot{
		UserId:        e.selfId,
		Conversations: e.registry.OrderedList(),
		Notifications: e.ledger.Entries(),
		SavedAt:       e.opts.Now(),
	}
	save := func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DEFAULT_REQUEST_SECS*time.Second)
		defer cancel()
		if err := e.opts.Store.Save(ctx, snap); err != nil {
			zap.L().Warn("snapshot save failed", zap.String("user_id", snap.UserId), zap.Error(err))
		}
	}
	if e.opts.Pool != nil {
		e.opts.Pool.Submit(save)
		return
	}
	save()
}

// ==================== 会话列表 ====================

// LoadConversations 拉取会话列表并合并进注册表
func (e *Engine) LoadConversations(ctx context.Context) error {
	if err := e.do(ctx, func() {
		e.convState = load_state_enum.Loading
		e.convErr = nil
	}); err != nil {
		return err
	}
	chats, fetchErr := e.remote.FetchChats(ctx)
	if err := e.do(context.WithoutCancel(ctx), func() {
		if fetchErr != nil {
			e.convState = load_state_enum.Error
			e.convErr = fetchErr
			zap.L().Warn("load conversations failed", zap.Error(fetchErr))
			return
		}
		for _, c := range chats {
			e.registry.Upsert(c.ToConversation())
		}
		e.convState = load_state_enum.Ready
		e.changed()
		zap.L().Info("conversations loaded", zap.Int("count", len(chats)))
	}); err != nil {
		return err
	}
	return fetchErr
}

// AccessConversation 打开（必要时创建）与 otherUserId 的单聊，并选中它
func (e *Engine) AccessConversation(ctx context.Context, otherUserId string) (model.Conversation, error) {
	if strings.TrimSpace(otherUserId) == "" {
		return model.Conversation{}, errorx.New(errorx.CodeInvalidParam, "access conversation without user id")
	}
	chat, err := e.remote.AccessChat(ctx, otherUserId)
	if err != nil {
		return model.Conversation{}, err
	}
	var (
		conv      model.Conversation
		selectErr error
	)
	err = e.do(context.WithoutCancel(ctx), func() {
		e.registry.Upsert(chat.ToConversation())
		selectErr = e.registry.Select(chat.Id)
		conv, _ = e.registry.Get(chat.Id)
		e.changed()
	})
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, selectErr
}

// SelectConversation 打开会话：清空其未读、拉取历史、加入会话房间
func (e *Engine) SelectConversation(ctx context.Context, conversationId string) error {
	var selectErr error
	if err := e.do(ctx, func() {
		selectErr = e.registry.Select(conversationId)
	}); err != nil {
		return err
	}
	return selectErr
}

// DeselectConversation 关闭当前会话
func (e *Engine) DeselectConversation(ctx context.Context) error {
	return e.do(ctx, func() {
		e.stopLocalTyping()
		e.registry.Deselect()
		e.messages.Clear()
	})
}

// onSelect 与选中指针的修改在同一个任务中同步执行
func (e *Engine) onSelect(conversationId string) {
	if e.localTyping && e.typingFor != conversationId {
		e.stopLocalTyping()
	}
	if removed := e.ledger.Clear(conversationId); removed > 0 {
		zap.L().Debug("notifications cleared", zap.String("conversation_id", conversationId), zap.Int("count", removed))
	}
	e.changed()
	e.startFetch(conversationId)
	if e.session != nil {
		if err := e.session.EnsureSubscribed(conversationId); err != nil {
			zap.L().Warn("join conversation failed", zap.String("conversation_id", conversationId), zap.Error(err))
		}
	}
}

// startFetch 拉取历史消息，结果按 (会话, 代号) 校验后才会写入
func (e *Engine) startFetch(conversationId string) {
	fetchCtx, cancel := context.WithCancel(e.runCtx)
	generation := e.messages.Begin(conversationId, cancel)
	go func() {
		defer cancel()
		list, err := e.remote.FetchMessages(fetchCtx, conversationId)
		postErr := e.post(context.Background(), func() {
			if err != nil {
				if e.messages.FailFetch(conversationId, generation, err) {
					zap.L().Warn("fetch messages failed", zap.String("conversation_id", conversationId), zap.Error(err))
				}
				return
			}
			msgs := make([]model.Message, 0, len(list))
			for _, m := range list {
				msgs = append(msgs, m.ToMessage())
			}
			if !e.messages.ApplyFetch(conversationId, generation, msgs) {
				zap.L().Debug("stale fetch discarded", zap.String("conversation_id", conversationId), zap.Uint64("generation", generation))
				return
			}
			for _, m := range msgs {
				e.reconciler.MarkApplied(conversationId, m.Id)
			}
		})
		if postErr != nil {
			zap.L().Debug("fetch result dropped", zap.Error(postErr))
		}
	}()
}

// OrderedConversations 按最新消息倒序排列的会话
func (e *Engine) OrderedConversations(ctx context.Context) ([]model.Conversation, error) {
	return query(ctx, e, e.registry.OrderedList)
}

// ConversationsState 会话列表、加载状态与每个会话的未读数
func (e *Engine) ConversationsState(ctx context.Context) (ConversationsState, error) {
	return query(ctx, e, func() ConversationsState {
		list := e.registry.OrderedList()
		unread := make(map[string]int, len(list))
		for _, c := range list {
			if n := e.ledger.CountFor(c.Id); n > 0 {
				unread[c.Id] = n
			}
		}
		selected, _ := e.registry.Selected()
		return ConversationsState{
			State:         e.convState,
			Err:           e.convErr,
			Conversations: list,
			Unread:        unread,
			Selected:      selected,
		}
	})
}

// ConversationCount 已知会话数量
func (e *Engine) ConversationCount(ctx context.Context) (int, error) {
	return query(ctx, e, e.registry.Len)
}

// LookupParticipant 在单聊中查找用户资料
func (e *Engine) LookupParticipant(ctx context.Context, userId string) (model.Participant, bool, error) {
	type result struct {
		p  model.Participant
		ok bool
	}
	r, err := query(ctx, e, func() result {
		p, ok := e.registry.FindParticipant(userId)
		return result{p, ok}
	})
	return r.p, r.ok, err
}

// ==================== 未读 ====================

// UnreadCountFor 某会话未读数
func (e *Engine) UnreadCountFor(ctx context.Context, conversationId string) (int, error) {
	return query(ctx, e, func() int { return e.ledger.CountFor(conversationId) })
}

// TotalUnreadCount 全部未读数
func (e *Engine) TotalUnreadCount(ctx context.Context) (int, error) {
	return query(ctx, e, e.ledger.TotalCount)
}

// Notifications 全部未读通知
func (e *Engine) Notifications(ctx context.Context) ([]model.Notification, error) {
	return query(ctx, e, e.ledger.Entries)
}

// ==================== 消息 ====================

// Messages 当前打开会话的消息列表
func (e *Engine) Messages(ctx context.Context) (MessagesState, error) {
	return query(ctx, e, e.messages.Snapshot)
}

// SendMessage 在当前打开的会话中发送消息
// 先追加一条乐观消息，服务端确认后就地替换为正式消息；失败时标记为 failed 并返回 NetworkRequestFailed
func (e *Engine) SendMessage(ctx context.Context, body string) (model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return model.Message{}, errorx.New(errorx.CodeInvalidParam, "empty message body")
	}
	var (
		pending  model.Message
		stateErr error
	)
	if err := e.do(ctx, func() {
		conversationId, ok := e.registry.Selected()
		if !ok {
			stateErr = errorx.Wrap(errorx.ErrNoSelection, errorx.CodeNoSelection, "send without an open conversation")
			return
		}
		e.stopLocalTyping()
		localId := snowflake.GenerateIDString()
		pending = model.Message{
			Id:             localId,
			LocalId:        localId,
			ConversationId: conversationId,
			SenderId:       e.selfId,
			Body:           body,
			CreatedAt:      e.opts.Now(),
			Status:         message_status_enum.Pending,
		}
		e.messages.Append(pending)
	}); err != nil {
		return model.Message{}, err
	}
	if stateErr != nil {
		return model.Message{}, stateErr
	}

	resp, sendErr := e.remote.SendMessage(ctx, pending.ConversationId, body)
	var result model.Message
	err := e.do(context.WithoutCancel(ctx), func() {
		if sendErr != nil {
			e.messages.FailPending(pending.LocalId)
			result = pending
			result.Status = message_status_enum.Failed
			zap.L().Warn("send message failed", zap.String("conversation_id", pending.ConversationId), zap.Error(sendErr))
			return
		}
		confirmed := resp.ToMessage()
		if confirmed.ConversationId == "" {
			confirmed.ConversationId = pending.ConversationId
		}
		e.messages.Promote(pending.LocalId, confirmed)
		e.reconciler.MarkApplied(confirmed.ConversationId, confirmed.Id)
		e.registry.ApplyLatestMessage(confirmed.ConversationId, confirmed.Summary(e.registry.OrderStamp(e.opts.Now())))
		e.changed()
		confirmed.LocalId = pending.LocalId
		result = confirmed
	})
	if err != nil {
		return result, err
	}
	if sendErr != nil {
		if !errorx.HasCode(sendErr, errorx.CodeNetworkRequestFailed) {
			sendErr = errorx.Wrap(sendErr, errorx.CodeNetworkRequestFailed, "send message")
		}
		return result, sendErr
	}
	return result, nil
}

// ==================== 输入状态 ====================

// StartTyping 通知对方正在输入，并重置自动停止计时器
func (e *Engine) StartTyping(ctx context.Context) error {
	var typingErr error
	if err := e.do(ctx, func() {
		conversationId, ok := e.registry.Selected()
		if !ok {
			typingErr = errorx.Wrap(errorx.ErrNoSelection, errorx.CodeNoSelection, "typing without an open conversation")
			return
		}
		if !e.localTyping || e.typingFor != conversationId {
			if err := e.emit(websocket.EventTyping, conversationId); err != nil {
				typingErr = err
				return
			}
			e.localTyping = true
			e.typingFor = conversationId
		}
		e.armTypingTimer()
	}); err != nil {
		return err
	}
	return typingErr
}

// StopTyping 通知对方停止输入
func (e *Engine) StopTyping(ctx context.Context) error {
	var typingErr error
	if err := e.do(ctx, func() {
		conversationId, ok := e.registry.Selected()
		if !ok {
			typingErr = errorx.Wrap(errorx.ErrNoSelection, errorx.CodeNoSelection, "stop typing without an open conversation")
			return
		}
		e.stopTypingTimer()
		e.localTyping = false
		e.typingFor = ""
		typingErr = e.emit(websocket.EventStopTyping, conversationId)
	}); err != nil {
		return err
	}
	return typingErr
}

// IsPeerTyping 对方是否正在输入
func (e *Engine) IsPeerTyping(ctx context.Context, conversationId string) (bool, error) {
	return query(ctx, e, func() bool { return e.typing.IsTyping(conversationId) })
}

// stopLocalTyping 本地处于输入状态时发送 stop typing，忽略通道不可用
func (e *Engine) stopLocalTyping() {
	if !e.localTyping {
		return
	}
	if err := e.emit(websocket.EventStopTyping, e.typingFor); err != nil {
		zap.L().Debug("stop typing not delivered", zap.Error(err))
	}
	e.stopTypingTimer()
	e.localTyping = false
	e.typingFor = ""
}

func (e *Engine) armTypingTimer() {
	e.stopTypingTimer()
	e.typingSerial++
	serial := e.typingSerial
	e.typingTimer = time.AfterFunc(e.opts.TypingStopAfter, func() {
		_ = e.post(context.Background(), func() {
			if serial == e.typingSerial {
				e.stopLocalTyping()
			}
		})
	})
}

func (e *Engine) stopTypingTimer() {
	if e.typingTimer != nil {
		e.typingTimer.Stop()
		e.typingTimer = nil
	}
}

func (e *Engine) emit(event string, payload any) error {
	if e.session == nil {
		return errorx.Wrapf(errorx.ErrTransportUnavailable, errorx.CodeTransportUnavailable, "emit %s without session", event)
	}
	return e.session.Emit(event, payload)
}

func (e *Engine) fireStatusHooks() {
	for _, hook := range e.statusHooks {
		go hook()
	}
}
