package chat

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/gateway/websocket"
	"kama_chat_client/internal/infrastructure/metrics"
	"kama_chat_client/internal/model"
	"kama_chat_client/internal/service/ledger"
	"kama_chat_client/internal/service/registry"
	"kama_chat_client/pkg/enum/message/message_status_enum"
	"kama_chat_client/pkg/errorx"
)

// reconcilerHandler 事件总线上的处理器名称，重复 Attach 会替换而不是叠加
const reconcilerHandler = "reconciler"

// Outcome 一次 message received 的处理结果
type Outcome int

const (
	OutcomeAppended  Outcome = iota // 追加到当前打开的会话
	OutcomeNotified                 // 记录为未读通知
	OutcomeDuplicate                // 重复事件，已忽略
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAppended:
		return metrics.OutcomeApplied
	case OutcomeNotified:
		return metrics.OutcomeNotified
	default:
		return metrics.OutcomeDuplicate
	}
}

// Replayer 服务端确认身份后重放订阅
type Replayer interface {
	Established() int
}

// Reconciler 事件协调器
// 实时通道事件的唯一消费者，把线上事件翻译为注册表、账本和消息列表的修改
// 状态：Detached（尚未挂载处理器）/ Attached
type Reconciler struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	messages *MessageList
	typing   *TypingTracker
	applied  *appliedSet
	now      func() time.Time

	replayer Replayer
	attached bool

	// onChange 会话或未读变化后调用
	onChange func()
	// onStatus 收到 new status 时调用
	onStatus func()
}

// NewReconciler 创建协调器
func NewReconciler(reg *registry.Registry, led *ledger.Ledger, messages *MessageList, typing *TypingTracker) *Reconciler {
	return &Reconciler{
		registry: reg,
		ledger:   led,
		messages: messages,
		typing:   typing,
		applied:  newAppliedSet(),
		now:      time.Now,
	}
}

// Attach 在事件总线上注册处理器，进入 Attached
func (r *Reconciler) Attach(bus *websocket.Bus, replayer Replayer) {
	r.replayer = replayer
	bus.On(websocket.EventConnected, reconcilerHandler, r.onConnected)
	bus.On(websocket.EventTyping, reconcilerHandler, r.onTyping)
	bus.On(websocket.EventStopTyping, reconcilerHandler, r.onStopTyping)
	bus.On(websocket.EventMessageReceived, reconcilerHandler, r.onMessageReceived)
	bus.On(websocket.EventNewStatus, reconcilerHandler, r.onNewStatus)
	r.attached = true
}

// Detach 注销全部处理器，回到 Detached
func (r *Reconciler) Detach(bus *websocket.Bus) {
	bus.OffAll(reconcilerHandler)
	r.attached = false
	r.replayer = nil
}

// Attached 是否已挂载
func (r *Reconciler) Attached() bool {
	return r.attached
}

// MarkApplied 记录一条已知消息，之后同一会话内相同 ID 的推送视为重复
func (r *Reconciler) MarkApplied(conversationId, messageId string) {
	if conversationId != "" && messageId != "" {
		r.applied.Add(conversationId, messageId)
	}
}

// Reset 登出时清空去重缓存
func (r *Reconciler) Reset() {
	r.applied.Reset()
}

// HandleConnected connectionEstablished：标记已连接并重放订阅
func (r *Reconciler) HandleConnected() int {
	metrics.EventsTotal.WithLabelValues(websocket.EventConnected, metrics.OutcomeApplied).Inc()
	if r.replayer == nil {
		return 0
	}
	return r.replayer.Established()
}

// HandleTypingStarted 对方开始输入
func (r *Reconciler) HandleTypingStarted(conversationId string) {
	r.typing.Start(conversationId)
}

// HandleTypingStopped 对方停止输入
func (r *Reconciler) HandleTypingStopped(conversationId string) {
	r.typing.Stop(conversationId)
}

// HandleMessageDelivered messageDelivered
// conv 为事件携带的完整会话，可为 nil；会话未知且携带完整信息时先写入注册表
// 当前打开的会话：追加到消息列表；否则：记录未读通知
// 两种情况都会把会话移到列表顶部，排序时间戳按应用顺序生成
func (r *Reconciler) HandleMessageDelivered(msg model.Message, conv *model.Conversation) (Outcome, error) {
	if msg.Id == "" || msg.ConversationId == "" {
		metrics.EventsTotal.WithLabelValues(websocket.EventMessageReceived, metrics.OutcomeDropped).Inc()
		return OutcomeDuplicate, errorx.Newf(errorx.CodeInvalidParam, "message event missing id (message=%q conversation=%q)", msg.Id, msg.ConversationId)
	}

	if r.applied.Has(msg.ConversationId, msg.Id) || r.messages.Contains(msg.Id) || r.ledger.Has(msg.ConversationId, msg.Id) {
		r.logDuplicate(msg)
		return OutcomeDuplicate, nil
	}

	if conv != nil && conv.Id == msg.ConversationId && !r.registry.Has(conv.Id) {
		created := conv.Clone()
		created.LatestMessage = nil
		r.registry.Upsert(created)
	}

	var outcome Outcome
	if r.registry.IsSelected(msg.ConversationId) {
		if !r.messages.Append(msg) {
			r.logDuplicate(msg)
			return OutcomeDuplicate, nil
		}
		outcome = OutcomeAppended
	} else {
		r.ledger.Record(msg.ConversationId, msg.Id)
		outcome = OutcomeNotified
	}
	r.applied.Add(msg.ConversationId, msg.Id)
	r.registry.ApplyLatestMessage(msg.ConversationId, msg.Summary(r.registry.OrderStamp(r.now())))

	metrics.EventsTotal.WithLabelValues(websocket.EventMessageReceived, outcome.String()).Inc()
	zap.L().Debug("message applied",
		zap.String("event", websocket.EventMessageReceived),
		zap.String("message_id", msg.Id),
		zap.String("conversation_id", msg.ConversationId),
		zap.Stringer("outcome", outcome),
	)
	if r.onChange != nil {
		r.onChange()
	}
	return outcome, nil
}

func (r *Reconciler) logDuplicate(msg model.Message) {
	metrics.EventsTotal.WithLabelValues(websocket.EventMessageReceived, metrics.OutcomeDuplicate).Inc()
	zap.L().Debug("duplicate event ignored",
		zap.String("event", websocket.EventMessageReceived),
		zap.String("message_id", msg.Id),
		zap.String("conversation_id", msg.ConversationId),
		zap.Error(errorx.ErrDuplicateEventIgnored),
	)
}

// ==================== 事件总线处理器 ====================

func (r *Reconciler) onConnected(json.RawMessage) error {
	r.HandleConnected()
	return nil
}

func (r *Reconciler) onTyping(data json.RawMessage) error {
	id, err := websocket.ConversationIdFrom(data)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(websocket.EventTyping, metrics.OutcomeDropped).Inc()
		return err
	}
	r.HandleTypingStarted(id)
	metrics.EventsTotal.WithLabelValues(websocket.EventTyping, metrics.OutcomeApplied).Inc()
	return nil
}

func (r *Reconciler) onStopTyping(data json.RawMessage) error {
	id, err := websocket.ConversationIdFrom(data)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(websocket.EventStopTyping, metrics.OutcomeDropped).Inc()
		return err
	}
	r.HandleTypingStopped(id)
	metrics.EventsTotal.WithLabelValues(websocket.EventStopTyping, metrics.OutcomeApplied).Inc()
	return nil
}

func (r *Reconciler) onMessageReceived(data json.RawMessage) error {
	var payload respond.MessageRespond
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.EventsTotal.WithLabelValues(websocket.EventMessageReceived, metrics.OutcomeDropped).Inc()
		return errorx.Wrap(err, errorx.CodeInvalidParam, "decode message received")
	}
	msg := payload.ToMessage()
	msg.Status = message_status_enum.Delivered
	var conv *model.Conversation
	if payload.Chat.Complete() {
		c := payload.Chat.ToConversation()
		conv = &c
	}
	_, err := r.HandleMessageDelivered(msg, conv)
	return err
}

func (r *Reconciler) onNewStatus(json.RawMessage) error {
	metrics.EventsTotal.WithLabelValues(websocket.EventNewStatus, metrics.OutcomeApplied).Inc()
	if r.onStatus != nil {
		r.onStatus()
	}
	return nil
}
