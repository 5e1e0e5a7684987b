package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"kama_chat_client/internal/dto/respond"
	"kama_chat_client/internal/gateway/websocket"
	"kama_chat_client/internal/model"
	"kama_chat_client/internal/service/connection"
	"kama_chat_client/pkg/enum/load_state_enum"
	"kama_chat_client/pkg/enum/message/message_status_enum"
	"kama_chat_client/pkg/errorx"
)

// ==================== 测试替身 ====================

type fakeRemote struct {
	mu       sync.Mutex
	chats    []respond.ChatRespond
	history  map[string][]respond.MessageRespond
	gates    map[string]chan struct{}
	sendGate chan struct{}
	sendErr  error
	sendId   string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		history: make(map[string][]respond.MessageRespond),
		gates:   make(map[string]chan struct{}),
	}
}

func (r *fakeRemote) FetchChats(ctx context.Context) ([]respond.ChatRespond, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chats, nil
}

func (r *fakeRemote) AccessChat(ctx context.Context, userId string) (*respond.ChatRespond, error) {
	return &respond.ChatRespond{
		Id:    "chat_" + userId,
		Users: []respond.UserRef{{UserRespond: respond.UserRespond{Id: "self"}}, {UserRespond: respond.UserRespond{Id: userId, Username: "peer"}}},
	}, nil
}

// FetchMessages 不理会 ctx，用于验证结果本身会按会话和代号被丢弃
func (r *fakeRemote) FetchMessages(ctx context.Context, chatId string) ([]respond.MessageRespond, error) {
	r.mu.Lock()
	gate := r.gates[chatId]
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[chatId], nil
}

func (r *fakeRemote) SendMessage(ctx context.Context, chatId, content string) (*respond.MessageRespond, error) {
	if r.sendGate != nil {
		<-r.sendGate
	}
	if r.sendErr != nil {
		return nil, r.sendErr
	}
	out := &respond.MessageRespond{Id: r.sendId, Content: content}
	out.Chat.Id = chatId
	out.Sender.Id = "self"
	return out, nil
}

func remoteMsg(id, chatId string) respond.MessageRespond {
	m := respond.MessageRespond{Id: id, Content: "body " + id}
	m.Chat.Id = chatId
	return m
}

type emitted struct {
	event   string
	payload any
}

type fakeSession struct {
	mu         sync.Mutex
	identified bool
	emits      []emitted
	subs       []string
	connects   int
}

func (s *fakeSession) Connect(ctx context.Context, userId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return nil
}
func (s *fakeSession) Disconnect() {}
func (s *fakeSession) Established() int {
	return 0
}
func (s *fakeSession) EnsureSubscribed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, id)
	return nil
}
func (s *fakeSession) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.identified {
		return errorx.Wrap(errorx.ErrTransportUnavailable, errorx.CodeTransportUnavailable, "not identified")
	}
	s.emits = append(s.emits, emitted{event, payload})
	return nil
}
func (s *fakeSession) State() connection.State { return connection.Identified }
func (s *fakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identified
}
func (s *fakeSession) Subscriptions() []string { return nil }

func (s *fakeSession) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.emits {
		if e.event == event {
			n++
		}
	}
	return n
}

type memStore struct {
	mu    sync.Mutex
	snaps map[string]model.Snapshot
	saves int
}

func (m *memStore) Save(ctx context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snaps == nil {
		m.snaps = make(map[string]model.Snapshot)
	}
	m.snaps[snap.UserId] = snap
	m.saves++
	return nil
}

func (m *memStore) Load(ctx context.Context, userId string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[userId]
	if !ok {
		return nil, errorx.New(errorx.CodeNotFound, "none")
	}
	return &snap, nil
}

func startEngine(t *testing.T, remote Remote, opts Options) (*Engine, *fakeSession) {
	t.Helper()
	e := NewEngine(remote, opts)
	sess := &fakeSession{identified: true}
	e.UseSession(sess)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	if err := e.Connect(context.Background(), "self"); err != nil {
		t.Fatal(err)
	}
	return e, sess
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func pushMessage(t *testing.T, e *Engine, id, chatId, body string) {
	t.Helper()
	data, _ := json.Marshal(map[string]any{
		"_id": id, "content": body, "sender": map[string]string{"_id": "u2", "username": "bob"},
		"chat": map[string]any{"_id": chatId},
	})
	e.Dispatch(websocket.Frame{Event: websocket.EventMessageReceived, Data: data})
}

func seedChats(r *fakeRemote, ids ...string) {
	for _, id := range ids {
		r.chats = append(r.chats, respond.ChatRespond{
			Id:    id,
			Users: []respond.UserRef{{UserRespond: respond.UserRespond{Id: "self"}}, {UserRespond: respond.UserRespond{Id: "u_" + id}}},
		})
	}
}

// ==================== 用例 ====================

func TestEngineNotificationThenSelect(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "c1")
	e, _ := startEngine(t, remote, Options{})
	ctx := context.Background()
	if err := e.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}

	pushMessage(t, e, "m1", "c1", "hi")
	if n, _ := e.UnreadCountFor(ctx, "c1"); n != 1 {
		t.Fatalf("countFor = %d", n)
	}
	list, _ := e.OrderedConversations(ctx)
	if len(list) != 1 || list[0].Id != "c1" {
		t.Fatalf("ordered = %+v", list)
	}

	if err := e.SelectConversation(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := e.UnreadCountFor(ctx, "c1"); n != 0 {
		t.Fatalf("countFor after select = %d", n)
	}
	if n, _ := e.TotalUnreadCount(ctx); n != 0 {
		t.Fatalf("total after select = %d", n)
	}
}

func TestEngineSelectUnknownConversation(t *testing.T) {
	e, _ := startEngine(t, newFakeRemote(), Options{})
	err := e.SelectConversation(context.Background(), "nope")
	if !errors.Is(err, errorx.ErrUnknownConversation) {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineDuplicatePushToFocusedConversation(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "c1")
	e, sess := startEngine(t, remote, Options{})
	ctx := context.Background()
	_ = e.LoadConversations(ctx)
	_ = e.SelectConversation(ctx, "c1")
	eventually(t, "history loaded", func() bool {
		s, _ := e.Messages(ctx)
		return s.State == load_state_enum.Ready
	})

	pushMessage(t, e, "m1", "c1", "hi")
	pushMessage(t, e, "m1", "c1", "hi")
	s, _ := e.Messages(ctx)
	sameIds(t, s.Messages, "m1")

	sess.mu.Lock()
	subs := append([]string(nil), sess.subs...)
	sess.mu.Unlock()
	if len(subs) != 1 || subs[0] != "c1" {
		t.Fatalf("subscriptions = %v", subs)
	}
}

func TestEngineStaleFetchDiscarded(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "a", "b")
	gateA, gateB := make(chan struct{}), make(chan struct{})
	remote.gates["a"], remote.gates["b"] = gateA, gateB
	remote.history["a"] = []respond.MessageRespond{remoteMsg("a1", "a"), remoteMsg("a2", "a")}
	remote.history["b"] = []respond.MessageRespond{remoteMsg("b1", "b")}

	e, _ := startEngine(t, remote, Options{})
	ctx := context.Background()
	_ = e.LoadConversations(ctx)
	_ = e.SelectConversation(ctx, "a")
	_ = e.SelectConversation(ctx, "b")

	close(gateB)
	eventually(t, "b loaded", func() bool {
		s, _ := e.Messages(ctx)
		return s.State == load_state_enum.Ready
	})
	close(gateA)
	time.Sleep(50 * time.Millisecond)

	s, _ := e.Messages(ctx)
	if s.ConversationId != "b" {
		t.Fatalf("list belongs to %s", s.ConversationId)
	}
	sameIds(t, s.Messages, "b1")
}

func TestEngineOptimisticSendWithEarlyEcho(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "c1", "c2")
	remote.sendGate = make(chan struct{})
	remote.sendId = "m_srv"
	e, sess := startEngine(t, remote, Options{})
	ctx := context.Background()
	_ = e.LoadConversations(ctx)
	_ = e.SelectConversation(ctx, "c1")
	eventually(t, "history loaded", func() bool {
		s, _ := e.Messages(ctx)
		return s.State == load_state_enum.Ready
	})
	_ = e.StartTyping(ctx)

	type sendResult struct {
		m   model.Message
		err error
	}
	results := make(chan sendResult, 1)
	go func() {
		m, err := e.SendMessage(ctx, "hello")
		results <- sendResult{m, err}
	}()

	eventually(t, "pending entry", func() bool {
		s, _ := e.Messages(ctx)
		return len(s.Messages) == 1 && s.Messages[0].Status == message_status_enum.Pending
	})
	if sess.count(websocket.EventStopTyping) != 1 {
		t.Fatal("send did not stop typing first")
	}
	// 服务端推送的回显先于请求返回
	pushMessage(t, e, "m_srv", "c1", "hello")
	close(remote.sendGate)

	res := <-results
	if res.err != nil || res.m.Id != "m_srv" || res.m.LocalId == "" {
		t.Fatalf("send = %+v, %v", res.m, res.err)
	}
	s, _ := e.Messages(ctx)
	sameIds(t, s.Messages, "m_srv")
	if s.Messages[0].Status != message_status_enum.Sent {
		t.Fatalf("status = %s", s.Messages[0].StatusName())
	}

	// 之后迟到的相同推送也是重复
	pushMessage(t, e, "m_srv", "c1", "hello")
	s, _ = e.Messages(ctx)
	if len(s.Messages) != 1 {
		t.Fatalf("late echo appended: %v", messageIds(s.Messages))
	}
	list, _ := e.OrderedConversations(ctx)
	if list[0].Id != "c1" {
		t.Fatalf("sent conversation not on top: %s", list[0].Id)
	}
}

func TestEngineFailedSendStaysFailed(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "c1")
	remote.sendErr = errorx.New(errorx.CodeNetworkRequestFailed, "boom")
	e, _ := startEngine(t, remote, Options{})
	ctx := context.Background()
	_ = e.LoadConversations(ctx)
	_ = e.SelectConversation(ctx, "c1")

	m, err := e.SendMessage(ctx, "hello")
	if !errors.Is(err, errorx.ErrNetworkRequestFailed) {
		t.Fatalf("err = %v", err)
	}
	if m.Status != message_status_enum.Failed {
		t.Fatalf("status = %s", m.StatusName())
	}
	s, _ := e.Messages(ctx)
	if len(s.Messages) != 1 || s.Messages[0].Status != message_status_enum.Failed {
		t.Fatalf("list = %+v", s.Messages)
	}
}

func TestEngineSendWithoutSelection(t *testing.T) {
	e, _ := startEngine(t, newFakeRemote(), Options{})
	if _, err := e.SendMessage(context.Background(), "hi"); !errors.Is(err, errorx.ErrNoSelection) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.SendMessage(context.Background(), "  "); !errorx.HasCode(err, errorx.CodeInvalidParam) {
		t.Fatalf("err = %v", err)
	}
}

func TestEngineTypingRequiresTransportAndAutoStops(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "c1")
	e, sess := startEngine(t, remote, Options{TypingStopAfter: 30 * time.Millisecond})
	ctx := context.Background()
	_ = e.LoadConversations(ctx)
	_ = e.SelectConversation(ctx, "c1")

	_ = e.StartTyping(ctx)
	_ = e.StartTyping(ctx)
	if sess.count(websocket.EventTyping) != 1 {
		t.Fatalf("typing emits = %d, want 1", sess.count(websocket.EventTyping))
	}
	eventually(t, "auto stop", func() bool { return sess.count(websocket.EventStopTyping) == 1 })

	sess.mu.Lock()
	sess.identified = false
	sess.mu.Unlock()
	if err := e.StartTyping(ctx); !errors.Is(err, errorx.ErrTransportUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnginePeerTyping(t *testing.T) {
	e, _ := startEngine(t, newFakeRemote(), Options{})
	ctx := context.Background()
	e.Dispatch(websocket.Frame{Event: websocket.EventTyping, Data: json.RawMessage(`"c1"`)})
	if typing, _ := e.IsPeerTyping(ctx, "c1"); !typing {
		t.Fatal("peer typing not set")
	}
	e.Dispatch(websocket.Frame{Event: websocket.EventStopTyping, Data: json.RawMessage(`"c1"`)})
	if typing, _ := e.IsPeerTyping(ctx, "c1"); typing {
		t.Fatal("peer typing not cleared")
	}
}

func TestEngineAccessConversation(t *testing.T) {
	e, _ := startEngine(t, newFakeRemote(), Options{})
	ctx := context.Background()
	conv, err := e.AccessConversation(ctx, "u7")
	if err != nil {
		t.Fatal(err)
	}
	peer, ok := conv.Peer()
	if conv.Id != "chat_u7" || !ok || peer.Id != "u7" {
		t.Fatalf("conversation = %+v", conv)
	}
	info, _ := e.SessionInfo(ctx)
	if info.Selected != "chat_u7" {
		t.Fatalf("selected = %q", info.Selected)
	}
	p, found, _ := e.LookupParticipant(ctx, "u7")
	if !found || p.Username != "peer" {
		t.Fatalf("participant = %+v, %v", p, found)
	}
}

func TestEnginePersistsAndHydrates(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "c1", "c2")
	store := &memStore{}
	e, _ := startEngine(t, remote, Options{Store: store})
	ctx := context.Background()
	_ = e.LoadConversations(ctx)
	pushMessage(t, e, "m1", "c2", "hi")
	_, _ = e.TotalUnreadCount(ctx)

	store.mu.Lock()
	snap := store.snaps["self"]
	store.mu.Unlock()
	if len(snap.Conversations) != 2 || snap.Conversations[0].Id != "c2" || len(snap.Notifications) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	fresh, _ := startEngine(t, newFakeRemote(), Options{Store: store})
	n, err := fresh.Hydrate(ctx)
	if err != nil || n != 2 {
		t.Fatalf("hydrate = %d, %v", n, err)
	}
	if total, _ := fresh.TotalUnreadCount(ctx); total != 1 {
		t.Fatalf("restored unread = %d", total)
	}
	list, _ := fresh.OrderedConversations(ctx)
	if list[0].Id != "c2" {
		t.Fatalf("restored order = %s first", list[0].Id)
	}
	// 恢复的通知不会被同一条推送再记一次
	pushMessage(t, fresh, "m1", "c2", "hi")
	if total, _ := fresh.TotalUnreadCount(ctx); total != 1 {
		t.Fatalf("unread after replayed push = %d", total)
	}
}

func TestEngineLogoutClearsState(t *testing.T) {
	remote := newFakeRemote()
	seedChats(remote, "c1")
	e, _ := startEngine(t, remote, Options{})
	ctx := context.Background()
	_ = e.LoadConversations(ctx)
	pushMessage(t, e, "m1", "c1", "hi")

	if err := e.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := e.ConversationCount(ctx); n != 0 {
		t.Fatalf("conversations after logout = %d", n)
	}
	if n, _ := e.TotalUnreadCount(ctx); n != 0 {
		t.Fatalf("unread after logout = %d", n)
	}
	if e.Bus().Handlers(websocket.EventMessageReceived) != 0 {
		t.Fatal("handlers still attached after logout")
	}
}
