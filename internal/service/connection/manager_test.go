package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"kama_chat_client/internal/gateway/websocket"
	"kama_chat_client/pkg/errorx"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []websocket.Frame
	done   chan struct{}
	once   sync.Once
	err    error
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{done: make(chan struct{})}
}

func (f *fakeTransport) Send(fr websocket.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errorx.ErrTransportUnavailable
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

func (f *fakeTransport) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTransport) Close() error {
	f.drop(nil)
	return nil
}

func (f *fakeTransport) drop(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeTransport) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.sent {
		if fr.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeTransport) joined() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, fr := range f.sent {
		if fr.Event != websocket.EventJoinChat {
			continue
		}
		var id string
		_ = json.Unmarshal(fr.Data, &id)
		out[id]++
	}
	return out
}

// dialer 每次拨号返回一个新的 fakeTransport，并记录下来
type dialer struct {
	mu    sync.Mutex
	conns []*fakeTransport
	fail  int // 前 fail 次拨号失败
}

func (d *dialer) dial(ctx context.Context, _ func(websocket.Frame)) (websocket.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	tr := newFakeTransport()
	d.conns = append(d.conns, tr)
	return tr, nil
}

func (d *dialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *dialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
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

func newTestManager(d *dialer) *Manager {
	return NewManager(d.dial, func(websocket.Frame) {}, Options{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	})
}

func TestConnectEmitsSetupOnce(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d)
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "identified", func() bool { return m.State() == Identified })

	for i := 0; i < 3; i++ {
		if err := m.Connect(context.Background(), "u1"); err != nil {
			t.Fatal(err)
		}
	}
	if d.dials() != 1 {
		t.Fatalf("dials = %d, want 1", d.dials())
	}
	if n := d.last().count(websocket.EventSetup); n != 1 {
		t.Fatalf("setup frames = %d, want 1", n)
	}
}

func TestJoinDeferredUntilEstablished(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d)
	defer m.Disconnect()

	if err := m.EnsureSubscribed("c1"); err != nil {
		t.Fatal(err)
	}
	_ = m.Connect(context.Background(), "u1")
	waitFor(t, "identified", func() bool { return m.State() == Identified })
	tr := d.last()
	if tr.count(websocket.EventJoinChat) != 0 {
		t.Fatal("join sent before connected event")
	}

	m.Established()
	if got := tr.joined(); got["c1"] != 1 {
		t.Fatalf("joins = %v", got)
	}
	// 已确认后新增订阅立即发送
	_ = m.EnsureSubscribed("c2")
	_ = m.EnsureSubscribed("c2")
	if got := tr.joined(); got["c2"] != 1 {
		t.Fatalf("joins = %v", got)
	}
}

func TestReplayOncePerEstablished(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d)
	defer m.Disconnect()

	_ = m.EnsureSubscribed("c1")
	_ = m.EnsureSubscribed("c2")
	_ = m.EnsureSubscribed("c3")
	_ = m.Connect(context.Background(), "u1")
	waitFor(t, "identified", func() bool { return m.State() == Identified })

	const n = 4
	for i := 0; i < n; i++ {
		if sent := m.Established(); sent != 3 {
			t.Fatalf("replay %d sent %d, want 3", i, sent)
		}
	}
	got := d.last().joined()
	if len(got) != 3 {
		t.Fatalf("joined = %v", got)
	}
	for id, c := range got {
		if c != n {
			t.Fatalf("%s joined %d times, want %d", id, c, n)
		}
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d)
	defer m.Disconnect()

	_ = m.EnsureSubscribed("c1")
	_ = m.Connect(context.Background(), "u1")
	waitFor(t, "identified", func() bool { return m.State() == Identified })
	m.Established()

	d.last().drop(errors.New("network down"))
	waitFor(t, "redial", func() bool { return d.dials() == 2 && m.State() == Identified })

	second := d.last()
	if second.count(websocket.EventSetup) != 1 {
		t.Fatal("setup not re-emitted after reconnect")
	}
	if m.Connected() {
		t.Fatal("connected must wait for the server ack")
	}
	m.Established()
	if got := second.joined(); got["c1"] != 1 {
		t.Fatalf("replay after reconnect = %v", got)
	}
	if subs := m.Subscriptions(); len(subs) != 1 || subs[0] != "c1" {
		t.Fatalf("subscriptions = %v", subs)
	}
}

func TestRetryAfterDialFailure(t *testing.T) {
	d := &dialer{fail: 2}
	m := newTestManager(d)
	defer m.Disconnect()

	_ = m.Connect(context.Background(), "u1")
	waitFor(t, "identified after retries", func() bool { return m.State() == Identified })
	if d.dials() != 1 {
		t.Fatalf("successful dials = %d", d.dials())
	}
}

func TestDisconnectClearsSubscriptions(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d)

	_ = m.EnsureSubscribed("c1")
	_ = m.Connect(context.Background(), "u1")
	waitFor(t, "identified", func() bool { return m.State() == Identified })
	tr := d.last()

	m.Disconnect()
	if m.State() != Disconnected {
		t.Fatalf("state = %s", m.State())
	}
	if len(m.Subscriptions()) != 0 {
		t.Fatal("subscriptions survived logout")
	}
	select {
	case <-tr.Done():
	default:
		t.Fatal("transport not closed")
	}
	err := m.Emit(websocket.EventTyping, "c1")
	if !errors.Is(err, errorx.ErrTransportUnavailable) {
		t.Fatalf("emit err = %v", err)
	}
}

func TestConnectOtherUserTearsDown(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d)
	defer m.Disconnect()

	_ = m.EnsureSubscribed("c1")
	_ = m.Connect(context.Background(), "u1")
	waitFor(t, "identified", func() bool { return m.State() == Identified })
	_ = m.Connect(context.Background(), "u2")
	waitFor(t, "second identity", func() bool { return d.dials() == 2 && m.State() == Identified })
	if m.UserId() != "u2" || len(m.Subscriptions()) != 0 {
		t.Fatalf("user=%s subs=%v", m.UserId(), m.Subscriptions())
	}
}

func TestConcurrentConnectStartsOneSession(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d)
	defer m.Disconnect()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Connect(context.Background(), "u1")
		}()
	}
	wg.Wait()
	waitFor(t, "identified", func() bool { return m.State() == Identified })
	time.Sleep(30 * time.Millisecond)

	if d.dials() != 1 {
		t.Fatalf("dials = %d, want 1", d.dials())
	}
	if n := d.last().count(websocket.EventSetup); n != 1 {
		t.Fatalf("setup frames = %d, want 1", n)
	}
}
