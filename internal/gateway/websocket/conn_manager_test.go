package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kama_chat_client/pkg/errorx"
)

// echoServer 把收到的每一帧原样写回，并先推送一个 connected 事件
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"connected"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientRoundTrip(t *testing.T) {
	srv := echoServer(t)
	frames := make(chan Frame, 8)
	d := &Dialer{URL: wsURL(srv)}
	tr, err := d.Dial(context.Background(), func(f Frame) { frames <- f })
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	first := <-frames
	if first.Event != EventConnected {
		t.Fatalf("first event = %q, want connected", first.Event)
	}

	out, _ := NewFrame(EventJoinChat, "c1")
	if err := tr.Send(out); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case echoed := <-frames:
		if echoed.Event != EventJoinChat || string(echoed.Data) != `"c1"` {
			t.Fatalf("echo = %+v", echoed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestClientSendAfterClose(t *testing.T) {
	srv := echoServer(t)
	d := &Dialer{URL: wsURL(srv)}
	tr, err := d.Dial(context.Background(), func(Frame) {})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = tr.Close()
	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	err = tr.Send(Frame{Event: EventTyping})
	if !errorx.HasCode(err, errorx.CodeTransportUnavailable) {
		t.Fatalf("err = %v, want TransportUnavailable", err)
	}
	if tr.Err() != nil {
		t.Fatalf("user close should leave nil err, got %v", tr.Err())
	}
}

func TestClientServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	tr, err := (&Dialer{URL: wsURL(srv)}).Dial(context.Background(), func(Frame) {})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("drop not detected")
	}
	if tr.Err() == nil {
		t.Fatal("expected non-nil err after server drop")
	}
}

func TestDialFailure(t *testing.T) {
	_, err := (&Dialer{URL: "ws://127.0.0.1:1/ws", HandshakeTimeout: 200 * time.Millisecond}).Dial(context.Background(), nil)
	if !errorx.HasCode(err, errorx.CodeTransportUnavailable) {
		t.Fatalf("err = %v, want TransportUnavailable", err)
	}
}
