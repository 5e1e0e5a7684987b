package registry

import (
	"errors"
	"testing"
	"time"

	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/errorx"
)

func conv(id string, users ...string) model.Conversation {
	c := model.Conversation{Id: id}
	for _, u := range users {
		c.Participants = append(c.Participants, model.Participant{Id: u, Username: "name_" + u})
	}
	return c
}

func ids(list []model.Conversation) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Id)
	}
	return out
}

func equalIds(t *testing.T, got []model.Conversation, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("order = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("order = %v, want %v", g, want)
		}
	}
}

func TestUpsertTagsSelf(t *testing.T) {
	r := New("me")
	if !r.Upsert(conv("c1", "me", "u2")) {
		t.Fatal("first upsert should create")
	}
	c, ok := r.Get("c1")
	if !ok {
		t.Fatal("c1 missing")
	}
	if !c.Participants[0].Self || c.Participants[1].Self {
		t.Fatalf("self tags wrong: %+v", c.Participants)
	}
	peer, ok := c.Peer()
	if !ok || peer.Id != "u2" {
		t.Fatalf("peer = %+v", peer)
	}
	if c.DisplayName() != "name_u2" {
		t.Fatalf("display name = %q", c.DisplayName())
	}
}

func TestOrderingByLatestMessage(t *testing.T) {
	r := New("me")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Upsert(conv(id, "me"))
	}
	// 无最新消息的会话按插入顺序排在最后
	equalIds(t, r.OrderedList(), "a", "b", "c", "d")

	r.ApplyLatestMessage("c", model.MessageSummary{MessageId: "m1", Timestamp: base})
	r.ApplyLatestMessage("a", model.MessageSummary{MessageId: "m2", Timestamp: base.Add(time.Minute)})
	equalIds(t, r.OrderedList(), "a", "c", "b", "d")

	// 时间戳相同：先插入者在前
	r.ApplyLatestMessage("d", model.MessageSummary{MessageId: "m3", Timestamp: base.Add(time.Minute)})
	equalIds(t, r.OrderedList(), "a", "d", "c", "b")

	list := r.OrderedList()
	for i := 1; i < len(list); i++ {
		if list[i].LatestAt().After(list[i-1].LatestAt()) {
			t.Fatalf("not sorted descending at %d: %v", i, ids(list))
		}
	}
}

func TestApplyLatestMessageMovesToTop(t *testing.T) {
	r := New("me")
	now := time.Now()
	older := conv("c1", "me", "u2")
	older.LatestMessage = &model.MessageSummary{MessageId: "m0", Timestamp: now.Add(-time.Hour)}
	newer := conv("c2", "me", "u3")
	newer.LatestMessage = &model.MessageSummary{MessageId: "m1", Timestamp: now.Add(-time.Minute)}
	r.Upsert(older)
	r.Upsert(newer)
	equalIds(t, r.OrderedList(), "c2", "c1")

	r.ApplyLatestMessage("c1", model.MessageSummary{MessageId: "m2", Timestamp: now})
	equalIds(t, r.OrderedList(), "c1", "c2")
}

func TestApplyLatestMessageUnknownIsNoop(t *testing.T) {
	r := New("me")
	if r.ApplyLatestMessage("nope", model.MessageSummary{MessageId: "m"}) {
		t.Fatal("unknown conversation should be ignored")
	}
	if r.Len() != 0 {
		t.Fatal("registry should stay empty")
	}
}

func TestOrderStampIsMonotonic(t *testing.T) {
	r := New("me")
	future := time.Now().Add(time.Hour)
	c := conv("c1", "me")
	c.LatestMessage = &model.MessageSummary{MessageId: "m", Timestamp: future}
	r.Upsert(c)
	r.Upsert(conv("c2", "me"))

	// 本地时钟落后于已有消息时，新盖章仍然严格更晚
	stamp := r.OrderStamp(time.Now())
	if !stamp.After(future) {
		t.Fatalf("stamp %v should be after %v", stamp, future)
	}
	r.ApplyLatestMessage("c2", model.MessageSummary{MessageId: "m2", Timestamp: stamp})
	equalIds(t, r.OrderedList(), "c2", "c1")
}

func TestUpsertKeepsNewerLatestMessage(t *testing.T) {
	r := New("me")
	now := time.Now()
	r.Upsert(conv("c1", "me"))
	r.ApplyLatestMessage("c1", model.MessageSummary{MessageId: "live", Timestamp: now})

	stale := conv("c1", "me")
	stale.Name = "renamed"
	stale.LatestMessage = &model.MessageSummary{MessageId: "old", Timestamp: now.Add(-time.Hour)}
	if r.Upsert(stale) {
		t.Fatal("replace should not report creation")
	}
	c, _ := r.Get("c1")
	if c.Name != "renamed" {
		t.Fatalf("name not replaced: %q", c.Name)
	}
	if c.LatestMessage == nil || c.LatestMessage.MessageId != "live" {
		t.Fatalf("latest message regressed: %+v", c.LatestMessage)
	}
}

func TestSelectUnknownConversation(t *testing.T) {
	r := New("me")
	err := r.Select("ghost")
	if !errors.Is(err, errorx.ErrUnknownConversation) {
		t.Fatalf("err = %v, want UnknownConversation", err)
	}
	if _, ok := r.Selected(); ok {
		t.Fatal("selection should stay empty")
	}
}

func TestSelectRunsHooks(t *testing.T) {
	r := New("me")
	r.Upsert(conv("c1", "me"))
	var got []string
	r.OnSelect(func(id string) { got = append(got, id) })
	if err := r.Select("c1"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "c1" {
		t.Fatalf("hooks saw %v", got)
	}
	if !r.IsSelected("c1") {
		t.Fatal("c1 should be selected")
	}
	r.Deselect()
	if r.IsSelected("c1") {
		t.Fatal("deselect failed")
	}
}

func TestOrderedIsRestartable(t *testing.T) {
	r := New("me")
	r.Upsert(conv("c1", "me"))
	r.Upsert(conv("c2", "me"))
	seq := r.Ordered()
	first := 0
	for range seq {
		first++
		break
	}
	second := 0
	for range seq {
		second++
	}
	if first != 1 || second != 2 {
		t.Fatalf("first=%d second=%d", first, second)
	}
}

func TestOrderedReturnsCopies(t *testing.T) {
	r := New("me")
	r.Upsert(conv("c1", "me", "u2"))
	for c := range r.Ordered() {
		c.Participants[0].Username = "mutated"
	}
	c, _ := r.Get("c1")
	if c.Participants[0].Username == "mutated" {
		t.Fatal("registry state leaked to caller")
	}
}

func TestFindParticipantAndReset(t *testing.T) {
	r := New("me")
	group := conv("g1", "me", "u9")
	group.IsGroup = true
	r.Upsert(group)
	r.Upsert(conv("c1", "me", "u2"))
	if _, ok := r.FindParticipant("u9"); ok {
		t.Fatal("group members should not be resolved")
	}
	if p, ok := r.FindParticipant("u2"); !ok || p.Username != "name_u2" {
		t.Fatalf("participant = %+v", p)
	}
	_ = r.Select("c1")
	r.Reset("other")
	if r.Len() != 0 || r.SelfId() != "other" {
		t.Fatal("reset incomplete")
	}
	if _, ok := r.Selected(); ok {
		t.Fatal("selection survived reset")
	}
}
