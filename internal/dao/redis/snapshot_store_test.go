package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"kama_chat_client/internal/model"
	"kama_chat_client/pkg/errorx"
)

func newStore(t *testing.T, expiration time.Duration) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), Options{Host: mr.Host(), Port: mustPort(t, mr), Expiration: expiration})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, mr := newStore(t, time.Hour)
	ctx := context.Background()

	snap := model.Snapshot{
		UserId:        "u1",
		Conversations: []model.Conversation{{Id: "c1"}, {Id: "c2", IsGroup: true, Name: "team"}},
		Notifications: []model.Notification{{MessageId: "m1", ConversationId: "c1"}},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("chat_snapshot_u1") {
		t.Fatal("key not written")
	}
	if ttl := mr.TTL("chat_snapshot_u1"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Conversations) != 2 || got.Conversations[1].Name != "team" || got.SavedAt.IsZero() {
		t.Fatalf("snapshot = %+v", got)
	}

	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, "u1"); !errorx.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenFailsWithoutServer(t *testing.T) {
	_, err := Open(context.Background(), Options{Host: "127.0.0.1", Port: 1})
	if !errorx.HasCode(err, errorx.CodeCacheError) {
		t.Fatalf("err = %v", err)
	}
}
