package state

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisStoreAppliesOptions(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, WithKeyPrefix("test:conv:"), WithIndexKey("test:index"), WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	if store.keyPrefix != "test:conv:" || store.indexKey != "test:index" || store.ttl != time.Hour {
		t.Fatalf("unexpected store: %#v", store)
	}

	if _, err := NewRedisStore(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestInactiveKeys(t *testing.T) {
	t.Parallel()

	keys, members := inactiveKeys("p:", []string{"a", " ", "b"})
	if len(keys) != 2 || keys[0] != "p:a" || keys[1] != "p:b" {
		t.Fatalf("keys = %#v", keys)
	}
	if len(members) != 3 {
		t.Fatalf("members = %#v", members)
	}
}

func TestEncodeDecodeConversation(t *testing.T) {
	t.Parallel()

	conv := NewConversation("user-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	conv.Append(Message{Role: RoleAssistant, Content: "Hola, bienvenido", Timestamp: conv.CreatedAt}, 0, 0)
	conv.SessionMetadata["channel"] = "whatsapp"

	raw, err := encodeConversation(conv)
	if err != nil {
		t.Fatalf("encodeConversation() error = %v", err)
	}
	out, err := decodeConversation(raw)
	if err != nil {
		t.Fatalf("decodeConversation() error = %v", err)
	}
	if out.ThreadID != "user-1" || len(out.RecentMessages) != 1 || out.SessionMetadata["channel"] != "whatsapp" {
		t.Fatalf("unexpected conversation: %#v", out)
	}
	if !out.LastActivity.Equal(conv.LastActivity) {
		t.Fatalf("LastActivity = %v, want %v", out.LastActivity, conv.LastActivity)
	}
}
