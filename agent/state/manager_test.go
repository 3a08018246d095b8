package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeMemoryStore struct {
	mu        sync.Mutex
	records   map[string]*ConversationContext
	loadErr   error
	saveErr   error
	loads     int
	saves     int
	lastSweep time.Time
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{records: make(map[string]*ConversationContext)}
}

func (f *fakeMemoryStore) Load(ctx context.Context, threadID string) (*ConversationContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	conv, ok := f.records[threadID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (f *fakeMemoryStore) Save(ctx context.Context, conv *ConversationContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[conv.ThreadID] = conv.Clone()
	return nil
}

func (f *fakeMemoryStore) Delete(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, threadID)
	return nil
}

func (f *fakeMemoryStore) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSweep = cutoff
	n := 0
	for id, conv := range f.records {
		if conv.LastActivity.Before(cutoff) {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestManagerGetConversationCreatesEmpty(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeMemoryStore()
	m := NewManager(store, WithClock(fixedClock(now)))

	conv := m.GetConversation(context.Background(), "user-1")
	if conv.ThreadID != "user-1" {
		t.Fatalf("ThreadID = %q", conv.ThreadID)
	}
	if !conv.IsNew() {
		t.Fatal("expected a new conversation")
	}
	if !conv.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", conv.CreatedAt, now)
	}
	if store.loads != 1 {
		t.Fatalf("store loads = %d, want 1", store.loads)
	}

	_ = m.GetConversation(context.Background(), "user-1")
	if store.loads != 1 {
		t.Fatalf("cached lookup hit the store: loads = %d", store.loads)
	}
}

func TestManagerGetConversationSurvivesStoreError(t *testing.T) {
	t.Parallel()

	store := newFakeMemoryStore()
	store.loadErr = errors.New("connection refused")
	m := NewManager(store)

	conv := m.GetConversation(context.Background(), "user-1")
	if conv == nil || !conv.IsNew() {
		t.Fatalf("expected empty conversation, got %#v", conv)
	}
}

func TestManagerLoadsFromStoreOnMiss(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeMemoryStore()
	seed := NewConversation("user-1", now.Add(-time.Hour))
	seed.Append(Message{Role: RoleHuman, Content: "hola", Timestamp: now.Add(-time.Hour)}, 0, 0)
	store.records["user-1"] = seed

	m := NewManager(store, WithClock(fixedClock(now)))
	conv := m.GetConversation(context.Background(), "user-1")
	if len(conv.RecentMessages) != 1 || conv.RecentMessages[0].Content != "hola" {
		t.Fatalf("unexpected messages: %#v", conv.RecentMessages)
	}
}

func TestManagerAddMessageAppliesWindowAndTruncation(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, WithWindowSize(3), WithMaxMessageChars(5))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.AddMessage(ctx, "user-1", Message{Role: RoleHuman, Content: fmt.Sprintf("message-%d", i)})
	}

	conv := m.GetConversation(ctx, "user-1")
	if len(conv.RecentMessages) != 3 {
		t.Fatalf("len(RecentMessages) = %d, want 3", len(conv.RecentMessages))
	}
	if got := conv.RecentMessages[0].Content; got != "messa"+TruncationMarker {
		t.Fatalf("RecentMessages[0] = %q", got)
	}
}

func TestManagerUpdateCustomerContextLastWriteWins(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	ctx := context.Background()
	m.UpdateCustomerContext(ctx, "user-1", "customer_name", "Juan")
	m.UpdateCustomerContext(ctx, "user-1", "customer_name", "Juan Pérez")

	conv := m.GetConversation(ctx, "user-1")
	if conv.CustomerContext["customer_name"] != "Juan Pérez" {
		t.Fatalf("customer_name = %v", conv.CustomerContext["customer_name"])
	}
}

func TestManagerSaveMirrorsToStore(t *testing.T) {
	t.Parallel()

	store := newFakeMemoryStore()
	m := NewManager(store)
	ctx := context.Background()

	if err := m.Save(ctx, "nobody"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Save() error = %v, want ErrConversationNotFound", err)
	}

	m.AddMessage(ctx, "user-1", Message{Role: RoleHuman, Content: "hola"})
	if err := m.Save(ctx, "user-1"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(store.records["user-1"].RecentMessages) != 1 {
		t.Fatalf("store not updated: %#v", store.records["user-1"])
	}

	m.ClearCache()
	conv := m.GetConversation(ctx, "user-1")
	if len(conv.RecentMessages) != 1 {
		t.Fatalf("expected conversation recovered from store, got %#v", conv.RecentMessages)
	}
}

func TestManagerStatsDoesNotPopulateCache(t *testing.T) {
	t.Parallel()

	store := newFakeMemoryStore()
	seed := NewConversation("user-1", time.Now())
	seed.SetCustomerValue("customer_name", "Juan", time.Now())
	seed.Append(Message{Role: RoleHuman, Content: "hola"}, 0, 0)
	store.records["user-1"] = seed

	m := NewManager(store)
	ctx := context.Background()

	stats, err := m.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.CacheHit {
		t.Fatal("expected cache miss")
	}
	if stats.MessageCount != 1 {
		t.Fatalf("MessageCount = %d", stats.MessageCount)
	}
	if len(stats.CustomerContextKeys) != 1 || stats.CustomerContextKeys[0] != "customer_name" {
		t.Fatalf("CustomerContextKeys = %#v", stats.CustomerContextKeys)
	}

	again, err := m.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if again.CacheHit {
		t.Fatal("stats must not populate the cache")
	}

	_ = m.GetConversation(ctx, "user-1")
	cached, err := m.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if !cached.CacheHit {
		t.Fatal("expected cache hit after GetConversation")
	}
}

func TestManagerStatsUnknownUser(t *testing.T) {
	t.Parallel()

	m := NewManager(newFakeMemoryStore())
	stats, err := m.Stats(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.MessageCount != 0 || stats.LastActivity != nil {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestManagerClearCacheLeavesStore(t *testing.T) {
	t.Parallel()

	store := newFakeMemoryStore()
	m := NewManager(store)
	ctx := context.Background()
	m.AddMessage(ctx, "user-1", Message{Role: RoleHuman, Content: "hola"})
	m.AddMessage(ctx, "user-2", Message{Role: RoleHuman, Content: "hola"})
	if err := m.Save(ctx, "user-1"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if n := m.ClearCache(); n != 2 {
		t.Fatalf("ClearCache() = %d, want 2", n)
	}
	if _, ok := store.records["user-1"]; !ok {
		t.Fatal("durable record must survive ClearCache")
	}
}

func TestManagerCleanupRemovesStaleConversations(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store := newFakeMemoryStore()
	store.records["old"] = NewConversation("old", now.Add(-8*24*time.Hour))
	store.records["recent"] = NewConversation("recent", now.Add(-24*time.Hour))

	m := NewManager(store, WithClock(fixedClock(now)))
	removed, err := m.Cleanup(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("Cleanup() removed = %d, want 1", removed)
	}
	if _, ok := store.records["recent"]; !ok {
		t.Fatal("recent conversation must be kept")
	}
	if !store.lastSweep.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("cutoff = %v", store.lastSweep)
	}

	if _, err := m.Cleanup(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero retention")
	}
}

func TestManagerStaleEntryPrefersNewerStoreCopy(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	store := newFakeMemoryStore()
	m := NewManager(store, WithCacheTTL(time.Minute), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	m.AddMessage(ctx, "user-1", Message{Role: RoleHuman, Content: "local", Timestamp: now})

	newer := NewConversation("user-1", now)
	newer.Append(Message{Role: RoleHuman, Content: "remote", Timestamp: now.Add(time.Minute)}, 0, 0)
	store.records["user-1"] = newer

	clock = now.Add(2 * time.Minute)
	conv := m.GetConversation(ctx, "user-1")
	if got := conv.RecentMessages[len(conv.RecentMessages)-1].Content; got != "remote" {
		t.Fatalf("last message = %q, want remote", got)
	}
}

func TestManagerCacheObserver(t *testing.T) {
	t.Parallel()

	var results []string
	m := NewManager(nil, WithCacheObserver(func(r string) { results = append(results, r) }))
	_ = m.GetConversation(context.Background(), "user-1")
	_ = m.GetConversation(context.Background(), "user-1")

	if len(results) != 2 || results[0] != CacheMiss || results[1] != CacheHit {
		t.Fatalf("observed = %#v", results)
	}
}
