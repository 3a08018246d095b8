package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

type cacheEntry struct {
	conv     *ConversationContext
	loadedAt time.Time
}

// Manager is the in-process cache in front of a MemoryStore. The cache is the
// source of truth inside one process; the store is read on miss and written
// by Save.
type Manager struct {
	store MemoryStore

	mu    sync.RWMutex
	cache map[string]*cacheEntry
	locks *keyedLock

	window   int
	maxChars int
	cacheTTL time.Duration
	now      func() time.Time
	observe  func(result string)
}

type ManagerOption func(*Manager)

func WithWindowSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.window = n
		}
	}
}

func WithMaxMessageChars(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxChars = n
		}
	}
}

// WithCacheTTL makes cached entries older than ttl re-check the store. Zero
// keeps entries fresh forever.
func WithCacheTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl >= 0 {
			m.cacheTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCacheObserver receives CacheHit, CacheMiss or CacheStale per lookup.
func WithCacheObserver(fn func(result string)) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.observe = fn
		}
	}
}

func NewManager(store MemoryStore, opts ...ManagerOption) *Manager {
	if store == nil {
		store = noopStore{}
	}
	m := &Manager{
		store:    store,
		cache:    make(map[string]*cacheEntry),
		locks:    newKeyedLock(),
		window:   DefaultWindowSize,
		maxChars: DefaultMaxMessageChars,
		now:      time.Now,
		observe:  func(string) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Lock serializes turns for one thread. The returned func releases it.
func (m *Manager) Lock(ctx context.Context, threadID string) (func(), error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, ErrInvalidThread
	}
	return m.locks.acquire(ctx, threadID)
}

// GetConversation returns a copy of the thread's context. It never fails: a
// missing or unreadable durable record yields an empty context.
func (m *Manager) GetConversation(ctx context.Context, threadID string) *ConversationContext {
	conv := m.entry(ctx, threadID)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return conv.Clone()
}

func (m *Manager) AddMessage(ctx context.Context, threadID string, msg Message) {
	conv := m.entry(ctx, threadID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}
	conv.Append(msg, m.window, m.maxChars)
}

func (m *Manager) UpdateCustomerContext(ctx context.Context, threadID, key string, value any) {
	conv := m.entry(ctx, threadID)

	m.mu.Lock()
	defer m.mu.Unlock()
	conv.SetCustomerValue(key, value, m.now())
}

// Save mirrors the cached context of threadID to the durable store.
func (m *Manager) Save(ctx context.Context, threadID string) error {
	m.mu.RLock()
	e, ok := m.cache[threadID]
	var snapshot *ConversationContext
	if ok {
		snapshot = e.conv.Clone()
	}
	m.mu.RUnlock()

	if !ok {
		return ErrConversationNotFound
	}
	return m.store.Save(ctx, snapshot)
}

type Stats struct {
	ThreadID            string     `json:"thread_id"`
	MessageCount        int        `json:"message_count"`
	CustomerContextKeys []string   `json:"customer_context_keys"`
	LastActivity        *time.Time `json:"last_activity"`
	CreatedAt           *time.Time `json:"created_at"`
	CacheHit            bool       `json:"cache_hit"`
}

// Stats is read-only: a cache miss reads the store without caching the result.
func (m *Manager) Stats(ctx context.Context, threadID string) (Stats, error) {
	if strings.TrimSpace(threadID) == "" {
		return Stats{}, ErrInvalidThread
	}

	m.mu.RLock()
	e, ok := m.cache[threadID]
	var conv *ConversationContext
	if ok {
		conv = e.conv.Clone()
	}
	m.mu.RUnlock()

	stats := Stats{ThreadID: threadID, CacheHit: ok, CustomerContextKeys: []string{}}
	if !ok {
		loaded, err := m.store.Load(ctx, threadID)
		if errors.Is(err, ErrConversationNotFound) {
			return stats, nil
		}
		if err != nil {
			return Stats{}, err
		}
		conv = loaded
	}

	stats.MessageCount = len(conv.RecentMessages)
	stats.CustomerContextKeys = conv.CustomerContextKeys()
	if !conv.LastActivity.IsZero() {
		t := conv.LastActivity
		stats.LastActivity = &t
	}
	if !conv.CreatedAt.IsZero() {
		t := conv.CreatedAt
		stats.CreatedAt = &t
	}
	return stats, nil
}

// ClearCache drops every cached context and reports how many were dropped.
func (m *Manager) ClearCache() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.cache)
	m.cache = make(map[string]*cacheEntry)
	return n
}

// Cleanup deletes durable contexts idle for longer than retention and evicts
// them from the cache.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be > 0")
	}
	cutoff := m.now().UTC().Add(-retention)

	m.mu.Lock()
	evicted := 0
	for id, e := range m.cache {
		if e.conv.LastActivity.Before(cutoff) {
			delete(m.cache, id)
			evicted++
		}
	}
	m.mu.Unlock()

	removed, err := m.store.DeleteInactiveSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Info().
		Int("removed", removed).
		Int("evicted", evicted).
		Time("cutoff", cutoff).
		Msg("conversation cleanup finished")
	return removed, nil
}

// entry returns the live cached context, loading or creating it as needed.
func (m *Manager) entry(ctx context.Context, threadID string) *ConversationContext {
	now := m.now()

	m.mu.RLock()
	e, ok := m.cache[threadID]
	fresh := ok && (m.cacheTTL == 0 || now.Sub(e.loadedAt) < m.cacheTTL)
	m.mu.RUnlock()
	if fresh {
		m.observe(CacheHit)
		return e.conv
	}

	if ok {
		m.observe(CacheStale)
	} else {
		m.observe(CacheMiss)
	}

	loaded, err := m.store.Load(ctx, threadID)
	switch {
	case err == nil:
	case errors.Is(err, ErrConversationNotFound):
		loaded = nil
	default:
		log.Warn().Err(err).Str("user_id", threadID).Msg("memory store load failed, using cache or empty context")
		loaded = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.cache[threadID]
	switch {
	case exists && (loaded == nil || !loaded.LastActivity.After(current.conv.LastActivity)):
		current.loadedAt = now
		return current.conv
	case loaded != nil:
		loaded.EnsureMaps()
		loaded.ThreadID = threadID
		m.cache[threadID] = &cacheEntry{conv: loaded, loadedAt: now}
		return loaded
	default:
		conv := NewConversation(threadID, now)
		m.cache[threadID] = &cacheEntry{conv: conv, loadedAt: now}
		return conv
	}
}

type noopStore struct{}

func (noopStore) Load(context.Context, string) (*ConversationContext, error) {
	return nil, ErrConversationNotFound
}

func (noopStore) Save(context.Context, *ConversationContext) error {
	return nil
}

func (noopStore) Delete(context.Context, string) error {
	return nil
}

func (noopStore) DeleteInactiveSince(context.Context, time.Time) (int, error) {
	return 0, nil
}
