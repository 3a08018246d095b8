package state

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNilConversation      = errors.New("conversation is nil")
	ErrInvalidThread        = errors.New("thread id is empty")
)

const (
	defaultStoreKeyPrefix = "pizzeria:conversation:"
	defaultStoreIndexKey  = "pizzeria:conversation-index"
)

// MemoryStore is the durable side of the conversation cache.
type MemoryStore interface {
	Load(ctx context.Context, threadID string) (*ConversationContext, error)
	Save(ctx context.Context, conv *ConversationContext) error
	Delete(ctx context.Context, threadID string) error
	// DeleteInactiveSince removes conversations whose last activity is
	// before cutoff and reports how many were removed.
	DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error)
}

type storeOptions struct {
	keyPrefix  string
	indexKey   string
	ttl        time.Duration
	httpClient *http.Client
}

// StoreOption customizes the key/value backed stores.
type StoreOption func(*storeOptions)

func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			o.keyPrefix = trimmed
		}
	}
}

func WithIndexKey(key string) StoreOption {
	return func(o *storeOptions) {
		trimmed := strings.TrimSpace(key)
		if trimmed != "" {
			o.indexKey = trimmed
		}
	}
}

// WithTTL sets a hard expiry on stored payloads. Zero leaves expiry to the
// retention sweep.
func WithTTL(ttl time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(o *storeOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func buildStoreOptions(opts []StoreOption) (storeOptions, error) {
	o := storeOptions{
		keyPrefix: defaultStoreKeyPrefix,
		indexKey:  defaultStoreIndexKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.ttl < 0 {
		return o, errors.New("ttl must be >= 0")
	}
	return o, nil
}

func conversationKey(prefix, threadID string) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", ErrInvalidThread
	}
	return strings.TrimSpace(prefix) + threadID, nil
}

func prepareForSave(conv *ConversationContext) error {
	if conv == nil {
		return ErrNilConversation
	}
	if strings.TrimSpace(conv.ThreadID) == "" {
		return ErrInvalidThread
	}
	conv.EnsureMaps()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.LastActivity.IsZero() {
		conv.LastActivity = conv.CreatedAt
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.LastActivity = conv.LastActivity.UTC()
	return nil
}

func encodeConversation(conv *ConversationContext) ([]byte, error) {
	return sonic.Marshal(conv)
}

func decodeConversation(raw []byte) (*ConversationContext, error) {
	var conv ConversationContext
	if err := sonic.Unmarshal(raw, &conv); err != nil {
		return nil, err
	}
	conv.EnsureMaps()
	return &conv, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
