package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists conversations in a regular Redis server.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	indexKey  string
	ttl       time.Duration
}

var _ MemoryStore = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	o, err := buildStoreOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		client:    client,
		keyPrefix: o.keyPrefix,
		indexKey:  o.indexKey,
		ttl:       o.ttl,
	}, nil
}

func (s *RedisStore) Load(ctx context.Context, threadID string) (*ConversationContext, error) {
	key, err := conversationKey(s.keyPrefix, threadID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	conv, err := decodeConversation(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if err := conv.Validate(0); err != nil {
		return nil, fmt.Errorf("invalid conversation loaded from store: %w", err)
	}
	return conv, nil
}

func (s *RedisStore) Save(ctx context.Context, conv *ConversationContext) error {
	if err := prepareForSave(conv); err != nil {
		return err
	}
	key, err := conversationKey(s.keyPrefix, conv.ThreadID)
	if err != nil {
		return err
	}

	payload, err := encodeConversation(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, s.ttl)
		pipe.ZAdd(ctx, s.indexKey, redis.Z{
			Score:  float64(conv.LastActivity.Unix()),
			Member: conv.ThreadID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	key, err := conversationKey(s.keyPrefix, threadID)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, s.indexKey, threadID)
		return nil
	})
	return err
}

func (s *RedisStore) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	threadIDs, err := s.client.ZRangeByScore(ctx, s.indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scan inactive: %w", err)
	}
	if len(threadIDs) == 0 {
		return 0, nil
	}

	keys, members := inactiveKeys(s.keyPrefix, threadIDs)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.ZRem(ctx, s.indexKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis delete inactive: %w", err)
	}
	return len(threadIDs), nil
}

func inactiveKeys(prefix string, threadIDs []string) ([]string, []any) {
	keys := make([]string, 0, len(threadIDs))
	members := make([]any, 0, len(threadIDs))
	for _, id := range threadIDs {
		members = append(members, id)
		key, err := conversationKey(prefix, id)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, members
}
