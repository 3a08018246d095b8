package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseSizeBytes = 2 << 20

// UpstashRedisStore persists conversations in Upstash Redis via REST. A
// sorted set indexed by last activity backs the retention sweep.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	indexKey   string
	ttl        time.Duration
}

var _ MemoryStore = (*UpstashRedisStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	o, err := buildStoreOptions(opts)
	if err != nil {
		return nil, err
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: timeout}
	}

	return &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: o.httpClient,
		keyPrefix:  o.keyPrefix,
		indexKey:   o.indexKey,
		ttl:        o.ttl,
	}, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, threadID string) (*ConversationContext, error) {
	key, err := s.redisKey(threadID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrConversationNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode conversation payload: %w", err)
	}

	conv, err := decodeConversation([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if err := conv.Validate(0); err != nil {
		return nil, fmt.Errorf("invalid conversation loaded from store: %w", err)
	}
	return conv, nil
}

func (s *UpstashRedisStore) Save(ctx context.Context, conv *ConversationContext) error {
	if err := prepareForSave(conv); err != nil {
		return err
	}

	key, err := s.redisKey(conv.ThreadID)
	if err != nil {
		return err
	}

	payload, err := encodeConversation(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	set := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		set = append(set, "EX", ttlSeconds(s.ttl))
	}
	index := []any{"ZADD", s.indexKey, conv.LastActivity.Unix(), conv.ThreadID}

	return s.execTx(ctx, [][]any{set, index})
}

func (s *UpstashRedisStore) Delete(ctx context.Context, threadID string) error {
	key, err := s.redisKey(threadID)
	if err != nil {
		return err
	}
	return s.execTx(ctx, [][]any{
		{"DEL", key},
		{"ZREM", s.indexKey, threadID},
	})
}

func (s *UpstashRedisStore) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	resp, err := s.exec(ctx, []any{"ZRANGEBYSCORE", s.indexKey, "-inf", "(" + strconv.FormatInt(cutoff.Unix(), 10)})
	if err != nil {
		return 0, err
	}

	var threadIDs []string
	if err := json.Unmarshal(resp.Result, &threadIDs); err != nil {
		return 0, fmt.Errorf("decode inactive index: %w", err)
	}
	if len(threadIDs) == 0 {
		return 0, nil
	}

	del := make([]any, 0, len(threadIDs)+1)
	rem := make([]any, 0, len(threadIDs)+2)
	del = append(del, "DEL")
	rem = append(rem, "ZREM", s.indexKey)
	for _, id := range threadIDs {
		key, err := s.redisKey(id)
		if err != nil {
			continue
		}
		del = append(del, key)
		rem = append(rem, id)
	}

	if err := s.execTx(ctx, [][]any{del, rem}); err != nil {
		return 0, err
	}
	return len(threadIDs), nil
}

func (s *UpstashRedisStore) redisKey(threadID string) (string, error) {
	return conversationKey(s.keyPrefix, threadID)
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	raw, err := s.post(ctx, s.baseURL, command)
	if err != nil {
		return nil, err
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

// execTx runs commands atomically through the multi-exec endpoint.
func (s *UpstashRedisStore) execTx(ctx context.Context, commands [][]any) error {
	if len(commands) == 0 {
		return errors.New("empty redis transaction")
	}

	raw, err := s.post(ctx, s.baseURL+"/multi-exec", commands)
	if err != nil {
		return err
	}

	var parsed []redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		var single redisRESTResponse
		if json.Unmarshal(raw, &single) == nil && single.Error != "" {
			return errors.New(single.Error)
		}
		return fmt.Errorf("decode redis transaction response: %w", err)
	}
	for i, r := range parsed {
		if r.Error != "" {
			return fmt.Errorf("redis command %d: %s", i, r.Error)
		}
	}
	return nil
}

func (s *UpstashRedisStore) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if strings.TrimSpace(s.baseURL) == "" {
		return nil, errors.New("empty redis url")
	}
	if strings.TrimSpace(s.token) == "" {
		return nil, errors.New("empty redis token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
