package redisx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL          string        `envconfig:"URL" split_words:"true"`
	KeyPrefix    string        `split_words:"true"`
	TTL          time.Duration `envconfig:"TTL" default:"0s"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"3s"`
	WriteTimeout time.Duration `split_words:"true" default:"3s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// New parses a redis:// or rediss:// URL into a client. The connection is
// lazy; Ping checks reachability.
func New(cfg Config) (*redis.Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return redis.NewClient(opts), nil
}

func Ping(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return errors.New("redis client is nil")
	}
	return client.Ping(ctx).Err()
}
