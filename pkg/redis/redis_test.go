package redisx

import (
	"testing"
	"time"
)

func TestNewParsesURL(t *testing.T) {
	t.Parallel()

	client, err := New(Config{URL: "redis://:secret@localhost:6380/2", DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	opts := client.Options()
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.Password != "secret" {
		t.Fatalf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
	if opts.DialTimeout != 2*time.Second {
		t.Fatalf("dial timeout = %s", opts.DialTimeout)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := New(Config{URL: "http://localhost"}); err == nil {
		t.Fatal("expected error for non-redis scheme")
	}
}
