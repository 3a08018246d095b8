package qstash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, key string, claims signatureClaims) string {
	t.Helper()
	return signWith(t, jwt.SigningMethodHS256, key, claims)
}

func signWith(t *testing.T, method jwt.SigningMethod, key string, claims signatureClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func registered(issuer, subject string, exp, nbf time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{Issuer: issuer, Subject: subject}
	if !exp.IsZero() {
		rc.ExpiresAt = jwt.NewNumericDate(exp)
	}
	if !nbf.IsZero() {
		rc.NotBefore = jwt.NewNumericDate(nbf)
	}
	return rc
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.URLEncoding.EncodeToString(sum[:])
}

func newTestClient(t *testing.T, now time.Time) *Client {
	t.Helper()

	c, err := NewClient(Config{
		URL:               "https://qstash.example",
		Token:             "tok",
		CurrentSigningKey: "current",
		NextSigningKey:    "next",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.now = func() time.Time { return now }
	return c
}

func TestVerifyAcceptsCurrentAndNextKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, now)
	body := []byte(`{"retention_days":7}`)
	claims := signatureClaims{
		RegisteredClaims: registered("Upstash", "https://pizzeria.example/v1/admin/cleanup", now.Add(5*time.Minute), now.Add(-time.Minute)),
		Body:             bodyHash(body),
	}

	if err := c.Verify(sign(t, "current", claims), body, claims.Subject); err != nil {
		t.Fatalf("current key rejected: %v", err)
	}
	if err := c.Verify(sign(t, "next", claims), body, ""); err != nil {
		t.Fatalf("next key rejected: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, now)
	body := []byte(`{}`)
	valid := signatureClaims{
		RegisteredClaims: registered("Upstash", "https://a/cleanup", now.Add(time.Minute), time.Time{}),
		Body:             bodyHash(body),
	}

	expired := valid
	expired.RegisteredClaims = registered("Upstash", "https://a/cleanup", now.Add(-time.Minute), time.Time{})
	early := valid
	early.RegisteredClaims = registered("Upstash", "https://a/cleanup", now.Add(time.Hour), now.Add(time.Minute))
	wrongIssuer := valid
	wrongIssuer.RegisteredClaims = registered("someone", "https://a/cleanup", now.Add(time.Minute), time.Time{})

	cases := map[string]struct {
		token string
		body  []byte
		dest  string
	}{
		"wrong key":       {token: sign(t, "other", valid), body: body},
		"tampered body":   {token: sign(t, "current", valid), body: []byte(`{"x":1}`)},
		"expired":         {token: sign(t, "current", expired), body: body},
		"wrong issuer":    {token: sign(t, "current", wrongIssuer), body: body},
		"not yet valid":   {token: sign(t, "current", early), body: body},
		"wrong subject":   {token: sign(t, "current", valid), body: body, dest: "https://b/cleanup"},
		"wrong algorithm": {token: signWith(t, jwt.SigningMethodHS512, "current", valid), body: body},
		"malformed token": {token: "abc.def", body: body},
	}
	for name, tc := range cases {
		if err := c.Verify(tc.token, tc.body, tc.dest); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
	if err := c.Verify("", body, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	var gotPath, gotCron, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCron = r.Header.Get("Upstash-Cron")
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte(`{"scheduleId":"scd_123"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	id, err := c.Schedule(context.Background(), "https://pizzeria.example/v1/admin/cleanup", "0 3 * * *", []byte(`{}`))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if id != "scd_123" {
		t.Fatalf("schedule id = %q", id)
	}
	if gotPath != "/v2/schedules/https://pizzeria.example/v1/admin/cleanup" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotCron != "0 3 * * *" || gotAuth != "Bearer tok" || gotBody != "{}" {
		t.Fatalf("unexpected request: cron=%q auth=%q body=%q", gotCron, gotAuth, gotBody)
	}
}

func TestScheduleRequiresToken(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{URL: "https://qstash.example"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := c.Schedule(context.Background(), "https://a/b", "* * * * *", nil); err == nil {
		t.Fatal("expected error without token")
	}
}
