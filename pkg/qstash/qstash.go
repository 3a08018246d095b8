package qstash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v5"
)

const SignatureHeader = "Upstash-Signature"

var (
	ErrMissingSignature = errors.New("qstash signature is missing")
	ErrInvalidSignature = errors.New("qstash signature is invalid")
)

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether both publishing and verification are configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.CurrentSigningKey) != ""
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
	now               func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type scheduleResponse struct {
	ScheduleID string `json:"scheduleId"`
}

// Schedule registers a cron schedule that POSTs body to destination and
// returns the schedule id.
func (c *Client) Schedule(ctx context.Context, destination, cron string, body []byte) (string, error) {
	if c.token == "" {
		return "", errors.New("qstash token is required")
	}
	if _, err := url.ParseRequestURI(destination); err != nil {
		return "", fmt.Errorf("qstash destination: %w", err)
	}
	if strings.TrimSpace(cron) == "" {
		return "", errors.New("qstash cron is required")
	}

	endpoint := c.baseURL + "/v2/schedules/" + destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upstash-Cron", cron)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("qstash schedule: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("qstash schedule status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out scheduleResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode qstash schedule response: %w", err)
	}
	return out.ScheduleID, nil
}

type signatureClaims struct {
	jwt.RegisteredClaims
	Body string `json:"body"`
}

// Verify checks a signed callback against the current key, then the next key
// during rotation. destination is compared with the token subject when set.
func (c *Client) Verify(signature string, body []byte, destination string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}

	var lastErr error = ErrInvalidSignature
	for _, key := range []string{c.currentSigningKey, c.nextSigningKey} {
		if key == "" {
			continue
		}
		if err := c.verifyWithKey(signature, key, body, destination); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) verifyWithKey(token, key string, body []byte, destination string) error {
	var claims signatureClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("Upstash"),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if destination != "" && claims.Subject != destination {
		return fmt.Errorf("%w: subject %q", ErrInvalidSignature, claims.Subject)
	}

	sum := sha256.Sum256(body)
	if strings.TrimRight(claims.Body, "=") != base64.RawURLEncoding.EncodeToString(sum[:]) {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}
