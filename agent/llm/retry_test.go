package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
)

type flakyModel struct {
	mu        sync.Mutex
	failures  int
	calls     int
	deadlines []bool
	tools     []*schema.ToolInfo
}

func (f *flakyModel) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, hasDeadline := ctx.Deadline()
	f.deadlines = append(f.deadlines, hasDeadline)
	if f.calls <= f.failures {
		return nil, errors.New("upstream 429")
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (f *flakyModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *flakyModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

func recordWaits(waits *[]time.Duration) func(error, time.Duration) {
	return func(_ error, d time.Duration) {
		*waits = append(*waits, d)
	}
}

func TestWithRetryRecoversAfterFailures(t *testing.T) {
	t.Parallel()

	inner := &flakyModel{failures: 2}
	var waits []time.Duration
	m := WithRetry(inner, RetryPolicy{Attempts: 3, Timeout: time.Second, Backoff: 5 * time.Millisecond}).(*retryingModel)
	m.notify = recordWaits(&waits)

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hola")})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if msg.Content != "ok" {
		t.Fatalf("unexpected content: %q", msg.Content)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
	if len(waits) != 2 || waits[0] != 5*time.Millisecond || waits[1] != 10*time.Millisecond {
		t.Fatalf("unexpected backoff: %v", waits)
	}
	for i, ok := range inner.deadlines {
		if !ok {
			t.Fatalf("attempt %d ran without a deadline", i+1)
		}
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	t.Parallel()

	inner := &flakyModel{failures: 10}
	var waits []time.Duration
	m := WithRetry(inner, RetryPolicy{Attempts: 3}).(*retryingModel)
	m.notify = recordWaits(&waits)

	_, err := m.Generate(context.Background(), nil)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
	if len(waits) != 2 {
		t.Fatalf("expected 2 retries, got %v", waits)
	}
}

func TestWithRetryStopsWhenContextDone(t *testing.T) {
	t.Parallel()

	inner := &flakyModel{failures: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithRetry(inner, RetryPolicy{Attempts: 5}).Generate(ctx, nil)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected a single call, got %d", inner.calls)
	}
}

func TestWithRetryStopsDuringBackoff(t *testing.T) {
	t.Parallel()

	inner := &flakyModel{failures: 10}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := WithRetry(inner, RetryPolicy{Attempts: 3, Backoff: time.Hour}).Generate(ctx, nil)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected a single call, got %d", inner.calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff ignored the deadline")
	}
}

func TestWithRetryKeepsPolicyAfterBindingTools(t *testing.T) {
	t.Parallel()

	inner := &flakyModel{failures: 1}
	wrapped := WithRetry(inner, RetryPolicy{Attempts: 2})
	bound, err := wrapped.WithTools([]*schema.ToolInfo{{Name: "search_menu"}})
	if err != nil {
		t.Fatalf("WithTools() error = %v", err)
	}
	rm, ok := bound.(*retryingModel)
	if !ok {
		t.Fatalf("bound model lost the retry wrapper: %T", bound)
	}
	if rm.policy.Attempts != 2 {
		t.Fatalf("policy not kept: %+v", rm.policy)
	}

	if _, err := rm.Generate(context.Background(), nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(inner.tools) != 1 {
		t.Fatalf("tools not forwarded: %#v", inner.tools)
	}
}

func TestConfigOpenRouterFor(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:              " key ",
		Model:               "openai/gpt-4o-mini",
		MaxCompletionToken:  2000,
		Temperature:         0.5,
		Timeout:             10 * time.Second,
		FinalizeModel:       "openai/gpt-4o",
		RespondTemperature:  0.2,
		FinalizeTemperature: -1,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	respond := cfg.OpenRouterFor(contractx.StageRespond)
	if respond.Model != "openai/gpt-4o-mini" || respond.Temperature != 0.2 {
		t.Fatalf("unexpected respond config: %+v", respond)
	}
	if respond.APIKey != "key" {
		t.Fatalf("api key not trimmed: %q", respond.APIKey)
	}

	finalize := cfg.OpenRouterFor(contractx.StageFinalize)
	if finalize.Model != "openai/gpt-4o" || finalize.Temperature != 0.5 {
		t.Fatalf("unexpected finalize config: %+v", finalize)
	}
	if *finalize.MaxCompletionToken != 2000 {
		t.Fatalf("unexpected max tokens: %d", *finalize.MaxCompletionToken)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := (Config{Model: "m", MaxCompletionToken: 1}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
