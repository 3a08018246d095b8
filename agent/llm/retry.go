package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
)

// RetryPolicy bounds every model call: Attempts tries, each limited to
// Timeout, waiting Backoff*n before try n+1.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// backOff returns the schedule for one call. It stops once the retries are
// spent or ctx is done.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: p.Backoff}, uint64(p.Attempts-1)), ctx)
}

// linearBackOff waits step, 2*step, 3*step and so on.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

type retryingModel struct {
	inner  einomodel.ToolCallingChatModel
	policy RetryPolicy
	notify func(err error, wait time.Duration)
}

var _ einomodel.ToolCallingChatModel = (*retryingModel)(nil)

// WithRetry wraps m so Generate honours policy. Streams are passed through
// with only the connection attempt retried.
func WithRetry(m einomodel.ToolCallingChatModel, policy RetryPolicy) einomodel.ToolCallingChatModel {
	if m == nil {
		return nil
	}
	return &retryingModel{inner: m, policy: policy.normalized()}
}

func (r *retryingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	var lastErr error
	msg, err := backoff.RetryNotifyWithData(func() (*schema.Message, error) {
		msg, err := r.generateOnce(ctx, input, opts...)
		if err != nil {
			lastErr = err
		}
		return msg, err
	}, r.policy.backOff(ctx), r.onRetry("model generate failed"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, lastErr)
	}
	return msg, nil
}

func (r *retryingModel) generateOnce(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	msg, err := r.inner.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errors.New("model returned no message")
	}
	return msg, nil
}

func (r *retryingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	var lastErr error
	stream, err := backoff.RetryNotifyWithData(func() (*schema.StreamReader[*schema.Message], error) {
		stream, err := r.inner.Stream(ctx, input, opts...)
		if err != nil {
			lastErr = err
		}
		return stream, err
	}, r.policy.backOff(ctx), r.onRetry("model stream failed"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, lastErr)
	}
	return stream, nil
}

func (r *retryingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := r.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &retryingModel{inner: bound, policy: r.policy, notify: r.notify}, nil
}

func (r *retryingModel) onRetry(msg string) backoff.Notify {
	attempt := 0
	return func(err error, wait time.Duration) {
		attempt++
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", r.policy.Attempts).Dur("wait", wait).Msg(msg)
		if r.notify != nil {
			r.notify(err, wait)
		}
	}
}
