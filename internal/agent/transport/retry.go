package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/ecotravel/server/internal/agent/model"
	errx "github.com/ecotravel/server/internal/core/errx"
	logx "github.com/ecotravel/server/pkg/logger"
)

// WaitFunc receives a human-readable status line before each backoff wait so
// the presentation layer can show why the assistant is pausing.
type WaitFunc func(status string)

// RetryPolicy decorates a Session with bounded backoff on rate-limit
// failures. Waits grow linearly with the attempt number (step, 2*step,
// 3*step). Non-retryable errors propagate immediately; after the final
// retry the rate-limit failure itself propagates.
type RetryPolicy struct {
	inner  Session
	max    int
	step   time.Duration
	onWait WaitFunc

	// sleep is swappable in tests; the default honours context cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(inner Session, cfg model.RetryConfig, onWait WaitFunc) *RetryPolicy {
	return &RetryPolicy{
		inner:  inner,
		max:    cfg.MaxRetries,
		step:   time.Duration(cfg.BackoffStepSeconds) * time.Second,
		onWait: onWait,
		sleep:  sleepCtx,
	}
}

func (p *RetryPolicy) Send(ctx context.Context, in Input, emit FragmentFunc) (*TurnResult, error) {
	var lastErr error
	for attempt := 0; attempt <= p.max; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * p.step
			status := fmt.Sprintf("Rate limited by the model, waiting %s before retry %d/%d", wait, attempt, p.max)
			logx.Warn().Dur("wait", wait).Int("attempt", attempt).Int("max_retries", p.max).Msg("rate limited, backing off")
			if p.onWait != nil {
				p.onWait(status)
			}
			if err := p.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		res, err := p.inner.Send(ctx, in, emit)
		if err == nil {
			return res, nil
		}
		if !errx.IsRateLimited(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Session = (*RetryPolicy)(nil)
