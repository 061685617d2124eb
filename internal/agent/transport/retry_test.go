package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotravel/server/internal/agent/model"
	errx "github.com/ecotravel/server/internal/core/errx"
)

// scriptedSession fails the first n sends and then succeeds.
type scriptedSession struct {
	failuresLeft int
	failWith     error
	result       *TurnResult
	calls        int
}

func (s *scriptedSession) Send(ctx context.Context, in Input, emit FragmentFunc) (*TurnResult, error) {
	s.calls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, s.failWith
	}
	return s.result, nil
}

func newTestPolicy(inner Session, maxRetries int, waits *[]time.Duration, statuses *[]string) *RetryPolicy {
	p := NewRetryPolicy(inner, model.RetryConfig{MaxRetries: maxRetries, BackoffStepSeconds: 2}, func(status string) {
		if statuses != nil {
			*statuses = append(*statuses, status)
		}
	})
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return p
}

func TestRetryPolicyRecoversFromRateLimits(t *testing.T) {
	inner := &scriptedSession{
		failuresLeft: 3,
		failWith:     &errx.RateLimitError{Err: errors.New("429")},
		result:       &TurnResult{Text: "finally"},
	}
	var waits []time.Duration
	var statuses []string
	p := newTestPolicy(inner, 3, &waits, &statuses)

	res, err := p.Send(context.Background(), Input{Text: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "finally", res.Text)
	assert.Equal(t, 4, inner.calls)

	// Linear ladder: step, 2*step, 3*step.
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, waits)
	require.Len(t, statuses, 3)
	assert.Contains(t, statuses[0], "retry 1/3")
	assert.Contains(t, statuses[2], "retry 3/3")
}

func TestRetryPolicyGivesUpAfterMaxRetries(t *testing.T) {
	inner := &scriptedSession{
		failuresLeft: 10,
		failWith:     &errx.RateLimitError{Err: errors.New("429")},
	}
	var waits []time.Duration
	p := newTestPolicy(inner, 3, &waits, nil)

	res, err := p.Send(context.Background(), Input{Text: "hi"}, nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errx.IsRateLimited(err))
	// Initial attempt plus three retries.
	assert.Equal(t, 4, inner.calls)
	assert.Len(t, waits, 3)
}

func TestRetryPolicyPropagatesOtherErrorsImmediately(t *testing.T) {
	inner := &scriptedSession{
		failuresLeft: 1,
		failWith:     &errx.TransportError{Err: errors.New("connection reset")},
	}
	var waits []time.Duration
	p := newTestPolicy(inner, 3, &waits, nil)

	_, err := p.Send(context.Background(), Input{Text: "hi"}, nil)
	require.Error(t, err)
	var te *errx.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, waits)
}

func TestRetryPolicyHonoursContextDuringWait(t *testing.T) {
	inner := &scriptedSession{
		failuresLeft: 10,
		failWith:     &errx.RateLimitError{Err: errors.New("429")},
	}
	p := NewRetryPolicy(inner, model.RetryConfig{MaxRetries: 3, BackoffStepSeconds: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Send(ctx, Input{Text: "hi"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}
