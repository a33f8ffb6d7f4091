package sms

import (
	"context"
	"math/rand"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendWithRetry calls send until it succeeds, fails with a non-retryable error,
// or MaxRetries extra attempts have been made. The delay doubles after each
// failed attempt. The last result is returned when retries are exhausted.
func SendWithRetry(
	ctx context.Context,
	send func(ctx context.Context) SendResult,
	classify func(code string) ErrorType,
	opts RetryOptions,
	sleep SleepFunc,
) SendResult {
	if sleep == nil {
		sleep = ContextSleep
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	delay := opts.InitialDelay
	var result SendResult
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result = send(ctx)
		if result.Success {
			return result
		}
		if !classify(result.ErrorCode).Retryable() || attempt == opts.MaxRetries {
			return result
		}

		wait := delay
		if opts.Jitter && delay > 0 {
			wait = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
		}
		if err := sleep(ctx, wait); err != nil {
			return result
		}
		delay *= 2
	}
	return result
}
