package sms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func classifyByCode(code string) ErrorType {
	switch code {
	case "TEMP":
		return ErrorRecoverable
	case "SLOW":
		return ErrorRateLimit
	default:
		return ErrorPermanent
	}
}

func TestSendWithRetry_PermanentErrorSingleAttempt(t *testing.T) {
	assert := assert.New(t)
	sleeper := &recordingSleeper{}
	attempts := 0

	result := SendWithRetry(context.Background(), func(context.Context) SendResult {
		attempts++
		return Failed("BLOCKED", "content blocked")
	}, classifyByCode, DefaultRetryOptions(), sleeper.sleep)

	assert.False(result.Success)
	assert.Equal("BLOCKED", result.ErrorCode)
	assert.Equal(1, attempts)
	assert.Empty(sleeper.delays)
}

func TestSendWithRetry_RecoverableTwiceThenSuccess(t *testing.T) {
	assert := assert.New(t)
	sleeper := &recordingSleeper{}
	attempts := 0

	result := SendWithRetry(context.Background(), func(context.Context) SendResult {
		attempts++
		if attempts < 3 {
			return Failed("TEMP", "handset unreachable")
		}
		return SendResult{Success: true, ProviderMessageID: "SM1"}
	}, classifyByCode, RetryOptions{MaxRetries: 3, InitialDelay: time.Second}, sleeper.sleep)

	assert.True(result.Success)
	assert.Equal(3, attempts)
	assert.Equal([]time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestSendWithRetry_ExhaustedReturnsLastFailure(t *testing.T) {
	assert := assert.New(t)
	sleeper := &recordingSleeper{}
	attempts := 0

	result := SendWithRetry(context.Background(), func(context.Context) SendResult {
		attempts++
		return Failed("SLOW", "too many requests")
	}, classifyByCode, RetryOptions{MaxRetries: 3, InitialDelay: 100 * time.Millisecond}, sleeper.sleep)

	assert.False(result.Success)
	assert.Equal("SLOW", result.ErrorCode)
	assert.Equal(4, attempts)
	assert.Equal([]time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, sleeper.delays)
}

func TestSendWithRetry_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0

	result := SendWithRetry(ctx, func(context.Context) SendResult {
		attempts++
		return Failed("TEMP", "try again")
	}, classifyByCode, DefaultRetryOptions(), ContextSleep)

	assert.False(t, result.Success)
	assert.Equal(t, 1, attempts)
}
