package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

var fast = Policy{MaxRetries: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.True(t, Retryable(&goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", &goopenai.RequestError{HTTPStatusCode: 502})))
	assert.False(t, Retryable(&goopenai.APIError{HTTPStatusCode: http.StatusBadRequest}))
	assert.False(t, Retryable(context.DeadlineExceeded))
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, zerolog.Nop(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, zerolog.Nop(), "test", func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 4, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, zerolog.Nop(), "test", func(context.Context) error {
		calls++
		return &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}
	})
	var apiErr *goopenai.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fast, zerolog.Nop(), "test", func(context.Context) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
