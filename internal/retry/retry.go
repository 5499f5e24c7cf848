// Package retry wraps calls to OpenAI-compatible endpoints in exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"
)

type Policy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	MaxElapsed time.Duration
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Context errors stop retrying immediately.
func Do(ctx context.Context, p Policy, log zerolog.Logger, what string, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	b.MaxInterval = 5 * time.Second
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	b.MaxElapsedTime = p.MaxElapsed
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return backoff.Permanent(err)
		}
		log.Debug().Err(err).Int("attempt", attempt).Str("call", what).Msg("request failed, retrying")
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}

// Retryable reports whether err is a rate limit, a server error or a
// transport failure without an HTTP status.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
