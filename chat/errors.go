package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrChannelUnavailable means the channel does not exist or the bot may not post there.
	ErrChannelUnavailable = errors.New("chat: channel unavailable")
	// ErrNotConnected means the platform connection is down.
	ErrNotConnected = errors.New("chat: not connected")
)

// ErrorClass represents whether an error should be retried or not.
type ErrorClass int

const (
	// ErrorClassRetryable indicates the operation should be retried (transient errors).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the operation should not be retried (permanent errors).
	ErrorClassFatal
	// ErrorClassUnknown is returned for a nil error.
	ErrorClassUnknown
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyError sorts platform send errors into retryable and fatal.
//
// Fatal: unreachable channels, bad credentials, missing permissions, 4xx
// responses other than 429, and a cancelled context.
// Retryable: rate limits, 5xx responses, network errors, a dropped
// connection. Anything unrecognised is retried.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, ErrChannelUnavailable) || errors.Is(err, context.Canceled) {
		return ErrorClassFatal
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return classifyStatus(rest.Response.StatusCode)
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return ErrorClassRetryable
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())
	for _, p := range []string{"unauthorized", "forbidden", "missing access", "missing permissions", "unknown channel", "login authentication failed"} {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}
	return ErrorClassRetryable
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		return ErrorClassRetryable
	case code >= 400:
		return ErrorClassFatal
	default:
		return ErrorClassRetryable
	}
}

// IsRetryableError checks if an error should trigger retry logic.
func IsRetryableError(err error) bool {
	return ClassifyError(err) == ErrorClassRetryable
}

// sendTries bounds attempts per platform send.
const sendTries = 3

// withRetry runs send until it succeeds, fails fatally, runs out of tries, or
// ctx ends.
func withRetry(ctx context.Context, send func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := send()
		if err != nil && !IsRetryableError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(sendTries))
	return err
}
