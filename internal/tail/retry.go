package tail

import (
	"math/rand/v2"
	"strings"
	"time"
)

// Retry budget for one stream task. After maxRetries failed reopens the
// task gives up; the discovery loop starts a fresh task for the container
// on a later tick if it is still selected.
const (
	maxRetries        = 3
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second
)

// retryableHints mark transient failures worth another attempt.
// Checked before fatalHints: a message matching both classes is retried.
var retryableHints = []string{
	"connection",
	"timeout",
	"network",
	"temporary",
	"rate limit",
	"service unavailable",
	"too many requests",
}

// fatalHints mark failures that cannot succeed on retry.
var fatalHints = []string{
	"not found",
	"forbidden",
	"unauthorized",
	"invalid",
	"malformed",
}

// isRetryable classifies a stream error by message substring. Unrecognized
// errors default to retryable.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range retryableHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	for _, hint := range fatalHints {
		if strings.Contains(msg, hint) {
			return false
		}
	}
	return true
}

// retryDelay returns the sleep before retry number attempt (0-based):
// a doubling delay capped at maxRetryDelay, plus up to a quarter of the
// capped delay in jitter to spread reconnects across tasks.
func retryDelay(attempt int) time.Duration {
	delay := initialRetryDelay << attempt
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int64N(int64(delay/4) + 1))
	return delay + jitter
}
