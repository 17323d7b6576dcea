package engine

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/smithy-go"

	"github.com/cumulus-iac/cumulus/internal/logging"
	"github.com/cumulus-iac/cumulus/pkg/provider"
)

// DefaultTimeout bounds a single resource operation when the resource
// declares no timeout of its own.
const DefaultTimeout = 30 * time.Minute

// RetryPolicy controls retries of transient provider failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// RetryWithBackoff runs fn, retrying with exponential backoff and jitter
// while retryable classifies the failure as transient. Permanent
// failures and context expiry return immediately.
func RetryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error, retryable func(error) bool) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.BaseDelay << (attempt - 1)
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
			delay += time.Duration(rand.Int63n(int64(delay) / 2))
			logging.Debug("retrying after transient failure", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// transientAPICodes are AWS error codes that resolve on their own.
var transientAPICodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"ServiceUnavailable":                     true,
	"InternalError":                          true,
	"InternalFailure":                        true,
	"RequestTimeout":                         true,
	"PriorRequestNotComplete":                true,
	"ProvisionedThroughputExceededException": true,
}

// IsTransientError classifies a provider failure. Explicit taxonomy
// errors win; otherwise AWS API errors are classified by code and fault,
// and anything else falls back to message matching.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var transient *provider.TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *provider.PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if transientAPICodes[apiErr.ErrorCode()] {
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"too many requests",
		"throttl",
		"rate limit",
		"service unavailable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
