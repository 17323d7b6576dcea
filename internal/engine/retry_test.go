package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumulus-iac/cumulus/pkg/provider"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_TransientThenSuccess(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return provider.Transient(errors.New("throttled"))
		}
		return nil
	}, IsTransientError)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentFailsImmediately(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return provider.Permanent(errors.New("access denied"))
	}, IsTransientError)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return provider.Transient(errors.New("still throttled"))
	}, IsTransientError)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "still throttled")
	assert.Equal(t, 4, attempts) // initial try plus MaxRetries
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryWithBackoff(ctx, fastPolicy(), func() error {
		attempts++
		return provider.Transient(errors.New("throttled"))
	}, IsTransientError)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsTransientError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"explicit transient", provider.Transient(errors.New("x")), true},
		{"explicit permanent", provider.Permanent(errors.New("timeout")), false},
		{"wrapped transient", errors.Join(errors.New("outer"), provider.Transient(errors.New("x"))), true},
		{"throttling code", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Anything", Message: "oops", Fault: smithy.FaultServer}, true},
		{"client fault", &smithy.GenericAPIError{Code: "AccessDenied", Message: "no", Fault: smithy.FaultClient}, false},
		{"timeout message", errors.New("request timed out"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"plain failure", errors.New("invalid parameter"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.transient, IsTransientError(tc.err))
		})
	}
}
