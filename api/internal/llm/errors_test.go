package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func statusWithReason(t *testing.T, code codes.Code, msg, reason string) error {
	t.Helper()
	st, err := status.New(code, msg).WithDetails(&errdetails.ErrorInfo{
		Reason: reason,
		Domain: "googleapis.com",
	})
	require.NoError(t, err)
	return st.Err()
}

func TestClassifyStructured(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"reason api key", statusWithReason(t, codes.InvalidArgument, "API key not valid. Please pass a valid API key.", "API_KEY_INVALID"), ClassInvalidKey},
		{"reason quota", statusWithReason(t, codes.ResourceExhausted, "exhausted", "QUOTA_EXCEEDED"), ClassQuota},
		{"reason rate", statusWithReason(t, codes.ResourceExhausted, "slow down", "RATE_LIMIT_EXCEEDED"), ClassRateLimited},
		{"reason wins over message", statusWithReason(t, codes.PermissionDenied, "mentions QUOTA_EXCEEDED", "PERMISSION_DENIED"), ClassPermission},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "no creds"), ClassInvalidKey},
		{"grpc permission", status.Error(codes.PermissionDenied, "nope"), ClassPermission},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "too many"), ClassRateLimited},
		{"grpc other", status.Error(codes.Internal, "boom"), ClassUnknown},
		{"http 403", &googleapi.Error{Code: 403, Message: "forbidden"}, ClassPermission},
		{"http 429", &googleapi.Error{Code: 429, Message: "Resource has been exhausted"}, ClassRateLimited},
		{"http 401 wrapped", fmt.Errorf("call: %w", &googleapi.Error{Code: 401}), ClassInvalidKey},
		{"http 500", &googleapi.Error{Code: 500, Message: "internal"}, ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassifyFallsBackToMessage(t *testing.T) {
	assert.Equal(t, ClassInvalidKey, Classify(errors.New("[400] API_KEY_INVALID something")))
	assert.Equal(t, ClassQuota, Classify(errors.New("googleapi: QUOTA_EXCEEDED for project")))
	assert.Equal(t, ClassPermission, Classify(errors.New("PERMISSION_DENIED")))
	assert.Equal(t, ClassRateLimited, Classify(errors.New("RATE_LIMIT_EXCEEDED")))
	assert.Equal(t, ClassUnknown, Classify(errors.New("connection reset by peer")))
	assert.Equal(t, Class(""), Classify(nil))
}

func TestWrapKeepsRawErrorOutOfMessage(t *testing.T) {
	raw := errors.New("upstream said API_KEY_INVALID: key=abc123")
	le := Wrap(raw)
	require.NotNil(t, le)
	assert.Equal(t, ClassInvalidKey, le.Class)
	assert.Equal(t, "Invalid API key configuration. Please check your Gemini API key.", le.Message)
	assert.NotContains(t, le.Message, "abc123")
	assert.ErrorIs(t, le, raw)

	again := Wrap(fmt.Errorf("outer: %w", le))
	assert.Same(t, le, again)
	assert.Nil(t, Wrap(nil))
}

func TestClassPredicates(t *testing.T) {
	assert.True(t, ClassQuota.Throttled())
	assert.True(t, ClassRateLimited.Throttled())
	assert.False(t, ClassInvalidKey.Throttled())
	assert.True(t, ClassInvalidKey.Credential())
	assert.True(t, ClassPermission.Credential())
	assert.False(t, ClassUnknown.Credential())

	assert.Equal(t, "API validation failed", ClassUnknown.ProbeMessage())
	assert.Equal(t, "API validation failed", ClassEmpty.ProbeMessage())
	assert.Equal(t, "Failed to generate solutions. Please try again.", ClassUnknown.Message())
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(fmt.Errorf("x: %w", context.Canceled)))
	assert.True(t, IsCanceled(context.DeadlineExceeded))
	assert.False(t, IsCanceled(errors.New("other")))
}
