package errors

import (
	"context"
	"errors"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ServiceError
		expected string
	}{
		{
			name: "error with cause",
			err: &ServiceError{
				Type:      ErrorTypeNetwork,
				Operation: "miner_poll",
				Message:   "poll failed",
				Cause:     errors.New("connection refused"),
			},
			expected: "network operation 'miner_poll' failed: poll failed (caused by: connection refused)",
		},
		{
			name: "error without cause",
			err: &ServiceError{
				Type:      ErrorTypeValidation,
				Operation: "rate_schedule_check",
				Message:   "overlapping intervals",
				Cause:     nil,
			},
			expected: "validation operation 'rate_schedule_check' failed: overlapping intervals",
		},
		{
			name: "upstream error",
			err: &ServiceError{
				Type:      ErrorTypeUpstream,
				Operation: "btc_price",
				Message:   "no price available",
			},
			expected: "upstream operation 'btc_price' failed: no price available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("ServiceError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ServiceError{
		Type:      ErrorTypeNetwork,
		Operation: "test",
		Message:   "test",
		Cause:     cause,
	}

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("ServiceError.Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := &ServiceError{
		Type:      ErrorTypeNetwork,
		Operation: "test",
		Message:   "test",
	}

	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("ServiceError.Unwrap() = %v, want nil", unwrapped)
	}
}

func TestServiceError_WithContext(t *testing.T) {
	err := &ServiceError{
		Type:      ErrorTypeDatabase,
		Operation: "test",
		Message:   "test",
	}

	err = err.WithContext("miner_ip", "192.168.1.50").WithContext("pool_index", 0)

	if len(err.Context) != 2 {
		t.Errorf("Expected 2 context items, got %d", len(err.Context))
	}

	if err.Context["miner_ip"] != "192.168.1.50" {
		t.Errorf("Expected miner_ip = '192.168.1.50', got %v", err.Context["miner_ip"])
	}

	if err.Context["pool_index"] != 0 {
		t.Errorf("Expected pool_index = 0, got %v", err.Context["pool_index"])
	}
}

func TestNew(t *testing.T) {
	err := New(ErrorTypeValidation, "pool_config", "fee out of range")

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected type %v, got %v", ErrorTypeValidation, err.Type)
	}

	if err.Operation != "pool_config" {
		t.Errorf("Expected operation 'pool_config', got '%s'", err.Operation)
	}

	if err.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	// Validation errors should not be retryable by default
	if err.Retryable {
		t.Error("Expected validation error to not be retryable")
	}
}

func TestNew_UpstreamRetryable(t *testing.T) {
	// Missing chain data is a hard failure for callers but a later fetch
	// may succeed, so it stays retryable for the fetch loop.
	err := New(ErrorTypeUpstream, "network_difficulty", "unavailable")
	if !err.Retryable {
		t.Error("Expected upstream error to be retryable")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("original error")
	err := Wrap(cause, ErrorTypeNetwork, "influx_write", "wrapped message")

	if err.Cause != cause {
		t.Errorf("Expected cause to be preserved")
	}

	if err.Type != ErrorTypeNetwork {
		t.Errorf("Expected type %v, got %v", ErrorTypeNetwork, err.Type)
	}

	// Wrapping nil returns nil
	if wrapped := Wrap(nil, ErrorTypeNetwork, "op", "msg"); wrapped != nil {
		t.Errorf("Wrap(nil) = %v, want nil", wrapped)
	}
}

func TestWrap_PreservesRetryability(t *testing.T) {
	inner := New(ErrorTypeValidation, "inner", "not retryable")
	outer := Wrap(inner, ErrorTypeInternal, "outer", "wrapper")

	if outer.Retryable {
		t.Error("Expected wrapped validation error to stay non-retryable")
	}
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeBitcoin, "get_difficulty", "rpc failed")

	if !IsType(err, ErrorTypeBitcoin) {
		t.Error("Expected IsType to match bitcoin error")
	}

	if IsType(err, ErrorTypeKafka) {
		t.Error("Expected IsType to not match kafka")
	}

	if IsType(errors.New("plain"), ErrorTypeBitcoin) {
		t.Error("Expected plain error to not match any type")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable service error", New(ErrorTypeNetwork, "op", "msg"), true},
		{"non-retryable service error", New(ErrorTypeValidation, "op", "msg"), false},
		{"plain network-looking error", errors.New("connection refused"), true},
		{"plain unrelated error", errors.New("bad input"), false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetContext(t *testing.T) {
	err := New(ErrorTypeDatabase, "op", "msg").WithContext("table", "pool_configs")

	ctx := GetContext(err)
	if ctx == nil || ctx["table"] != "pool_configs" {
		t.Errorf("GetContext() = %v, want table=pool_configs", ctx)
	}

	if GetContext(errors.New("plain")) != nil {
		t.Error("Expected nil context for plain error")
	}
}
