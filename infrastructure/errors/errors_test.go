package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeForbidden, "test message", http.StatusForbidden),
			want: "[AUTHZ_2001] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test", http.StatusBadRequest)
	err.WithDetails("field", "username").WithDetails("reason", "too short")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "username" {
		t.Errorf("Details[field] = %v, want username", err.Details["field"])
	}

	if err.Details["reason"] != "too short" {
		t.Errorf("Details[reason] = %v, want too short", err.Details["reason"])
	}
}

func TestForbidden(t *testing.T) {
	err := Forbidden("access denied")

	if err.Code != ErrCodeForbidden {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeForbidden)
	}

	if err.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusForbidden)
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("selector", "invalid regex")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}

	if err.Details["field"] != "selector" {
		t.Errorf("Details[field] = %v, want selector", err.Details["field"])
	}
}

func TestMissingParameter(t *testing.T) {
	err := MissingParameter("partition_id")

	if err.Code != ErrCodeMissingParameter {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingParameter)
	}

	if err.Details["parameter"] != "partition_id" {
		t.Errorf("Details[parameter] = %v, want partition_id", err.Details["parameter"])
	}
}

func TestInvalidFormat(t *testing.T) {
	err := InvalidFormat("since", "RFC3339 timestamp")

	if err.Code != ErrCodeInvalidFormat {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidFormat)
	}

	if err.Details["expected"] != "RFC3339 timestamp" {
		t.Errorf("Details[expected] = %v, want RFC3339 timestamp", err.Details["expected"])
	}
}

func TestOutOfRange(t *testing.T) {
	err := OutOfRange("limit", 1, 1000)

	if err.Code != ErrCodeOutOfRange {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeOutOfRange)
	}

	if err.Details["field"] != "limit" {
		t.Errorf("Details[field] = %v, want limit", err.Details["field"])
	}

	if err.Details["min"] != 1 {
		t.Errorf("Details[min] = %v, want 1", err.Details["min"])
	}

	if err.Details["max"] != 1000 {
		t.Errorf("Details[max] = %v, want 1000", err.Details["max"])
	}
}

func TestParseFailed(t *testing.T) {
	underlying := errors.New("unexpected token 'AND' at position 12")
	err := ParseFailed("level=error AND", underlying)

	if err.Code != ErrCodeParseFailed {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeParseFailed)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}

	if err.Details["input"] != "level=error AND" {
		t.Errorf("Details[input] = %v, want raw query text", err.Details["input"])
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("partition", "p-2026-07-31")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}

	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}

	if err.Details["resource"] != "partition" {
		t.Errorf("Details[resource] = %v, want partition", err.Details["resource"])
	}
}

func TestAlreadyExists(t *testing.T) {
	err := AlreadyExists("alarm", "a-1")

	if err.Code != ErrCodeAlreadyExists {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeAlreadyExists)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
}

func TestConflict(t *testing.T) {
	err := Conflict("shard already owned by another node")

	if err.Code != ErrCodeConflict {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConflict)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("disk full")
	err := Internal("flush failed", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestIndexIOError(t *testing.T) {
	underlying := errors.New("segment write failed")
	err := IndexIOError("partition.flush", underlying)

	if err.Code != ErrCodeIndexIOError {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeIndexIOError)
	}

	if err.Details["operation"] != "partition.flush" {
		t.Errorf("Details[operation] = %v, want partition.flush", err.Details["operation"])
	}
}

func TestExternalAPIError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := ExternalAPIError("peer-node-3", underlying)

	if err.Code != ErrCodeExternalAPI {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeExternalAPI)
	}

	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadGateway)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	err := RateLimitExceeded(100, "1m")

	if err.Code != ErrCodeRateLimitExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeRateLimitExceeded)
	}

	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTooManyRequests)
	}

	if err.Details["limit"] != 100 {
		t.Errorf("Details[limit] = %v, want 100", err.Details["limit"])
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "service error", err: New(ErrCodeInternal, "test", http.StatusInternalServerError), want: true},
		{name: "standard error", err: errors.New("standard error"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{name: "service error", err: serviceErr, want: serviceErr},
		{name: "standard error", err: standardErr, want: nil},
		{name: "nil error", err: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "service error", err: New(ErrCodeForbidden, "test", http.StatusForbidden), want: http.StatusForbidden},
		{name: "standard error", err: errors.New("standard error"), want: http.StatusInternalServerError},
		{name: "nil error", err: nil, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout("shard.search")

	if err.Code != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeout)
	}

	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}

	if err.Details["operation"] != "shard.search" {
		t.Errorf("Details[operation] = %v, want shard.search", err.Details["operation"])
	}
}
