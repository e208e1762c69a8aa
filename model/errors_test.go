package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Page not found"}
	want := "NOT_FOUND: Page not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewBackendTimeoutError(t *testing.T) {
	e := NewBackendTimeoutError()
	if e.Code != ErrBackendTimeout {
		t.Errorf("Code = %q, want %q", e.Code, ErrBackendTimeout)
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "status",
			err:  &APIError{StatusCode: 400, Method: "GET", URL: "http://x/a"},
			want: "GET http://x/a: status 400",
		},
		{
			name: "transport",
			err:  &APIError{Method: "GET", URL: "http://x/a", Err: errors.New("Network Error")},
			want: "Network Error",
		},
		{
			name: "transport without cause",
			err:  &APIError{Method: "POST", URL: "http://x/a"},
			want: "POST http://x/a: no response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := NewBackendUnavailableError()
	err := fmt.Errorf("finance: %w", &APIError{Err: cause})

	var env *ErrorEnvelope
	if !errors.As(err, &env) {
		t.Fatal("errors.As did not reach the wrapped envelope")
	}
	if env.Code != ErrBackendUnavailable {
		t.Errorf("Code = %q", env.Code)
	}
}

func TestStatusCode(t *testing.T) {
	wrapped := fmt.Errorf("crm: %w", &APIError{StatusCode: 401})
	if got := StatusCode(wrapped); got != 401 {
		t.Errorf("StatusCode() = %d, want 401", got)
	}
	if !IsUnauthorized(wrapped) {
		t.Error("IsUnauthorized() = false, want true")
	}
	if got := StatusCode(errors.New("plain")); got != 0 {
		t.Errorf("StatusCode(plain) = %d, want 0", got)
	}
	if IsUnauthorized(&APIError{StatusCode: 403}) {
		t.Error("IsUnauthorized(403) = true")
	}
}
