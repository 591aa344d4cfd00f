package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  NewRetryableError(errors.New("reset by peer"), time.Second),
			want: true,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("file a.mkv: %w", NewRetryableError(errors.New("timeout"), 0)),
			want: true,
		},
		{
			name: "transient remote error",
			err:  &RemoteError{Op: "status", Message: "bad gateway", Transient: true},
			want: true,
		},
		{
			name: "permanent remote error",
			err:  &RemoteError{Op: "upload", Code: "MAGNET_INVALID_URI", Message: "invalid magnet"},
			want: false,
		},
		{
			name: "regular error",
			err:  errors.New("permission denied"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	d, ok := GetRetryAfter(fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), 30*time.Second)))
	if !ok || d != 30*time.Second {
		t.Errorf("GetRetryAfter() = (%v, %v), want (30s, true)", d, ok)
	}

	if d, ok := GetRetryAfter(errors.New("plain")); ok || d != 0 {
		t.Errorf("GetRetryAfter(plain) = (%v, %v), want (0, false)", d, ok)
	}
}

func TestRemoteError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RemoteError
		want string
	}{
		{
			name: "op code and message",
			err:  &RemoteError{Op: "upload", Code: "AUTH_BAD_APIKEY", Message: "The auth apikey is invalid"},
			want: "upload: The auth apikey is invalid (AUTH_BAD_APIKEY)",
		},
		{
			name: "falls back to wrapped error",
			err:  &RemoteError{Op: "status", Err: errors.New("connection refused")},
			want: "status: connection refused",
		},
		{
			name: "message only",
			err:  &RemoteError{Message: "oops"},
			want: "oops",
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

func TestErrorMessage(t *testing.T) {
	remote := &RemoteError{Op: "upload", Code: "MAGNET_NO_URI", Message: "No magnet sent"}

	if got := ErrorMessage(fmt.Errorf("register: %w", remote)); got != "No magnet sent" {
		t.Errorf("ErrorMessage(remote) = %q, want provider message", got)
	}
	if got := ErrorMessage(errors.New("disk full")); got != "disk full" {
		t.Errorf("ErrorMessage(plain) = %q", got)
	}
	if got := ErrorMessage(nil); got != "" {
		t.Errorf("ErrorMessage(nil) = %q, want empty", got)
	}
}

func TestErrorsAsUnwrap(t *testing.T) {
	if !errors.Is(NewRetryableError(ErrTransferStalled, time.Second), ErrTransferStalled) {
		t.Error("RetryableError should unwrap to ErrTransferStalled")
	}
	cause := errors.New("dial tcp: timeout")
	if !errors.Is(&RemoteError{Err: cause}, cause) {
		t.Error("RemoteError should unwrap to its cause")
	}
}
