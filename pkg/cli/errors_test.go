package cli

import (
	"errors"
	"fmt"
	"testing"

	"mercator-hq/modelrouter/pkg/store"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("store.type", "unsupported value"), "config error in store.type: unsupported value"},
		{NewConfigError("", "file not found"), "config error: file not found"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("rollback", underlyingErr)

	expected := "command rollback failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "config error", err: NewConfigError("x", "y"), want: ExitConfigError},
		{name: "wrapped config error", err: fmt.Errorf("load: %w", NewConfigError("x", "y")), want: ExitConfigError},
		{name: "invalid argument", err: NewCommandError("get", store.ErrInvalidArgument), want: ExitUsage},
		{name: "not initialized", err: NewCommandError("get", store.ErrNotInitialized), want: ExitNotFound},
		{name: "version not found", err: NewCommandError("rollback", store.ErrVersionNotFound), want: ExitNotFound},
		{name: "missing repository", err: store.ErrMissingRepository, want: ExitConfigError},
		{name: "io failure", err: store.ErrIOFailure, want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
