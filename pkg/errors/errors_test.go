package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrNotFound, true},
		{"wrapped once", fmt.Errorf("get run: %w", ErrNotFound), true},
		{"wrapped twice", fmt.Errorf("history: %w", fmt.Errorf("store: %w", ErrNotFound)), true},
		{"different error", ErrValidation, false},
		{"nil error", nil, false},
		{"unrelated error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrValidation, true},
		{"wrapped", fmt.Errorf("input: %w", ErrValidation), true},
		{"different error", ErrNotFound, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.want {
				t.Errorf("IsValidation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsInvalidState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrInvalidState, true},
		{"wrapped", fmt.Errorf("start run: %w", ErrInvalidState), true},
		{"different error", ErrCancelled, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidState(tt.err); got != tt.want {
				t.Errorf("IsInvalidState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(fmt.Errorf("run: %w", ErrCancelled)) {
		t.Error("IsCancelled() should match wrapped ErrCancelled")
	}
	if IsCancelled(ErrNotFound) {
		t.Error("IsCancelled() should not match ErrNotFound")
	}
}
