package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "loud", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug, "json")
	ctx := WithLogger(context.Background(), logger)

	LogInfo(ctx, "import finished", Fields{"import_id": "abc"})
	LogError(ctx, errors.New("boom"), "sink failed", nil)

	out := buf.String()
	assert.Contains(t, out, `"import_id":"abc"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Same(t, slog.Default(), LoggerFrom(context.Background()))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "rate limit", err: ErrRateLimit, want: true},
		{name: "provider rate limit", err: fmt.Errorf("ga4: %w", ErrProviderRateLimit), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "marked retryable", err: &RetryableError{Err: errors.New("x"), Retryable: true}, want: true},
		{name: "marked permanent", err: &RetryableError{Err: errors.New("x"), Retryable: false}, want: false},
		{name: "not found", err: ErrNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	opts := service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: errors.New("bad request"), Retryable: false}
		}, opts)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		err := WithRetry(context.Background(), func() error {
			return errors.New("always")
		}, opts)
		require.ErrorIs(t, err, ErrMaxRetries)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error {
			return errors.New("always")
		}, service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Second})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestUserError(t *testing.T) {
	err := NewUserError("could not read file", errors.New("permission denied"))
	assert.Equal(t, "could not read file: permission denied", err.Error())

	var userErr *UserError
	require.True(t, errors.As(err, &userErr))
	assert.Equal(t, "could not read file", userErr.UserMessage)
}
