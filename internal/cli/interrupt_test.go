package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInterruptHandler(t *testing.T) {
	tests := []struct {
		writer io.Writer
		name   string
	}{
		{
			name:   "with custom writer",
			writer: &bytes.Buffer{},
		},
		{
			name:   "with nil writer",
			writer: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewInterruptHandler(tt.writer)
			assert.NotNil(t, handler)
			assert.NotNil(t, handler.writer)
			assert.False(t, handler.interrupted)
		})
	}
}

func TestInterrupt_CancelsOnce(t *testing.T) {
	var output bytes.Buffer
	handler := NewInterruptHandler(&output)

	parent, stop := context.WithCancel(context.Background())
	defer stop()
	ctx := handler.HandleInterrupts(parent, "Import", "Nothing was committed.")

	handler.interrupt()
	handler.interrupt()

	<-ctx.Done()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, handler.WasInterrupted())
	assert.Equal(t, 1, strings.Count(output.String(), "Import interrupted!"))
	assert.Contains(t, output.String(), "Nothing was committed.")
}

func TestInterrupt_ParentCancelIsNotAnInterrupt(t *testing.T) {
	var output bytes.Buffer
	handler := NewInterruptHandler(&output)

	parent, stop := context.WithCancel(context.Background())
	ctx := handler.HandleInterrupts(parent, "Reconcile", "")
	stop()

	<-ctx.Done()
	assert.False(t, handler.WasInterrupted())
	assert.Empty(t, output.String())
}

func TestShowInterruptMessage(t *testing.T) {
	tests := []struct {
		name        string
		hint        string
		expected    []string
		notExpected []string
	}{
		{
			name:     "with hint",
			hint:     "Rerun the import; the batch was rolled back.",
			expected: []string{"Sync interrupted!", "Rerun the import"},
		},
		{
			name:        "without hint",
			expected:    []string{"Sync interrupted!"},
			notExpected: []string{"Rerun"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			handler := &InterruptHandler{
				writer:    &output,
				operation: "Sync",
				hint:      tt.hint,
			}

			handler.showInterruptMessage()

			for _, expected := range tt.expected {
				assert.Contains(t, output.String(), expected)
			}
			for _, notExpected := range tt.notExpected {
				assert.NotContains(t, output.String(), notExpected)
			}
		})
	}
}
