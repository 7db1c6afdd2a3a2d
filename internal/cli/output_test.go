package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Veraticus/tally/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"ID", "STATUS"},
		[][]string{
			{"batch-1", "COMPLETED"},
			{"b2"},
		},
	)

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "batch-1")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "b2")

	statusCol := strings.Index(lines[0], "STATUS")
	require.Positive(t, statusCol)
	assert.Equal(t, statusCol, strings.Index(out[strings.Index(out, "batch-1"):], "COMPLETED"),
		"cells line up under their header")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 3, "Checking imports")

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Add(1))
	}
	require.NoError(t, p.Finish())
	assert.Contains(t, buf.String(), "Checking imports")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"full yes", "YES\n", true},
		{"no", "n\n", false},
		{"empty", "\n", false},
		{"eof", "", false},
		{"no trailing newline", "y", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := Confirm(context.Background(), NewNonBlockingReader(strings.NewReader(tt.input)), &out, "Delete import?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Delete import? [y/N]")
		})
	}
}

func TestConfirm_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := Confirm(ctx, NewNonBlockingReader(strings.NewReader("y\n")), &out, "Delete?")
	assert.ErrorIs(t, err, ErrInputCancelled)
}

func TestFormatStatusKeepsText(t *testing.T) {
	for _, s := range []model.ImportStatus{model.StatusPending, model.StatusProcessing, model.StatusCompleted, model.StatusFailed} {
		assert.Contains(t, FormatStatus(s), string(s))
	}
	for _, s := range []model.BenchmarkStatus{model.BenchmarkAbove, model.BenchmarkBelow, model.BenchmarkMeeting, model.BenchmarkUnavailable} {
		assert.Contains(t, FormatBenchmark(s), string(s))
	}
}
