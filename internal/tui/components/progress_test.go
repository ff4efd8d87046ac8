package components

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		completed int
		want      float64
	}{
		{"no steps", 0, 0, 0},
		{"half way", 10, 5, 0.5},
		{"done", 4, 4, 1},
		{"clamped", 4, 9, 1},
		{"negative", 4, -1, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tt.want, NewProgress(tt.total).Ratio(tt.completed), 1e-9)
		})
	}
}

func TestProgressViewShowsCounter(t *testing.T) {
	t.Parallel()

	view := NewProgress(12).View(3)
	require.Contains(t, view, "3/12")
	require.Greater(t, len(view), len("3/12"))
}
