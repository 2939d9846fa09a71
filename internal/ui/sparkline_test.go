package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparkline(t *testing.T) {
	tests := []struct {
		name  string
		data  []float64
		width int
		want  string
	}{
		{"all zeros", []float64{0, 0, 0}, 3, "▁▁▁"},
		{"empty", nil, 4, "▁▁▁▁"},
		{"single sample padded", []float64{100}, 4, "▁▁▁█"},
		{"ramp", []float64{1, 2, 3, 4, 5, 6, 7, 8}, 8, "▁▂▃▄▅▆▇█"},
		{"flat is peak", []float64{5, 5, 5}, 3, "███"},
		{"keeps last samples", []float64{80, 0, 10, 20}, 2, "▄█"},
		{"negative clamps", []float64{-3, 7}, 2, "▁█"},
		{"zero width", []float64{1, 2, 3}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sparkline(tt.data, tt.width))
		})
	}
}
