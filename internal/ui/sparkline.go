package ui

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the last width samples of data as block characters,
// scaled to the largest sample shown. Short input is left-padded with the
// lowest block.
func Sparkline(data []float64, width int) string {
	if width <= 0 {
		return ""
	}
	window := lastN(data, width)

	peak := 0.0
	for _, v := range window {
		peak = max(peak, v)
	}

	out := make([]rune, width)
	pad := width - len(window)
	for i := range pad {
		out[i] = sparkBlocks[0]
	}
	top := len(sparkBlocks) - 1
	for i, v := range window {
		level := 0
		if peak > 0 && v > 0 {
			level = min(int(v/peak*float64(top)), top)
		}
		out[pad+i] = sparkBlocks[level]
	}
	return string(out)
}

func lastN(data []float64, n int) []float64 {
	if len(data) <= n {
		return data
	}
	return data[len(data)-n:]
}
