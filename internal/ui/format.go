package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bamsammich/courier/internal/stats"
)

const (
	barFilled = "▪"
	barEmpty  = "□"
)

// FormatRate formats a bytes-per-second rate in binary units with three
// significant digits.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	if bytesPerSec < 1024 {
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	}
	val := bytesPerSec
	unit := -1
	for val >= 1024 && unit < len("KMGTP")-1 {
		val /= 1024
		unit++
	}
	prefix := string("KMGTP"[unit]) + "iB/s"
	switch {
	case val < 10:
		return fmt.Sprintf("%.2f %s", val, prefix)
	case val < 100:
		return fmt.Sprintf("%.1f %s", val, prefix)
	default:
		return fmt.Sprintf("%.0f %s", val, prefix)
	}
}

// FormatETA formats a remaining duration; unknown or elapsed ETAs render
// as "--".
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return clock(d)
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	return clock(max(d, 0))
}

// clock renders d as "1h 02m 03s", "2m 03s" or "3s".
func clock(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatCount formats an integer with comma thousands separators.
func FormatCount(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, digits = "-", digits[1:]
	}
	var out []byte
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return sign + string(out)
}

// ProgressBar renders pct (clamped to [0, 1]) as a bar of width cells.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := min(int(min(max(pct, 0), 1)*float64(width)), width)
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}

// DisplayPath strips root from an entry URL ("vol:/path") for display. The
// volume prefix is dropped for the local volume.
func DisplayPath(root, url string) string {
	if root != "" {
		if rel, ok := strings.CutPrefix(url, strings.TrimSuffix(root, "/")+"/"); ok {
			return rel
		}
	}
	if p, ok := strings.CutPrefix(url, "local:"); ok {
		return p
	}
	return url
}
