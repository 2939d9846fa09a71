package ui

import (
	"fmt"

	"github.com/bamsammich/courier/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  items 1,204  size 2.1 GB  avg 641 MB/s  time 3m 17s
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.VerifyFailed > 0 {
		icon = "✗"
	}

	items := snap.ItemsCopied + snap.ItemsMoved + snap.DirsCreated
	base := fmt.Sprintf("done %s  items %s  size %s  avg %s  time %s",
		icon,
		FormatCount(items),
		FormatBytes(snap.BytesCopied),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.ItemsDeleted > 0 {
		base += "  deleted " + FormatCount(snap.ItemsDeleted)
	}
	if snap.Renamed > 0 {
		base += "  renamed " + FormatCount(snap.Renamed)
	}
	if snap.Verified > 0 || snap.VerifyFailed > 0 {
		base += "  verified " + FormatCount(snap.Verified)
		if snap.VerifyFailed > 0 {
			base += fmt.Sprintf("  mismatches %d", snap.VerifyFailed)
		}
	}
	return base
}
