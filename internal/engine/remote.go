package engine

import "github.com/bamsammich/courier/internal/transport"

// legMeter folds per-leg transfer progress into one non-decreasing byte
// count. When both ends are remote the transfer is one unit of work split
// over a download and an upload leg, so each leg counts for half.
type legMeter struct {
	legs     [2]int64
	reported int64
	halve    bool
}

func newLegMeter(bothRemote bool) *legMeter {
	return &legMeter{halve: bothRemote}
}

func (lm *legMeter) update(p transport.TransferProgress) int64 {
	if p.Leg < 0 || int(p.Leg) >= len(lm.legs) {
		return lm.reported
	}
	lm.legs[p.Leg] = max(lm.legs[p.Leg], p.Processed)

	v := lm.legs[transport.LegDownload] + lm.legs[transport.LegUpload]
	if lm.halve {
		v = lm.legs[transport.LegDownload]/2 + lm.legs[transport.LegUpload]/2
	}
	lm.reported = max(lm.reported, v)
	return lm.reported
}
