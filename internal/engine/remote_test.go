package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/courier/internal/transport"
)

func down(n int64) transport.TransferProgress {
	return transport.TransferProgress{Leg: transport.LegDownload, Processed: n}
}

func up(n int64) transport.TransferProgress {
	return transport.TransferProgress{Leg: transport.LegUpload, Processed: n}
}

func TestLegMeter_SingleLeg(t *testing.T) {
	t.Parallel()
	lm := newLegMeter(false)
	assert.Equal(t, int64(10), lm.update(up(10)))
	assert.Equal(t, int64(40), lm.update(up(40)))
	assert.Equal(t, int64(40), lm.update(up(20)), "stale report")
}

func TestLegMeter_BothRemoteHalves(t *testing.T) {
	t.Parallel()
	lm := newLegMeter(true)

	// Interleaved legs of a 100-byte file.
	steps := []struct {
		p    transport.TransferProgress
		want int64
	}{
		{down(20), 10},
		{down(60), 30},
		{up(10), 35},
		{down(100), 55},
		{up(50), 75},
		{up(40), 75},
		{up(100), 100},
	}
	var last int64
	for _, s := range steps {
		got := lm.update(s.p)
		assert.Equal(t, s.want, got)
		assert.GreaterOrEqual(t, got, last)
		last = got
	}
}

func TestLegMeter_IgnoresUnknownLeg(t *testing.T) {
	t.Parallel()
	lm := newLegMeter(false)
	lm.update(down(5))
	assert.Equal(t, int64(5), lm.update(transport.TransferProgress{Leg: transport.Leg(7), Processed: 1000}))
}
