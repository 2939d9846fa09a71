package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddItemsCopied(1)
				c.AddItemsMoved(1)
				c.AddItemsDeleted(1)
				c.AddBytesCopied(256)
				c.AddDirsCreated(1)
				c.AddRenamed(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.ItemsCopied)
	assert.Equal(t, expected, s.ItemsMoved)
	assert.Equal(t, expected, s.ItemsDeleted)
	assert.Equal(t, expected*256, s.BytesCopied)
	assert.Equal(t, expected, s.DirsCreated)
	assert.Equal(t, expected, s.Renamed)
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		ItemsCopied:  10,
		ItemsMoved:   8,
		ItemsDeleted: 1,
		DirsCreated:  3,
		BytesCopied:  4096,
		Renamed:      2,
	}
	expected := "copied=10 moved=8 deleted=1 dirs=3 bytes=4096 renamed=2"
	assert.Equal(t, expected, s.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestTickAndRollingSpeed(t *testing.T) {
	c := NewCollector()

	// 5 seconds of 1000 bytes/sec and 10 items/sec.
	for range 5 {
		c.AddBytesCopied(1000)
		c.AddItemsCopied(6)
		c.AddItemsMoved(4)
		c.Tick()
	}

	assert.InDelta(t, 1000.0, c.RollingSpeed(5), 0.01)
	assert.InDelta(t, 10.0, c.RollingItemsPerSec(5), 0.01)
}

func TestRollingSpeedPartialWindow(t *testing.T) {
	c := NewCollector()

	c.AddBytesCopied(500)
	c.Tick()
	c.AddBytesCopied(500)
	c.Tick()

	// Ask for 10 but only have 2.
	assert.InDelta(t, 500.0, c.RollingSpeed(10), 0.01)
}

func TestRollingSpeedNoSamples(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 0.0, c.RollingSpeed(5))
}

func TestSparklineData(t *testing.T) {
	c := NewCollector()

	for i := range 5 {
		c.AddBytesCopied(int64((i + 1) * 100))
		c.Tick()
	}

	data := c.SparklineData(5)
	require.Len(t, data, 5)
	for i, want := range []float64{100, 200, 300, 400, 500} {
		assert.InDelta(t, want, data[i], 0.01)
	}
	assert.Nil(t, NewCollector().SparklineData(5))
}

func TestRingWraparound(t *testing.T) {
	c := NewCollector()

	for i := range ringSize + 10 {
		c.AddBytesCopied(int64(i + 1))
		c.Tick()
	}

	data := c.SparklineData(ringSize)
	require.Len(t, data, ringSize)
	assert.InDelta(t, float64(ringSize+10), data[ringSize-1], 0.01)
}

func TestETA(t *testing.T) {
	c := NewCollector()

	for range 5 {
		c.AddBytesCopied(1000)
		c.Tick()
	}

	assert.InDelta(t, 5.0, c.ETA(5000).Seconds(), 1.0)
	assert.Equal(t, time.Duration(0), c.ETA(0))
	assert.Equal(t, time.Duration(0), NewCollector().ETA(10000))
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	s := c.Snapshot()
	assert.Greater(t, s.Elapsed, time.Duration(0))
}

func TestStatusPercentage(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   float64
	}{
		{name: "empty", status: Status{}, want: 0},
		{name: "half", status: Status{CompletedBytes: 50, TotalBytes: 100}, want: 0.5},
		{name: "done", status: Status{CompletedBytes: 100, TotalBytes: 100}, want: 1},
		{name: "clamped", status: Status{CompletedBytes: 150, TotalBytes: 100}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.status.Percentage(), 1e-9)
		})
	}
}

func TestStatusString(t *testing.T) {
	s := Status{PendingItems: 3, CompletedItems: 1, CompletedBytes: 25, TotalBytes: 100}
	assert.Equal(t, 4, s.TotalItems())
	assert.Equal(t, "items=1/4 bytes=25/100 (25%)", s.String())
}
