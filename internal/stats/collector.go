package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks transfer statistics using lock-free atomic counters. The
// engine feeds it from the runner goroutine; presenters read it.
type Collector struct {
	startTime time.Time

	itemsCopied  atomic.Int64
	itemsMoved   atomic.Int64
	itemsDeleted atomic.Int64
	dirsCreated  atomic.Int64
	bytesCopied  atomic.Int64
	bytesTotal   atomic.Int64
	verified     atomic.Int64
	verifyFailed atomic.Int64
	renamed      atomic.Int64

	// Ring buffer, written only by Tick.
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per second
	itemsPerSec [ringSize]int64 // items delta per second
	ringIdx     int
	ringCount   int
	lastBytes   int64
	lastItems   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ItemsCopied  int64
	ItemsMoved   int64
	ItemsDeleted int64
	DirsCreated  int64
	BytesCopied  int64
	BytesTotal   int64
	Verified     int64
	VerifyFailed int64
	Renamed      int64
	Elapsed      time.Duration
}

func (c *Collector) AddItemsCopied(n int64)  { c.itemsCopied.Add(n) }
func (c *Collector) AddItemsMoved(n int64)   { c.itemsMoved.Add(n) }
func (c *Collector) AddItemsDeleted(n int64) { c.itemsDeleted.Add(n) }
func (c *Collector) AddDirsCreated(n int64)  { c.dirsCreated.Add(n) }
func (c *Collector) AddBytesCopied(n int64)  { c.bytesCopied.Add(n) }
func (c *Collector) AddBytesTotal(n int64)   { c.bytesTotal.Add(n) }
func (c *Collector) AddVerified(n int64)     { c.verified.Add(n) }
func (c *Collector) AddVerifyFailed(n int64) { c.verifyFailed.Add(n) }

// AddRenamed counts entries that landed under a numbered name.
func (c *Collector) AddRenamed(n int64) { c.renamed.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ItemsCopied:  c.itemsCopied.Load(),
		ItemsMoved:   c.itemsMoved.Load(),
		ItemsDeleted: c.itemsDeleted.Load(),
		DirsCreated:  c.dirsCreated.Load(),
		BytesCopied:  c.bytesCopied.Load(),
		BytesTotal:   c.bytesTotal.Load(),
		Verified:     c.verified.Load(),
		VerifyFailed: c.verifyFailed.Load(),
		Renamed:      c.renamed.Load(),
		Elapsed:      c.Elapsed(),
	}
}

// Tick snapshots byte/item deltas into the ring buffer. Called 1/sec by the
// presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesCopied.Load()
	currentItems := c.itemsCopied.Load() + c.itemsMoved.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = currentBytes - c.lastBytes
	c.itemsPerSec[c.ringIdx] = currentItems - c.lastItems
	c.lastBytes = currentBytes
	c.lastItems = currentItems

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingItemsPerSec returns average items/sec over the last n seconds.
func (c *Collector) RollingItemsPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.itemsPerSec[:], seconds)
}

// SparklineData returns the last n bytes/sec samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count == 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// ETA estimates remaining time for remaining bytes at the rolling speed.
func (c *Collector) ETA(remaining int64) time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"copied=%d moved=%d deleted=%d dirs=%d bytes=%d renamed=%d",
		s.ItemsCopied, s.ItemsMoved, s.ItemsDeleted, s.DirsCreated,
		s.BytesCopied, s.Renamed,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
