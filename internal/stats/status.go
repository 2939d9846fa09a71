package stats

import "fmt"

// Status is an aggregate snapshot of every task in the current batch.
type Status struct {
	// OperationType is the mode shared by all tasks ("copy", "move",
	// "delete-after-copy", "archive"), or empty when the batch is mixed.
	OperationType string
	// ProcessingName is the display name of the single pending item, set
	// only when exactly one item remains.
	ProcessingName string

	PendingItems   int
	CompletedItems int
	CopyItems      int // pending items of copy and delete-after-copy tasks
	MoveItems      int
	ArchiveItems   int

	PendingBytes   int64
	CompletedBytes int64
	TotalBytes     int64
}

// Percentage returns completed/total bytes in [0, 1]. An empty batch is
// reported as 0.
func (s Status) Percentage() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	p := float64(s.CompletedBytes) / float64(s.TotalBytes)
	return min(max(p, 0), 1)
}

// TotalItems returns pending plus completed items.
func (s Status) TotalItems() int { return s.PendingItems + s.CompletedItems }

func (s Status) String() string {
	return fmt.Sprintf(
		"items=%d/%d bytes=%d/%d (%.0f%%)",
		s.CompletedItems, s.TotalItems(), s.CompletedBytes, s.TotalBytes, s.Percentage()*100,
	)
}
