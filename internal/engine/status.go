package engine

import "github.com/bamsammich/courier/internal/stats"

// aggregate folds tasks into a batch status.
func aggregate(tasks []*Task) stats.Status {
	var s stats.Status
	var common Mode
	mixed := false

	for i, t := range tasks {
		pending := t.pendingItems()
		s.PendingItems += pending
		s.CompletedItems += t.completedItems()
		s.PendingBytes += t.pendingBytes()
		s.CompletedBytes += t.completedBytes
		s.TotalBytes += t.totalBytes

		switch t.Mode {
		case ModeMove:
			s.MoveItems += pending
		case ModeArchive:
			s.ArchiveItems += pending
		default:
			s.CopyItems += pending
		}

		if i == 0 {
			common = t.Mode
		} else if t.Mode != common {
			mixed = true
		}
	}

	if len(tasks) > 0 && !mixed {
		s.OperationType = common.String()
	}
	if s.PendingItems == 1 {
		for _, t := range tasks {
			if names := t.pendingNames(1); len(names) == 1 {
				s.ProcessingName = names[0]
				break
			}
		}
	}
	return s
}
