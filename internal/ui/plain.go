package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/courier/internal/stats"
)

// plainPresenter outputs one line per completed mutation to stdout, and
// periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	dstRoot string
	status  stats.Status
	active  bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			if p.active {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	path := DisplayPath(p.dstRoot, ev.Path)
	switch ev.Type {
	case Begin:
		p.active = true
		p.status = ev.Status
		fmt.Fprintf(p.errW, "%s: %s items, %s\n",
			opName(ev.Status), FormatCount(int64(ev.Status.TotalItems())), FormatBytes(ev.Status.TotalBytes))
	case Progress:
		p.status = ev.Status
	case Success:
		p.active = false
		p.status = ev.Status
	case Error:
		p.active = false
		fmt.Fprintf(p.errW, "error: %v\n", ev.Error)
	case Cancelled:
		p.active = false
		fmt.Fprintf(p.errW, "cancelled after %s of %s items\n",
			FormatCount(int64(ev.Status.CompletedItems)), FormatCount(int64(ev.Status.TotalItems())))
	case Copied:
		speed := p.stats.RollingSpeed(5)
		fmt.Fprintf(p.w, "%s  %s\n", path, FormatRate(speed))
	case Moved:
		fmt.Fprintf(p.w, "%s  moved\n", path)
	case Deleted:
		fmt.Fprintf(p.w, "delete: %s\n", path)
	case DeleteScheduled:
		fmt.Fprintf(p.errW, "delete #%d scheduled: %d entries\n", ev.JobID, len(ev.Paths))
	case DeleteCancelled:
		fmt.Fprintf(p.errW, "delete #%d undone\n", ev.JobID)
	case DeleteSucceeded:
		fmt.Fprintf(p.errW, "delete #%d: removed %d of %d\n", ev.JobID, ev.Count, len(ev.Paths))
	}
}

func (p *plainPresenter) printProgress() {
	s := p.status
	if s.TotalBytes > 0 {
		speed := p.stats.RollingSpeed(10)
		eta := p.stats.ETA(s.PendingBytes)
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s items %s eta %s\n",
			s.Percentage()*100,
			FormatBytes(s.CompletedBytes), FormatBytes(s.TotalBytes),
			FormatCount(int64(s.CompletedItems)), FormatCount(int64(s.TotalItems())),
			FormatRate(speed),
			FormatETA(eta),
		)
	} else {
		fmt.Fprintf(p.errW, "progress: %s/%s items\n",
			FormatCount(int64(s.CompletedItems)), FormatCount(int64(s.TotalItems())))
	}
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// opName names the batch for display.
func opName(s stats.Status) string {
	if s.OperationType == "" {
		return "transfer"
	}
	return s.OperationType
}
