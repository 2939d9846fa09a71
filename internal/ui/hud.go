package ui

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/bamsammich/courier/internal/stats"
)

// hudPresenter provides a TTY display with a scrolling feed of completed
// mutations and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   *stats.Collector
	dstRoot string // stripped from displayed paths
	width   int    // terminal columns; 0 means unknown

	status       stats.Status
	active       bool
	hudDrawn     bool
	hudLineCount int
	lastHUDDraw  time.Time
}

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

func (p *hudPresenter) Run(events <-chan Event) error {
	// Fire first tick quickly to seed the ring buffer with initial speed data,
	// then switch to 1s interval.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for when no events are flowing (e.g., large file copy).
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(1 * time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case Begin, Progress:
		p.active = true
		p.status = ev.Status

	case Success:
		p.status = ev.Status
		p.clearHUD()
		p.active = false

	case Error:
		p.clearHUD()
		p.active = false
		fmt.Fprintf(p.w, "%s  %v\n", styleError.Render("✗"), ev.Error)

	case Cancelled:
		p.clearHUD()
		p.active = false
		fmt.Fprintln(p.w, styleStatus.Render("cancelled"))

	case Copied:
		p.printFeed(styleIconDone.Render("✓"), ev.Path, "")
	case Moved:
		p.printFeed(styleIconMoved.Render("→"), ev.Path, "")
	case Deleted:
		p.printFeed(styleIconDeleted.Render("×"), ev.Path, "")

	case DeleteScheduled:
		p.clearHUD()
		fmt.Fprintf(p.w, "%s\n", styleStatus.Render(
			fmt.Sprintf("delete #%d: %d entries, press ctrl-c to undo", ev.JobID, len(ev.Paths))))
	case DeleteCancelled:
		p.clearHUD()
		fmt.Fprintf(p.w, "%s\n", styleStatus.Render(fmt.Sprintf("delete #%d undone", ev.JobID)))
	case DeleteSucceeded:
		p.clearHUD()
		fmt.Fprintf(p.w, "%s  deleted %d of %d\n", styleIconDeleted.Render("×"), ev.Count, len(ev.Paths))
	}
}

func (p *hudPresenter) printFeed(icon, url, suffix string) {
	p.clearHUD()
	line := fmt.Sprintf("%s  %s", icon, p.styledPath(url))
	if suffix != "" {
		line += "  " + suffix
	}
	fmt.Fprintln(p.w, line)
	p.drawHUD()
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	p.clearHUD()
	if !p.active {
		return
	}
	s := p.status
	speed := p.stats.RollingSpeed(10)

	// Line 1: throughput sparkline + speed + byte totals.
	spark := Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth)
	fmt.Fprintf(p.w, "       %s   %s   %s / %s\n",
		styleSparkline.Render(spark), FormatRate(speed),
		FormatBytes(s.CompletedBytes), FormatBytes(s.TotalBytes))

	// Line 2: progress bar + items + eta, and the last item's name.
	pct := s.Percentage()
	filled := int(pct * progressBarWidth)
	bar := ProgressBar(pct, progressBarWidth)
	barRunes := []rune(bar)
	styledBar := styleProgressFilled.Render(string(barRunes[:filled])) +
		styleProgressEmpty.Render(string(barRunes[filled:]))
	line := fmt.Sprintf(" %3.0f%%  %s   %s / %s items   eta %s",
		pct*100, styledBar,
		FormatCount(int64(s.CompletedItems)), FormatCount(int64(s.TotalItems())),
		FormatETA(p.stats.ETA(s.PendingBytes)))
	if s.ProcessingName != "" {
		line += "   " + styleFileDir.Render(truncPath(s.ProcessingName, p.nameWidth()))
	}
	fmt.Fprintln(p.w, line)

	p.hudDrawn = true
	p.hudLineCount = 2
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", p.hudLineCount)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath returns the path with the directory portion dimmed, making the
// actual name stand out.
func (p *hudPresenter) styledPath(url string) string {
	display := DisplayPath(p.dstRoot, url)
	dir, base := path.Split(display)
	if dir == "" {
		return base
	}
	return styleFileDir.Render(strings.TrimSuffix(dir, "/")+"/") + base
}

// nameWidth is the room left for the processing name on the bar line.
func (p *hudPresenter) nameWidth() int {
	if p.width <= 0 {
		return 40
	}
	return max(p.width-70, 12)
}

// truncPath shortens a path to fit within maxLen characters.
func truncPath(p string, maxLen int) string {
	if len(p) <= maxLen {
		return p
	}
	if maxLen <= 3 {
		return p[:maxLen]
	}
	return "..." + p[len(p)-maxLen+3:]
}
