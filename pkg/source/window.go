package source

import (
	"time"

	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/pkg/logger"
)

// Window is one date sub-range, inclusive start, exclusive end.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the window length in whole days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// Partitioner slices a date range into sub-ranges sized to stay under a
// source's silent page ceiling. When a sub-range comes back saturated
// (record count at or above the ceiling) the window for subsequent
// sub-ranges is halved, flooring at the configured minimum; once a
// sub-range comes back under the ceiling the window is restored to its
// default. The cursor always advances by the window just fetched, so
// sub-ranges tile the overall range without gaps or overlaps.
type Partitioner struct {
	cursor time.Time
	end    time.Time

	defaultDays int
	minDays     int
	ceiling     int
	windowDays  int

	shrinks int
}

// NewPartitioner builds a partitioner over [start, end).
func NewPartitioner(start, end time.Time, defaultDays, minDays, ceiling int) *Partitioner {
	if minDays < 1 {
		minDays = 1
	}
	if defaultDays < minDays {
		defaultDays = minDays
	}
	return &Partitioner{
		cursor:      start,
		end:         end,
		defaultDays: defaultDays,
		minDays:     minDays,
		ceiling:     ceiling,
		windowDays:  defaultDays,
	}
}

// Next returns the next sub-range to fetch, clamped to the overall end.
// The second return is false once the range is exhausted.
func (p *Partitioner) Next() (Window, bool) {
	if !p.cursor.Before(p.end) {
		return Window{}, false
	}
	end := p.cursor.AddDate(0, 0, p.windowDays)
	if end.After(p.end) {
		end = p.end
	}
	return Window{Start: p.cursor, End: end}, true
}

// Observe records the outcome of fetching the window last returned by
// Next: it advances the cursor past that window and adapts the window
// length for subsequent sub-ranges. Already-fetched sub-ranges are never
// re-fetched, even when saturation means the source truncated them.
func (p *Partitioner) Observe(w Window, count int) {
	p.cursor = w.End

	switch {
	case count >= p.ceiling && p.windowDays > p.minDays:
		next := p.windowDays / 2
		if next < p.minDays {
			next = p.minDays
		}
		p.shrinks++
		logger.Get().Warn("sub-range saturated the page ceiling, shrinking window",
			zap.Time("start", w.Start),
			zap.Time("end", w.End),
			zap.Int("count", count),
			zap.Int("window_days", next))
		p.windowDays = next
	case count < p.ceiling && p.windowDays < p.defaultDays:
		p.windowDays = p.defaultDays
	}
}

// WindowDays reports the current window length.
func (p *Partitioner) WindowDays() int { return p.windowDays }

// Shrinks reports how many times the window was halved during the walk.
func (p *Partitioner) Shrinks() int { return p.shrinks }
