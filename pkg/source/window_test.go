package source_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamill-io/syncmill/pkg/source"
)

func day(d int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestPartitionerTilesRangeWithoutGaps(t *testing.T) {
	p := source.NewPartitioner(day(0), day(20), 6, 2, 1000)

	cursor := day(0)
	for {
		win, ok := p.Next()
		if !ok {
			break
		}
		assert.True(t, win.Start.Equal(cursor), "sub-range must start where the previous ended")
		assert.True(t, win.End.After(win.Start))
		assert.False(t, win.End.After(day(20)), "sub-range must not overshoot the overall end")
		cursor = win.End
		p.Observe(win, 10)
	}
	assert.True(t, cursor.Equal(day(20)), "sub-ranges must cover the whole range")
}

func TestPartitionerShrinksOnCeilingAndRestores(t *testing.T) {
	const ceiling = 1000
	p := source.NewPartitioner(day(0), day(40), 4, 2, ceiling)

	// saturated sub-range: shrink to the minimum within one iteration
	win, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, 4, win.Days())
	p.Observe(win, ceiling)
	assert.Equal(t, 2, p.WindowDays())

	// still saturated at the floor: the window must not shrink further
	win, ok = p.Next()
	require.True(t, ok)
	assert.Equal(t, 2, win.Days())
	p.Observe(win, ceiling)
	assert.Equal(t, 2, p.WindowDays())

	// under ceiling again: restore the default
	win, ok = p.Next()
	require.True(t, ok)
	p.Observe(win, ceiling-1)
	assert.Equal(t, 4, p.WindowDays())

	assert.Equal(t, 1, p.Shrinks())
}

func TestPartitionerAdvancesByFetchedWindow(t *testing.T) {
	p := source.NewPartitioner(day(0), day(12), 4, 2, 1000)

	first, ok := p.Next()
	require.True(t, ok)
	p.Observe(first, 1000)

	second, ok := p.Next()
	require.True(t, ok)
	// the saturated sub-range is never re-fetched: the next one starts
	// exactly at its end, with the shrunken window
	assert.True(t, second.Start.Equal(first.End))
	assert.Equal(t, 2, second.Days())
}

func TestPartitionerClampsFinalWindow(t *testing.T) {
	p := source.NewPartitioner(day(0), day(5), 4, 2, 1000)

	win, _ := p.Next()
	p.Observe(win, 10)

	win, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, 1, win.Days())
	p.Observe(win, 10)

	_, ok = p.Next()
	assert.False(t, ok)
}
