// Package qa post-processes normalized bar tables: ordering, uniqueness,
// and advisory gap reporting.
package qa

import (
	"log/slog"
	"sort"

	"github.com/marketprofile/go-bar-ingest/internal/models"
)

// gapFactor: a successive-timestamp delta above this multiple of the
// expected interval step counts as a gap.
const gapFactor = 1.5

// Filter applies the QA pass to normalized tables. Gap and sanity findings
// go to the logger; the only mutations are the drop/sort/dedupe below.
type Filter struct {
	logger *slog.Logger
}

// NewFilter creates a QA filter reporting through logger.
func NewFilter(logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{logger: logger.With("component", "qa")}
}

// Clean returns the QA'd table for the given target interval:
//
//  1. rows without a timestamp are dropped,
//  2. the remainder is stably sorted ascending by Ts,
//  3. duplicate timestamps collapse to the last occurrence seen in payload
//     order (providers emit corrected revisions later),
//  4. gaps and OHLC sanity violations are logged, never mutated.
//
// An empty input passes through untouched. Unknown intervals skip the gap
// check silently.
func (f *Filter) Clean(bars []models.Bar, interval string) []models.Bar {
	if len(bars) == 0 {
		return bars
	}

	kept := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if b.HasTimestamp() {
			kept = append(kept, b)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Ts.Before(kept[j].Ts)
	})

	// Equal timestamps are adjacent and still in payload order after the
	// stable sort, so keeping the last of each run implements last-wins.
	out := kept[:0]
	for i, b := range kept {
		if i+1 < len(kept) && kept[i+1].Ts.Equal(b.Ts) {
			continue
		}
		out = append(out, b)
	}

	f.reportGaps(out, interval)
	f.reportSanity(out)
	return out
}

// reportGaps logs the first gap found for intervals with a known fixed
// step. Tables of two rows or fewer are too short to judge.
func (f *Filter) reportGaps(bars []models.Bar, interval string) {
	step, ok := models.IntervalSeconds(interval)
	if !ok || len(bars) <= 2 {
		return
	}

	threshold := gapFactor * float64(step)
	count := 0
	var firstAt models.Bar
	for i := 1; i < len(bars); i++ {
		delta := bars[i].Ts.Sub(bars[i-1].Ts).Seconds()
		if delta > threshold {
			if count == 0 {
				firstAt = bars[i]
			}
			count++
		}
	}
	if count > 0 {
		f.logger.Warn("gap(s) detected",
			"interval", interval,
			"step_seconds", step,
			"count", count,
			"first_at", firstAt.Ts)
	}
}

// reportSanity logs OHLC relationship violations without dropping rows.
func (f *Filter) reportSanity(bars []models.Bar) {
	count := 0
	var first error
	for i := range bars {
		if err := bars[i].CheckSanity(); err != nil {
			if count == 0 {
				first = err
			}
			count++
		}
	}
	if count > 0 {
		f.logger.Warn("bar sanity violations", "count", count, "first", first)
	}
}
