// Package replay re-emits a canonical bar table as an ordered row sequence
// for downstream consumers.
package replay

import (
	"iter"
	"math"
	"time"

	"github.com/marketprofile/go-bar-ingest/internal/models"
)

// Row is one replayed observation with concrete numeric types.
type Row struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Rows returns a lazy, finite sequence over table in order. Each call to
// the returned sequence iterates from the start, so it is restartable.
// Missing prices surface as NaN; missing or negative volume becomes 0. No
// pacing is applied; consumers control their own timing.
func Rows(table []models.Bar) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for _, b := range table {
			row := Row{
				Ts:     b.Ts,
				Open:   price(b.Open),
				High:   price(b.High),
				Low:    price(b.Low),
				Close:  price(b.Close),
				Volume: volume(b.Volume),
			}
			if !yield(row) {
				return
			}
		}
	}
}

func price(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func volume(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
