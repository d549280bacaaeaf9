// Package models provides the canonical data structures shared by the
// ingestion pipeline: bar rows, history requests, and the interval table.
package models

import (
	"fmt"
	"time"
)

// intervalSeconds maps the supported interval strings to their fixed step
// in seconds. Intervals absent from this table are still accepted by the
// request builder but are skipped by gap detection.
var intervalSeconds = map[string]int64{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"60m": 3600,
	"1h":  3600,
	"1d":  86400,
	"day": 86400,
}

// IntervalSeconds returns the fixed step in seconds for a known interval.
// The second return value reports whether the interval is known.
func IntervalSeconds(interval string) (int64, bool) {
	step, ok := intervalSeconds[interval]
	return step, ok
}

// KnownInterval reports whether interval is one of the supported interval
// strings.
func KnownInterval(interval string) bool {
	_, ok := intervalSeconds[interval]
	return ok
}

// Bar is one OHLCV observation in the canonical schema. Prices are nil when
// the provider omitted them; a zero Ts marks a row whose timestamp could
// not be interpreted (such rows only exist transiently between
// normalization and QA, which drops them).
type Bar struct {
	Ts     time.Time
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *int64
}

// HasTimestamp reports whether the row carries a usable timestamp.
func (b *Bar) HasTimestamp() bool {
	return !b.Ts.IsZero()
}

// ValidationError reports a bar field that failed a sanity check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// CheckSanity verifies the OHLC relationships and volume sign of a bar:
// high >= max(open, close), low <= min(open, close), volume >= 0. Fields
// the provider omitted are skipped. Violations are advisory; QA logs them
// but never drops the row.
func (b *Bar) CheckSanity() error {
	if b.Open != nil && b.Close != nil {
		if b.High != nil && *b.High < max(*b.Open, *b.Close) {
			return &ValidationError{Field: "high", Message: fmt.Sprintf("high %v below max(open, close) %v", *b.High, max(*b.Open, *b.Close))}
		}
		if b.Low != nil && *b.Low > min(*b.Open, *b.Close) {
			return &ValidationError{Field: "low", Message: fmt.Sprintf("low %v above min(open, close) %v", *b.Low, min(*b.Open, *b.Close))}
		}
	}
	if b.Volume != nil && *b.Volume < 0 {
		return &ValidationError{Field: "volume", Message: fmt.Sprintf("volume %d is negative", *b.Volume)}
	}
	return nil
}

// Float returns a pointer to v. Convenience for building bar literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v. Convenience for building bar literals.
func Int(v int64) *int64 { return &v }
