package models

import (
	"time"
)

// HistoryRequest describes one historical price query. It is constructed
// per pipeline invocation and discarded after the endpoint and parameters
// have been derived from it.
//
// The end > start invariant is enforced by the orchestrator, not here; the
// type only guarantees a usable symbol.
type HistoryRequest struct {
	Symbol   string
	Interval string
	StartUTC time.Time
	EndUTC   time.Time
}

// Validate checks the request fields that the type itself owns.
func (r HistoryRequest) Validate() error {
	if r.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if r.Interval == "" {
		return &ValidationError{Field: "interval", Message: "interval cannot be empty"}
	}
	return nil
}
