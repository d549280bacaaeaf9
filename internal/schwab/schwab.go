// Package schwab translates history requests into the Schwab price-history
// REST shape and normalizes its responses into canonical bar rows.
//
// Both halves are pure: no network calls happen here. The transport package
// owns the HTTP side and hands the raw response body to ParseHistoryPayload.
package schwab

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marketprofile/go-bar-ingest/internal/models"
)

// HistoryEndpoint is the price-history resource path, relative to the API
// base URL.
const HistoryEndpoint = "marketdata/v1/pricehistory"

// ErrMalformedPayload is returned when a response carries no recognizable
// observation list under either the "candles" or "data" key.
var ErrMalformedPayload = errors.New("malformed payload: no candle list")

// BuildHistoryRequest derives the endpoint and query parameters for req.
//
// Interval mapping: "<n>m" becomes frequencyType=minute with frequency n,
// "60m" and "1h" both map to minute/60, and anything else falls through to
// daily/1. The daily fallback for unrecognized intervals mirrors the
// provider's own default; callers that want strict interval checking should
// validate with models.KnownInterval first.
func BuildHistoryRequest(req models.HistoryRequest) (string, map[string]string) {
	frequencyType := "daily"
	frequency := 1

	switch {
	case req.Interval == "60m" || req.Interval == "1h":
		frequencyType = "minute"
		frequency = 60
	case strings.HasSuffix(req.Interval, "m"):
		if n, err := strconv.Atoi(strings.TrimSuffix(req.Interval, "m")); err == nil {
			frequencyType = "minute"
			frequency = n
		}
	}

	params := map[string]string{
		"symbol":                strings.ToUpper(req.Symbol),
		"frequencyType":         frequencyType,
		"frequency":             strconv.Itoa(frequency),
		"startDate":             strconv.FormatInt(req.StartUTC.UnixMilli(), 10),
		"endDate":               strconv.FormatInt(req.EndUTC.UnixMilli(), 10),
		"needExtendedHoursData": "false",
	}
	return HistoryEndpoint, params
}

// ParseHistoryPayload converts a raw history response body into canonical
// bar rows. The observation list is read from "candles", falling back to
// "data" when absent. An empty list yields an empty, non-nil table so that
// callers can distinguish "zero rows" from "not fetched".
//
// Per-field tolerance: the timestamp is read from "datetime" with "time" as
// fallback and interpreted as milliseconds since the UTC epoch; a value
// that cannot be interpreted leaves the row with a zero Ts for QA to drop.
// Prices and volume accept JSON numbers or numeric strings and come back
// nil when missing or unreadable ("vol" is the volume fallback key).
func ParseHistoryPayload(payload []byte) ([]models.Bar, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	raw, ok := envelope["candles"]
	if !ok || isJSONNull(raw) {
		raw, ok = envelope["data"]
	}
	if !ok || isJSONNull(raw) {
		return nil, ErrMalformedPayload
	}

	var observations []json.RawMessage
	if err := json.Unmarshal(raw, &observations); err != nil {
		return nil, fmt.Errorf("%w: observation list is not an array", ErrMalformedPayload)
	}

	bars := make([]models.Bar, 0, len(observations))
	for _, obs := range observations {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(obs, &fields); err != nil {
			// Non-object entry; keep a null-ts placeholder for QA to drop.
			bars = append(bars, models.Bar{})
			continue
		}
		bars = append(bars, models.Bar{
			Ts:     millisField(fields, "datetime", "time"),
			Open:   floatField(fields, "open"),
			High:   floatField(fields, "high"),
			Low:    floatField(fields, "low"),
			Close:  floatField(fields, "close"),
			Volume: intField(fields, "volume", "vol"),
		})
	}
	return bars, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// millisField reads the first present key as milliseconds since the epoch
// and returns the corresponding UTC instant, or the zero time on failure.
func millisField(fields map[string]json.RawMessage, keys ...string) time.Time {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || isJSONNull(raw) {
			continue
		}
		if ms, ok := asInt64(raw); ok {
			return time.UnixMilli(ms).UTC()
		}
		return time.Time{}
	}
	return time.Time{}
}

func floatField(fields map[string]json.RawMessage, key string) *float64 {
	raw, ok := fields[key]
	if !ok || isJSONNull(raw) {
		return nil
	}
	if f, ok := asFloat64(raw); ok {
		return &f
	}
	return nil
}

func intField(fields map[string]json.RawMessage, keys ...string) *int64 {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || isJSONNull(raw) {
			continue
		}
		if n, ok := asInt64(raw); ok {
			return &n
		}
		return nil
	}
	return nil
}

// asFloat64 accepts a JSON number or a numeric string.
func asFloat64(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// asInt64 accepts a JSON number (truncating any fractional part) or a
// numeric string.
func asInt64(raw json.RawMessage) (int64, bool) {
	f, ok := asFloat64(raw)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
