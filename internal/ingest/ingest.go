// Package ingest composes the pipeline: request building, fetch,
// normalization, QA, and cache persistence. One invocation handles one
// symbol/interval/range synchronously; there is no internal concurrency.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketprofile/go-bar-ingest/internal/cache"
	"github.com/marketprofile/go-bar-ingest/internal/models"
	"github.com/marketprofile/go-bar-ingest/internal/qa"
	"github.com/marketprofile/go-bar-ingest/internal/schwab"
	"github.com/marketprofile/go-bar-ingest/internal/transport"
)

// Service runs the ingestion pipeline against an injected fetch capability
// and cache store.
type Service struct {
	fetcher transport.Fetcher
	store   *cache.Store
	filter  *qa.Filter
	logger  *slog.Logger
}

// NewService creates a pipeline service. The fetcher is injected so tests
// can substitute a fake transport.
func NewService(fetcher transport.Fetcher, store *cache.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher: fetcher,
		store:   store,
		filter:  qa.NewFilter(logger),
		logger:  logger.With("component", "ingest"),
	}
}

// FetchHistoricalBars fetches one symbol/interval/range, normalizes the
// payload, and returns the QA-cleaned table. Transport and malformed-payload
// failures propagate to the caller unmodified; no recovery is attempted
// here (the transport layer already retried transient errors).
func (s *Service) FetchHistoricalBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	req := models.HistoryRequest{Symbol: symbol, Interval: interval, StartUTC: start, EndUTC: end}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := s.logger.With(
		"trace_id", uuid.NewString(),
		"symbol", symbol,
		"interval", interval)

	endpoint, params := schwab.BuildHistoryRequest(req)
	payload, err := s.fetcher.Fetch(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	bars, err := schwab.ParseHistoryPayload(payload)
	if err != nil {
		return nil, err
	}

	clean := s.filter.Clean(bars, interval)
	log.Info("fetched historical bars", "raw_rows", len(bars), "rows", len(clean))
	return clean, nil
}

// FetchAndCache runs the full pipeline and persists the result, returning
// the destination path. A fetch that yields zero rows still succeeds: the
// save is skipped and the returned path points at a file that does not
// exist.
func (s *Service) FetchAndCache(ctx context.Context, symbol, interval string, start, end time.Time) (string, error) {
	bars, err := s.FetchHistoricalBars(ctx, symbol, interval, start, end)
	if err != nil {
		return "", err
	}

	path := s.store.Path(symbol, interval, start, end)
	if err := s.store.Save(bars, path); err != nil {
		return "", err
	}
	return path, nil
}
