// Package cache persists canonical bar tables as parquet files keyed by
// symbol, interval, and date range.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/marketprofile/go-bar-ingest/internal/models"
)

const (
	fileExt    = ".parquet"
	dateLayout = "2006-01-02"
)

// barRecord is the on-disk row shape. Column order and types are fixed;
// readers of the cache files rely on this schema.
type barRecord struct {
	Ts     int64    `parquet:"ts,timestamp(millisecond)"`
	Open   *float64 `parquet:"open,optional"`
	High   *float64 `parquet:"high,optional"`
	Low    *float64 `parquet:"low,optional"`
	Close  *float64 `parquet:"close,optional"`
	Volume *int64   `parquet:"volume,optional"`
}

// Store maps cache keys to files under a root directory partitioned as
// root/SYMBOL/interval/.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a cache store rooted at root.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger.With("component", "cache")}
}

// Path derives the cache file location for a key. It is a pure function of
// its inputs: the same key always maps to the same path, and distinct keys
// cannot collide because symbol, interval, and both dates all appear in the
// path. Dates are taken at day granularity in UTC.
func (s *Store) Path(symbol, interval string, start, end time.Time) string {
	sym := strings.ToUpper(symbol)
	name := fmt.Sprintf("%s_%s_%s_%s%s",
		sym, interval,
		start.UTC().Format(dateLayout),
		end.UTC().Format(dateLayout),
		fileExt)
	return filepath.Join(s.root, sym, interval, name)
}

// Save writes bars to path, creating parent directories as needed. An empty
// table is a logged no-op: the file is intentionally not created, so the
// returned nil means "nothing to do", not "wrote zero rows".
func (s *Store) Save(bars []models.Bar, path string) error {
	if len(bars) == 0 {
		s.logger.Info("nothing to save", "path", filepath.Base(path))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	records := make([]barRecord, len(bars))
	for i, b := range bars {
		records[i] = barRecord{
			Ts:     b.Ts.UnixMilli(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}

	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("write cache file %s: %w", path, err)
	}
	s.logger.Info("saved bars", "rows", len(bars), "path", path)
	return nil
}

// Load reads the table at path. A missing file is not an error: it yields
// an empty, non-nil table in the canonical schema, indistinguishable from a
// saved-then-loaded zero-row fetch.
func (s *Store) Load(path string) ([]models.Bar, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return []models.Bar{}, nil
	}

	records, err := parquet.ReadFile[barRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read cache file %s: %w", path, err)
	}

	bars := make([]models.Bar, len(records))
	for i, r := range records {
		bars[i] = models.Bar{
			Ts:     time.UnixMilli(r.Ts).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}
