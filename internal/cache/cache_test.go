package cache

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketprofile/go-bar-ingest/internal/models"
)

func newTestStore(t *testing.T) (*Store, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewStore(t.TempDir(), logger), &buf
}

func sampleTable() []models.Bar {
	base := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	return []models.Bar{
		{
			Ts:     base,
			Open:   models.Float(9.5),
			High:   models.Float(9.7),
			Low:    models.Float(9.4),
			Close:  models.Float(9.6),
			Volume: models.Int(123456),
		},
		{
			// Sparse row: provider omitted everything but close.
			Ts:    base.Add(30 * time.Minute),
			Close: models.Float(9.8),
		},
	}
}

func TestPathLayout(t *testing.T) {
	store := NewStore("data", nil)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	got := store.Path("nwl", "30m", start, end)
	want := filepath.Join("data", "NWL", "30m", "NWL_30m_2024-06-01_2024-07-01.parquet")
	assert.Equal(t, want, got)
}

func TestPathIsPureAndCollisionFree(t *testing.T) {
	store := NewStore("data", nil)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t,
		store.Path("NWL", "30m", start, end),
		store.Path("NWL", "30m", start, end))

	seen := map[string]bool{}
	for _, key := range []struct {
		symbol, interval string
		start, end       time.Time
	}{
		{"NWL", "30m", start, end},
		{"NWL", "1d", start, end},
		{"AAPL", "30m", start, end},
		{"NWL", "30m", start, end.AddDate(0, 0, 1)},
		{"NWL", "30m", start.AddDate(0, 0, 1), end},
	} {
		p := store.Path(key.symbol, key.interval, key.start, key.end)
		assert.False(t, seen[p], "distinct keys must not collide: %s", p)
		seen[p] = true
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	table := sampleTable()
	path := store.Path("NWL", "30m",
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, store.Save(table, path))
	require.FileExists(t, path)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, table, loaded, "row order, column values, and nulls survive the round trip")
}

func TestSaveEmptyTableIsNoOp(t *testing.T) {
	store, buf := newTestStore(t)
	path := store.Path("NWL", "30m",
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, store.Save([]models.Bar{}, path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file is created for an empty table")
	assert.Contains(t, buf.String(), "nothing to save")
}

func TestLoadMissingFileReturnsEmptyTable(t *testing.T) {
	store, _ := newTestStore(t)

	bars, err := store.Load(filepath.Join(t.TempDir(), "absent.parquet"))
	require.NoError(t, err)
	require.NotNil(t, bars)
	assert.Empty(t, bars)
}

func TestSaveCreatesParentDirectories(t *testing.T) {
	store, _ := newTestStore(t)
	path := store.Path("AAPL", "1d",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, store.Save(sampleTable(), path))
	require.FileExists(t, path)

	// Saving again to the same key overwrites; last writer wins.
	require.NoError(t, store.Save(sampleTable()[:1], path))
	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}
