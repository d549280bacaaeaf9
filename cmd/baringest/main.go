// baringest fetches historical price bars for one symbol and date range,
// runs QA, and caches the result as a parquet file.
//
// Usage:
//
//	baringest --symbol NWL --interval 30m --start 2024-06-01 --end 2024-07-01
//
// Dates are YYYY-MM-DD and interpreted as UTC midnight. On success the
// destination path is printed to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/marketprofile/go-bar-ingest/internal/cache"
	"github.com/marketprofile/go-bar-ingest/internal/config"
	"github.com/marketprofile/go-bar-ingest/internal/ingest"
	"github.com/marketprofile/go-bar-ingest/internal/logger"
	"github.com/marketprofile/go-bar-ingest/internal/models"
	"github.com/marketprofile/go-bar-ingest/internal/token"
	"github.com/marketprofile/go-bar-ingest/internal/transport"
)

// Exit codes following standard conventions.
const (
	exitSuccess     = 0
	exitUsageError  = 1
	exitConfigError = 2
	exitFetchError  = 3
	exitInterrupt   = 130
)

const dateLayout = "2006-01-02"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("baringest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	symbol := fs.String("symbol", "", "ticker symbol, e.g. NWL (required)")
	interval := fs.String("interval", "30m", "bar interval: 1m, 5m, 15m, 30m, 60m, 1h, 1d, day")
	startStr := fs.String("start", "", "UTC start date YYYY-MM-DD (required)")
	endStr := fs.String("end", "", "UTC end date YYYY-MM-DD (required)")
	configPath := fs.String("config", "", "optional JSON config file")

	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}

	if *symbol == "" || *startStr == "" || *endStr == "" {
		fmt.Fprintln(os.Stderr, "error: --symbol, --start, and --end are required")
		fs.Usage()
		return exitUsageError
	}
	if !models.KnownInterval(*interval) {
		fmt.Fprintf(os.Stderr, "error: unknown interval %q (supported: 1m, 5m, 15m, 30m, 60m, 1h, 1d, day)\n", *interval)
		return exitUsageError
	}

	start, err := parseDate(*startStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid --start: %v\n", err)
		return exitUsageError
	}
	end, err := parseDate(*endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid --end: %v\n", err)
		return exitUsageError
	}
	if !end.After(start) {
		fmt.Fprintln(os.Stderr, "error: --end must be after --start")
		return exitUsageError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitConfigError
	}

	log, logCloser, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitConfigError
	}
	defer logCloser.Close()

	tokens := token.NewFileProvider(cfg.API.TokenPath)
	fetcher := transport.NewClient(transport.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.HTTPTimeout(),
		MaxRetries:        uint64(cfg.API.MaxRetries),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
	}, tokens, log)
	store := cache.NewStore(cfg.Cache.Root, log)
	service := ingest.NewService(fetcher, store, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	path, err := service.FetchAndCache(ctx, strings.ToUpper(*symbol), *interval, start, end)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			return exitInterrupt
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFetchError
	}

	fmt.Println(path)
	return exitSuccess
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
