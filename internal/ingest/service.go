package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"broker-api/internal/broker"
	"broker-api/pkg/journal"
	"broker-api/pkg/pricefeed"
)

// PriceSink is the slice of the price store the ingestion cycle drives.
type PriceSink interface {
	Ingest(ctx context.Context, assetSymbol string, priceUsd decimal.Decimal, sourceTime time.Time, isCarry bool) error
	PurgeStale(ctx context.Context) (int64, error)
}

// CycleResult summarises one ingestion pass.
type CycleResult struct {
	Recorded int
	Skipped  int
	Errors   map[string]string
	Purged   int64
	Elapsed  time.Duration
}

// Service pulls one sample per tracked symbol from the upstream feed each
// cycle and appends it to the price store, then purges the stale tail.
type Service struct {
	source  pricefeed.Source
	sink    PriceSink
	symbols []string
	timeout time.Duration
	journal *journal.Writer
	nowFn   func() time.Time
}

// Config enumerates ingestion dependencies. Journal is optional.
type Config struct {
	Source  pricefeed.Source
	Sink    PriceSink
	Symbols []string
	Timeout time.Duration
	Journal *journal.Writer
}

// NewService builds an ingestion service. Source, Sink, and at least one
// symbol are mandatory.
func NewService(cfg Config) (*Service, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("ingest: source is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("ingest: sink is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("ingest: at least one symbol is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		clean := strings.ToUpper(strings.TrimSpace(symbol))
		if clean != "" {
			symbols = append(symbols, clean)
		}
	}
	return &Service{
		source:  cfg.Source,
		sink:    cfg.Sink,
		symbols: symbols,
		timeout: timeout,
		journal: cfg.Journal,
		nowFn:   time.Now,
	}, nil
}

// RunCycle performs one full ingestion pass. Per-symbol failures are logged
// and skipped; one bad symbol never blocks the others or the purge.
func (s *Service) RunCycle(ctx context.Context) *CycleResult {
	started := s.nowFn()
	result := &CycleResult{Errors: make(map[string]string)}

	for _, symbol := range s.symbols {
		if err := s.ingestSymbol(ctx, symbol); err != nil {
			logx.WithContext(ctx).Errorf("ingest: symbol=%s skipped err=%v", symbol, err)
			result.Skipped++
			result.Errors[symbol] = err.Error()
			continue
		}
		result.Recorded++
	}

	purged, err := s.sink.PurgeStale(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("ingest: purge failed err=%v", err)
		result.Errors["_purge"] = err.Error()
	} else {
		result.Purged = purged
	}

	result.Elapsed = s.nowFn().Sub(started)
	s.writeJournal(ctx, result)
	logx.WithContext(ctx).Infof("ingest: cycle done recorded=%d skipped=%d purged=%d elapsed=%s",
		result.Recorded, result.Skipped, result.Purged, result.Elapsed)
	return result
}

func (s *Service) ingestSymbol(ctx context.Context, symbol string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := s.source.Fetch(fetchCtx, symbol)
	if err != nil {
		return broker.ExternalSource("fetch "+symbol, err)
	}

	price, lenient, err := ExtractPrice(payload, symbol)
	if err != nil {
		return broker.ExternalSource("extract "+symbol, err)
	}
	if lenient {
		logx.WithContext(ctx).Slowf("ingest: symbol=%s price taken from first numeric fallback, upstream schema may have drifted", symbol)
	}
	if !price.IsPositive() {
		return broker.ExternalSource(fmt.Sprintf("extracted price %s for %s is not positive", price, symbol), nil)
	}

	return s.sink.Ingest(ctx, symbol, price, s.nowFn().UTC(), false)
}

func (s *Service) writeJournal(ctx context.Context, result *CycleResult) {
	if s.journal == nil {
		return
	}
	rec := &journal.CycleRecord{
		Symbols:  s.symbols,
		Recorded: result.Recorded,
		Skipped:  result.Skipped,
		Purged:   result.Purged,
		Elapsed:  result.Elapsed.String(),
	}
	if len(result.Errors) > 0 {
		rec.Errors = result.Errors
	}
	if _, err := s.journal.WriteCycle(rec); err != nil {
		logx.WithContext(ctx).Errorf("ingest: journal write failed err=%v", err)
	}
}

// Symbols returns the tracked symbol list.
func (s *Service) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}
