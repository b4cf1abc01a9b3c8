package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"broker-api/pkg/journal"
)

type fakeSource struct {
	payloads map[string][]byte
	errs     map[string]error
	calls    []string
}

func (f *fakeSource) Fetch(_ context.Context, symbol string) ([]byte, error) {
	f.calls = append(f.calls, symbol)
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.payloads[symbol], nil
}

type ingestedSample struct {
	symbol  string
	price   decimal.Decimal
	isCarry bool
}

type fakeSink struct {
	samples   []ingestedSample
	ingestErr map[string]error
	purged    int64
	purgeErr  error
	purges    int
}

func (f *fakeSink) Ingest(_ context.Context, symbol string, price decimal.Decimal, _ time.Time, isCarry bool) error {
	if err, ok := f.ingestErr[symbol]; ok {
		return err
	}
	f.samples = append(f.samples, ingestedSample{symbol: symbol, price: price, isCarry: isCarry})
	return nil
}

func (f *fakeSink) PurgeStale(context.Context) (int64, error) {
	f.purges++
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return f.purged, nil
}

func newTestService(t *testing.T, source *fakeSource, sink *fakeSink, symbols ...string) *Service {
	t.Helper()
	svc, err := NewService(Config{Source: source, Sink: sink, Symbols: symbols})
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidatesConfig(t *testing.T) {
	_, err := NewService(Config{Sink: &fakeSink{}, Symbols: []string{"XAU"}})
	assert.Error(t, err)

	_, err = NewService(Config{Source: &fakeSource{}, Symbols: []string{"XAU"}})
	assert.Error(t, err)

	_, err = NewService(Config{Source: &fakeSource{}, Sink: &fakeSink{}})
	assert.Error(t, err)
}

func TestRunCycleRecordsAllSymbols(t *testing.T) {
	source := &fakeSource{payloads: map[string][]byte{
		"XAU": []byte(`{"price": 2500.00}`),
		"BTC": []byte(`{"price": 91000.5}`),
	}}
	sink := &fakeSink{purged: 3}
	svc := newTestService(t, source, sink, "xau", "btc")

	result := svc.RunCycle(context.Background())
	assert.Equal(t, 2, result.Recorded)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(3), result.Purged)

	require.Len(t, sink.samples, 2)
	assert.Equal(t, "XAU", sink.samples[0].symbol)
	assert.True(t, sink.samples[0].price.Equal(decimal.RequireFromString("2500")))
	assert.False(t, sink.samples[0].isCarry)
}

func TestRunCycleIsolatesSymbolFailures(t *testing.T) {
	source := &fakeSource{
		payloads: map[string][]byte{
			"XAU": []byte(`{"price": 2500.00}`),
			"ETH": []byte(`{"status": "down"}`),
		},
		errs: map[string]error{"BTC": errors.New("upstream 503")},
	}
	sink := &fakeSink{}
	svc := newTestService(t, source, sink, "XAU", "BTC", "ETH")

	result := svc.RunCycle(context.Background())
	assert.Equal(t, 1, result.Recorded)
	assert.Equal(t, 2, result.Skipped)
	assert.Contains(t, result.Errors, "BTC")
	assert.Contains(t, result.Errors, "ETH")

	// All symbols were attempted and the purge still ran.
	assert.Equal(t, []string{"XAU", "BTC", "ETH"}, source.calls)
	assert.Equal(t, 1, sink.purges)
}

func TestRunCycleRejectsNonPositivePrice(t *testing.T) {
	source := &fakeSource{payloads: map[string][]byte{"XAU": []byte(`{"price": 0}`)}}
	sink := &fakeSink{}
	svc := newTestService(t, source, sink, "XAU")

	result := svc.RunCycle(context.Background())
	assert.Zero(t, result.Recorded)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, sink.samples)
}

func TestRunCyclePurgeFailureIsContained(t *testing.T) {
	source := &fakeSource{payloads: map[string][]byte{"XAU": []byte(`{"price": 2500}`)}}
	sink := &fakeSink{purgeErr: errors.New("lock timeout")}
	svc := newTestService(t, source, sink, "XAU")

	result := svc.RunCycle(context.Background())
	assert.Equal(t, 1, result.Recorded)
	assert.Contains(t, result.Errors, "_purge")
}

func TestRunCycleWritesJournal(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{payloads: map[string][]byte{"XAU": []byte(`{"price": 2500}`)}}
	svc, err := NewService(Config{
		Source:  source,
		Sink:    &fakeSink{purged: 5},
		Symbols: []string{"XAU"},
		Journal: journal.NewWriter(dir),
	})
	require.NoError(t, err)

	svc.RunCycle(context.Background())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".json", filepath.Ext(entries[0].Name()))
}
