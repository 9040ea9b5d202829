package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/shingmt/prp-disasm/internal/engine"
	"github.com/shingmt/prp-disasm/internal/heuristics"
	"github.com/shingmt/prp-disasm/internal/metrics"
	"github.com/shingmt/prp-disasm/internal/sample"
	"github.com/shingmt/prp-disasm/internal/types"
	"github.com/shingmt/prp-disasm/internal/worker"
)

// mockEngine is a scriptable engine for driver tests. It counts calls and
// can delay, fail, or return canned raw output.
type mockEngine struct {
	raw   engine.RawOutput
	err   error
	delay time.Duration

	calls      atomic.Int64
	active     atomic.Int64
	maxActive  atomic.Int64
	observeCtx bool
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Analyze(ctx context.Context, s *sample.Sample, timeout time.Duration) (engine.RawOutput, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		prev := m.maxActive.Load()
		if n <= prev || m.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			if m.observeCtx {
				return nil, fmt.Errorf("canceled: %w", ctx.Err())
			}
		}
	}
	return m.raw, m.err
}

func wellFormedRaw(t *testing.T, entropy float64) engine.RawOutput {
	t.Helper()
	raw := engine.RawOutput{
		engine.SectionInfo: json.RawMessage(`{"bin":{"bintype":"elf","arch":"x86","bits":64}}`),
		engine.SectionFunctions: json.RawMessage(`[
			{"name":"main","offset":4096,"size":120},
			{"name":"helper","offset":4224,"size":48},
			{"name":"entry0","offset":4352,"size":32}
		]`),
		engine.SectionStrings: json.RawMessage(`[
			{"string":"/usr/lib/ld.so"},{"string":"hello"},{"string":"world"},
			{"string":"GET /"},{"string":"x-agent"}
		]`),
		engine.SectionImports: json.RawMessage(`[{"name":"printf","type":"FUNC"}]`),
		engine.SectionExports: json.RawMessage(`[]`),
	}
	doc, err := json.Marshal(entropy)
	require.NoError(t, err)
	raw[engine.SectionEntropy] = doc
	return raw
}

func newDriver(t *testing.T, eng engine.Engine, cfg worker.Config) *worker.Driver {
	t.Helper()
	rules, err := heuristics.LoadBuiltin()
	require.NoError(t, err)
	d, err := worker.NewDriver(eng, heuristics.NewExtractor(rules), cfg)
	require.NoError(t, err)
	return d
}

func TestNewDriverValidation(t *testing.T) {
	_, err := worker.NewDriver(nil, nil, worker.Config{})
	require.ErrorContains(t, err, "engine is required")

	_, err = worker.NewDriver(&mockEngine{}, nil, worker.Config{})
	require.ErrorContains(t, err, "extractor is required")

	_, err = worker.NewDriver(&mockEngine{}, nil, worker.Config{SkipExtraction: true, EngineTimeout: -1})
	require.ErrorContains(t, err, "timeout")

	d, err := worker.NewDriver(&mockEngine{}, nil, worker.Config{SkipExtraction: true})
	require.NoError(t, err)
	require.NotNil(t, d)
}

func TestRunCompleteWithSignals(t *testing.T) {
	eng := &mockEngine{raw: wellFormedRaw(t, 7.9)}
	d := newDriver(t, eng, worker.Config{})

	s := sample.FromBytes([]byte("sample-bytes"), "a.bin")
	report, err := d.Run(context.Background(), s)
	require.NoError(t, err)

	require.Equal(t, types.StatusComplete, report.Status)
	require.Equal(t, types.ReasonNone, report.Reason)
	require.Equal(t, s.Hash, report.SampleHash)
	require.Equal(t, "a.bin", report.SampleName)
	require.Equal(t, "elf-x86-64", report.Format)
	require.Len(t, report.Functions, 3)
	require.Len(t, report.Strings, 5)
	require.Equal(t, "mock", report.Engine)
	require.Equal(t, heuristics.Version, report.ExtractorVersion)

	packed, ok := report.SignalByName("packed")
	require.True(t, ok)
	require.InDelta(t, 0.79, packed.Score, 0.001)
}

func TestRunLowEntropyHasNoPackedSignal(t *testing.T) {
	eng := &mockEngine{raw: wellFormedRaw(t, 3.2)}
	d := newDriver(t, eng, worker.Config{})

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "b.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusComplete, report.Status)
	_, ok := report.SignalByName("packed")
	require.False(t, ok)
}

func TestRunSampleTooLargeNeverSpawnsEngine(t *testing.T) {
	eng := &mockEngine{raw: wellFormedRaw(t, 5)}
	d := newDriver(t, eng, worker.Config{MaxSampleSize: 4})

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("12345"), "big.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, report.Status)
	require.Equal(t, types.ReasonSampleTooLarge, report.Reason)
	require.EqualValues(t, 0, eng.calls.Load())
	require.Empty(t, report.Signals)
}

func TestRunEngineUnavailable(t *testing.T) {
	eng := &mockEngine{err: fmt.Errorf("launch: %w", engine.ErrEngineUnavailable)}
	d := newDriver(t, eng, worker.Config{})

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "c.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, report.Status)
	require.Equal(t, types.ReasonEngineUnavail, report.Reason)
	require.Equal(t, "unknown", report.Format)
	require.Equal(t, types.EntropyUnknown, report.Entropy)
}

func TestRunEngineCrash(t *testing.T) {
	eng := &mockEngine{err: fmt.Errorf("%w: exit status 1", engine.ErrEngineCrashed)}
	d := newDriver(t, eng, worker.Config{})

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "d.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, report.Status)
	require.Equal(t, types.ReasonEngineCrashed, report.Reason)
}

func TestRunTimeoutSalvagesPartialOutput(t *testing.T) {
	partial := engine.RawOutput{
		engine.SectionInfo:      json.RawMessage(`{"bin":{"bintype":"elf","arch":"x86","bits":64}}`),
		engine.SectionFunctions: json.RawMessage(`[{"name":"main","offset":4096,"size":120}]`),
	}
	eng := &mockEngine{raw: partial, err: fmt.Errorf("%w after 1s", engine.ErrTimedOut)}
	d := newDriver(t, eng, worker.Config{})

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "e.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusPartialTimeout, report.Status)
	require.Equal(t, types.ReasonTimedOut, report.Reason)
	require.Equal(t, "elf-x86-64", report.Format)
	require.Len(t, report.Functions, 1)
	// Derived signals are withheld unless the analysis completed.
	require.Empty(t, report.Signals)
	require.Empty(t, report.ExtractorVersion)
}

func TestRunTimeoutWithoutPartialOutput(t *testing.T) {
	eng := &mockEngine{err: fmt.Errorf("%w after 1s", engine.ErrTimedOut)}
	d := newDriver(t, eng, worker.Config{})

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "f.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusPartialTimeout, report.Status)
	require.Equal(t, types.ReasonTimedOut, report.Reason)
	require.Equal(t, "unknown", report.Format)
}

func TestRunMalformedOutput(t *testing.T) {
	raw := wellFormedRaw(t, 5)
	raw[engine.SectionFunctions] = json.RawMessage(`{"not":"a list"}`)
	eng := &mockEngine{raw: raw}
	d := newDriver(t, eng, worker.Config{})

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "g.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusPartialError, report.Status)
	require.Equal(t, types.ReasonMalformedOutput, report.Reason)
	require.Empty(t, report.Signals)
}

// engineFailureTotal sums the engine failure counter across all reasons.
func engineFailureTotal(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != "prpdisasm_engine_failures_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestEngineFailureMetricSkipsGatingAndNormalization(t *testing.T) {
	raw := wellFormedRaw(t, 5)
	raw[engine.SectionFunctions] = json.RawMessage(`{"not":"a list"}`)
	eng := &mockEngine{raw: raw}
	d := newDriver(t, eng, worker.Config{MaxSampleSize: 64})

	reg := prometheus.NewRegistry()
	d.SetMetrics(metrics.New(reg))

	// Rejected before the engine runs.
	report, err := d.Run(context.Background(), sample.FromBytes(make([]byte, 128), "big.bin"))
	require.NoError(t, err)
	require.Equal(t, types.ReasonSampleTooLarge, report.Reason)
	require.Zero(t, engineFailureTotal(t, reg))

	// Engine ran fine; the malformed output is a normalization outcome.
	report, err = d.Run(context.Background(), sample.FromBytes([]byte("x"), "bad.bin"))
	require.NoError(t, err)
	require.Equal(t, types.ReasonMalformedOutput, report.Reason)
	require.Zero(t, engineFailureTotal(t, reg))
}

func TestEngineFailureMetricCountsEngineReasons(t *testing.T) {
	eng := &mockEngine{err: fmt.Errorf("%w: exit status 1", engine.ErrEngineCrashed)}
	d := newDriver(t, eng, worker.Config{})

	reg := prometheus.NewRegistry()
	d.SetMetrics(metrics.New(reg))

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "crash.bin"))
	require.NoError(t, err)
	require.Equal(t, types.ReasonEngineCrashed, report.Reason)
	require.EqualValues(t, 1, engineFailureTotal(t, reg))
}

func TestRunCallerCancellation(t *testing.T) {
	eng := &mockEngine{raw: wellFormedRaw(t, 5), delay: time.Second, observeCtx: true}
	d := newDriver(t, eng, worker.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := d.Run(ctx, sample.FromBytes([]byte("x"), "h.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, report.Status)
	require.Equal(t, types.ReasonTimedOut, report.Reason)
}

func TestRunSkipExtraction(t *testing.T) {
	eng := &mockEngine{raw: wellFormedRaw(t, 7.9)}
	d, err := worker.NewDriver(eng, nil, worker.Config{SkipExtraction: true})
	require.NoError(t, err)

	report, err := d.Run(context.Background(), sample.FromBytes([]byte("x"), "i.bin"))
	require.NoError(t, err)
	require.Equal(t, types.StatusComplete, report.Status)
	require.Empty(t, report.Signals)
	require.Empty(t, report.ExtractorVersion)
}

func TestRunNilSample(t *testing.T) {
	d := newDriver(t, &mockEngine{}, worker.Config{})
	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestConcurrentEnginesBounded(t *testing.T) {
	const bound = 2
	eng := &mockEngine{raw: wellFormedRaw(t, 5), delay: 30 * time.Millisecond}
	d := newDriver(t, eng, worker.Config{MaxConcurrentEngines: bound})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		s := sample.FromBytes([]byte{byte(i)}, fmt.Sprintf("s%d.bin", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := d.Run(context.Background(), s)
			require.NoError(t, err)
			require.Equal(t, types.StatusComplete, report.Status)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 8, eng.calls.Load())
	require.LessOrEqual(t, eng.maxActive.Load(), int64(bound))
}

func TestPoolPreservesOrder(t *testing.T) {
	eng := &mockEngine{raw: wellFormedRaw(t, 5), delay: 5 * time.Millisecond}
	d := newDriver(t, eng, worker.Config{})
	pool := worker.NewPool(d, 4)

	var callbacks atomic.Int64
	pool.OnResult = func(*types.AnalysisReport) { callbacks.Add(1) }

	samples := make([]*sample.Sample, 6)
	for i := range samples {
		samples[i] = sample.FromBytes([]byte{byte(i)}, fmt.Sprintf("s%d.bin", i))
	}

	reports := pool.RunAll(context.Background(), samples)
	require.Len(t, reports, len(samples))
	for i, r := range reports {
		require.NotNil(t, r)
		require.Equal(t, samples[i].Hash, r.SampleHash)
		require.Equal(t, types.StatusComplete, r.Status)
	}
	require.EqualValues(t, len(samples), callbacks.Load())
}

func TestPoolCanceledContextStillReturnsReports(t *testing.T) {
	eng := &mockEngine{raw: wellFormedRaw(t, 5)}
	d := newDriver(t, eng, worker.Config{})
	pool := worker.NewPool(d, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	samples := []*sample.Sample{
		sample.FromBytes([]byte("a"), "a.bin"),
		sample.FromBytes([]byte("b"), "b.bin"),
	}
	reports := pool.RunAll(ctx, samples)
	require.Len(t, reports, 2)
	for i, r := range reports {
		require.NotNil(t, r)
		require.Equal(t, samples[i].Hash, r.SampleHash)
		require.Equal(t, types.StatusFailed, r.Status)
		require.Equal(t, types.ReasonTimedOut, r.Reason)
	}
}
