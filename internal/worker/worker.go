// Package worker orchestrates the analysis of one sample: input
// validation, the engine invocation under timeout and concurrency bounds,
// normalization, signal extraction, and the failure policy.
//
// The driver's contract is "always return a report": every analysis
// outcome, including engine crashes and timeouts, is reflected in the
// report's Status and Reason instead of an error. Errors are returned
// only for caller usage mistakes detected before analysis starts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shingmt/prp-disasm/internal/engine"
	"github.com/shingmt/prp-disasm/internal/heuristics"
	"github.com/shingmt/prp-disasm/internal/metrics"
	"github.com/shingmt/prp-disasm/internal/normalize"
	"github.com/shingmt/prp-disasm/internal/sample"
	"github.com/shingmt/prp-disasm/internal/types"
)

// DefaultEngineTimeout bounds a single engine invocation when the caller
// does not configure one.
const DefaultEngineTimeout = 2 * time.Minute

// Config controls a Driver. The zero value gets defaults from NewDriver.
type Config struct {
	// EngineTimeout bounds each engine subprocess. Must be positive;
	// zero means DefaultEngineTimeout.
	EngineTimeout time.Duration
	// MaxSampleSize rejects larger samples before any subprocess is
	// spawned. Zero means no limit.
	MaxSampleSize int64
	// SkipExtraction leaves reports without derived signals.
	SkipExtraction bool
	// MaxConcurrentEngines bounds engine subprocesses across this
	// driver. Zero means unbounded.
	MaxConcurrentEngines int
}

// Driver runs the full pipeline for single samples.
type Driver struct {
	engine    engine.Engine
	extractor *heuristics.Extractor
	cfg       Config
	sem       *Semaphore
	metrics   *metrics.Metrics
}

// NewDriver validates the configuration and wires a driver. Configuration
// errors are the one class of failure reported synchronously, since they
// are caller mistakes rather than sample-analysis outcomes.
func NewDriver(eng engine.Engine, extractor *heuristics.Extractor, cfg Config) (*Driver, error) {
	if eng == nil {
		return nil, fmt.Errorf("worker: engine is required")
	}
	if cfg.EngineTimeout < 0 {
		return nil, fmt.Errorf("worker: engine timeout must be positive, got %s", cfg.EngineTimeout)
	}
	if cfg.EngineTimeout == 0 {
		cfg.EngineTimeout = DefaultEngineTimeout
	}
	if cfg.MaxSampleSize < 0 {
		return nil, fmt.Errorf("worker: max sample size must not be negative, got %d", cfg.MaxSampleSize)
	}
	if !cfg.SkipExtraction && extractor == nil {
		return nil, fmt.Errorf("worker: extractor is required unless extraction is skipped")
	}
	return &Driver{
		engine:    eng,
		extractor: extractor,
		cfg:       cfg,
		sem:       NewSemaphore(cfg.MaxConcurrentEngines),
	}, nil
}

// SetMetrics attaches Prometheus collectors. Must be called before the
// first Run; a nil metrics value is valid.
func (d *Driver) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Run analyzes one sample and always returns a report; the error is
// non-nil only for a nil sample. Inspect the report's Status and Reason
// for the analysis outcome.
func (d *Driver) Run(ctx context.Context, s *sample.Sample) (*types.AnalysisReport, error) {
	if s == nil {
		return nil, fmt.Errorf("worker: sample is required")
	}

	start := time.Now()
	report := &types.AnalysisReport{
		SampleHash: s.Hash,
		SampleName: s.Name,
		SampleSize: s.Size,
		Format:     "unknown",
		Entropy:    types.EntropyUnknown,
		Status:     types.StatusComplete,
		Engine:     d.engine.Name(),
	}
	defer func() {
		report.Duration = time.Since(start)
		d.metrics.ObserveSample(report.Status.String(), report.Duration)
		if report.Reason.EngineFailure() {
			d.metrics.ObserveEngineFailure(string(report.Reason))
		}
	}()

	if d.cfg.MaxSampleSize > 0 && s.Size > d.cfg.MaxSampleSize {
		report.Status = report.Status.Downgrade(types.StatusFailed)
		report.Reason = types.ReasonSampleTooLarge
		return report, nil
	}

	raw, err := d.invokeEngine(ctx, s)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrTimedOut) && ctx.Err() == nil:
			report.Status = report.Status.Downgrade(types.StatusPartialTimeout)
			report.Reason = types.ReasonTimedOut
			// Salvage whatever partial output the adapter captured; if
			// even that is unusable the status stays PartialTimeout.
			if len(raw) > 0 {
				if normalized, nerr := normalize.Normalize(raw); nerr == nil {
					copyNormalized(report, normalized)
				}
			}
		case errors.Is(err, engine.ErrEngineUnavailable):
			report.Status = report.Status.Downgrade(types.StatusFailed)
			report.Reason = types.ReasonEngineUnavail
		default:
			// Engine crashes and caller cancellation both end the
			// analysis with nothing trustworthy to report.
			report.Status = report.Status.Downgrade(types.StatusFailed)
			report.Reason = types.ReasonEngineCrashed
			if ctx.Err() != nil {
				report.Reason = types.ReasonTimedOut
			}
		}
		return report, nil
	}

	d.applyNormalization(report, raw)

	if report.Status == types.StatusComplete && !d.cfg.SkipExtraction {
		report.Signals = d.extractor.Extract(report)
		report.ExtractorVersion = heuristics.Version
	}
	return report, nil
}

// invokeEngine runs the engine under the concurrency bound. The semaphore
// slot is released on every path.
func (d *Driver) invokeEngine(ctx context.Context, s *sample.Sample) (engine.RawOutput, error) {
	if err := d.sem.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for engine slot: %w", err)
	}
	defer d.sem.Release()

	d.metrics.EngineStarted()
	defer d.metrics.EngineFinished()

	return d.engine.Analyze(ctx, s, d.cfg.EngineTimeout)
}

// applyNormalization merges the normalized raw output into the report,
// downgrading the status on malformed output.
func (d *Driver) applyNormalization(report *types.AnalysisReport, raw engine.RawOutput) {
	normalized, err := normalize.Normalize(raw)
	if err != nil {
		report.Status = report.Status.Downgrade(types.StatusPartialError)
		report.Reason = types.ReasonMalformedOutput
		return
	}
	copyNormalized(report, normalized)

	if listing, err := normalize.Listing(raw); err != nil {
		report.Status = report.Status.Downgrade(types.StatusPartialError)
		report.Reason = types.ReasonMalformedOutput
	} else if listing != nil {
		report.Disassembly = listing
	}
}

// copyNormalized carries the normalized analysis fields onto the report,
// leaving identity, status, and timing fields untouched.
func copyNormalized(report, normalized *types.AnalysisReport) {
	report.Format = normalized.Format
	report.Functions = normalized.Functions
	report.Strings = normalized.Strings
	report.Imports = normalized.Imports
	report.Exports = normalized.Exports
	report.Entropy = normalized.Entropy
	report.CallGraph = normalized.CallGraph
}
