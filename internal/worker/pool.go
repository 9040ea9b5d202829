package worker

import (
	"context"
	"runtime"
	"sync"

	"github.com/shingmt/prp-disasm/internal/sample"
	"github.com/shingmt/prp-disasm/internal/types"
)

// Pool fans a batch of samples out to a fixed number of goroutines, each
// running the shared driver. Reports come back in input order regardless
// of completion order.
type Pool struct {
	driver  *Driver
	workers int

	// OnResult, when set, is called from worker goroutines as each report
	// finishes. It must be safe for concurrent use.
	OnResult func(*types.AnalysisReport)
}

// NewPool wraps a driver for batch runs. workers <= 0 means one worker
// per CPU.
func NewPool(d *Driver, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{driver: d, workers: workers}
}

// RunAll analyzes every sample and returns one report per sample, in the
// same order. Cancellation stops new analyses; samples never started are
// reported as FAILED with a timed-out reason, matching the driver's
// cancellation policy.
func (p *Pool) RunAll(ctx context.Context, samples []*sample.Sample) []*types.AnalysisReport {
	reports := make([]*types.AnalysisReport, len(samples))

	type job struct {
		idx int
		s   *sample.Sample
	}
	jobs := make(chan job, len(samples))
	for i, s := range samples {
		jobs <- job{idx: i, s: s}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				report, err := p.driver.Run(ctx, j.s)
				if err != nil {
					// Only a nil sample produces an error; keep the slot
					// filled so the batch stays positional.
					report = &types.AnalysisReport{
						Status: types.StatusFailed,
						Reason: types.ReasonEngineCrashed,
					}
				}
				reports[j.idx] = report
				if p.OnResult != nil {
					p.OnResult(report)
				}
			}
		}()
	}
	wg.Wait()

	for i, r := range reports {
		if r == nil {
			reports[i] = &types.AnalysisReport{
				SampleHash: samples[i].Hash,
				SampleName: samples[i].Name,
				SampleSize: samples[i].Size,
				Format:     "unknown",
				Entropy:    types.EntropyUnknown,
				Status:     types.StatusFailed,
				Reason:     types.ReasonTimedOut,
			}
		}
	}
	return reports
}
