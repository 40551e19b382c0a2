// Package scheduler bounds how many download engines run at once and
// collects their outcomes without letting one engine's failure cancel its
// peers.
package scheduler

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"segfetch/internal/engine"
)

// Outcome pairs one job's Result with the error the engine returned for it,
// if any.
type Outcome struct {
	Job    engine.Job
	Result engine.Result
	Err    error
}

// Scheduler bounds parallelism across engine.Download calls via a counting
// semaphore. It deliberately does not use an errgroup-style cancel-on-error
// group: one file's failure must never abort sibling downloads.
type Scheduler struct {
	sem   *semaphore.Weighted
	deps  engine.Deps
	outDir string
}

// New returns a Scheduler bounding concurrency to parallelism (defaulting
// to runtime.NumCPU() when parallelism <= 0).
func New(deps engine.Deps, outputDir string, parallelism int) *Scheduler {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(parallelism)),
		deps:   deps,
		outDir: outputDir,
	}
}

// Run admits each job through the semaphore and drives it with
// engine.Download, returning one Outcome per job in input order once every
// engine has terminated. A cancelled ctx stops admitting new engines and
// propagates to in-flight ones; already-collected outcomes are unaffected.
func (s *Scheduler) Run(ctx context.Context, jobs []engine.Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{Job: job, Err: err}
			continue
		}
		wg.Add(1)
		go func(idx int, j engine.Job) {
			defer wg.Done()
			defer s.sem.Release(1)
			res, err := engine.Download(ctx, s.deps, s.outDir, j)
			outcomes[idx] = Outcome{Job: j, Result: res, Err: err}
		}(i, job)
	}
	wg.Wait()
	return outcomes
}
