// Package engine drives a single URL to completion on disk: sizing via
// HEAD, resuming or creating segment state, pre-allocating the output
// slab, fetching segments in parallel, verifying, and committing.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"segfetch/internal/config"
	"segfetch/internal/httpclient"
	"segfetch/internal/logging"
	"segfetch/internal/metrics"
	"segfetch/internal/progress"
	"segfetch/internal/ratelimit"
	"segfetch/internal/resumestate"
	"segfetch/internal/slab"
)

// Deps are the collaborators a single run shares across every concurrently
// running engine. All fields must be safe for concurrent use.
type Deps struct {
	HTTP     *httpclient.Client
	Limiter  *ratelimit.Limiter
	Counters *progress.Counters
	Metrics  *metrics.Manager
	Log      *logging.Logger
	Split    int
	Verify   config.Mode
}

// Job is one item handed to an engine invocation.
type Job struct {
	URL          string
	ExpectedHash string
	Headers      map[string]string
	// AccountedInPreScan is true when the CLI's pre-scan HEAD pass
	// already folded this URL's size into the global bytes-known counter,
	// so the engine must not double-count it.
	AccountedInPreScan bool
}

// Result describes a single file's outcome.
type Result struct {
	URL     string
	Path    string
	Skipped bool
}

// Download drives job to completion under outputDir. It is idempotent: a
// file that already exists at its final path is treated as already
// complete, and a crashed prior attempt resumes from its sidecar.
func Download(ctx context.Context, deps Deps, outputDir string, job Job) (Result, error) {
	if job.URL == "" {
		return Result{}, newErr(KindIOError, job.URL, fmt.Errorf("empty url"))
	}
	if deps.Verify == config.ModeOn && job.ExpectedHash == "" {
		return Result{}, newErr(KindMissingHash, job.URL, fmt.Errorf("verify=on requires an expected hash"))
	}

	name := deriveFilename(job.URL)
	finalPath := filepath.Join(outputDir, name)
	slabPath := finalPath + ".part"
	statePath := finalPath + ".part.json"

	if fi, err := os.Stat(finalPath); err == nil {
		deps.Counters.IncCompletedFiles()
		deps.Counters.AddBytesDownloaded(fi.Size())
		if !job.AccountedInPreScan {
			deps.Counters.AddBytesKnown(fi.Size())
		}
		deps.Metrics.IncSuccess()
		return Result{URL: job.URL, Path: finalPath, Skipped: true}, nil
	}

	store := resumestate.Open(statePath)
	st, err := resumestate.Load(statePath)
	if err != nil { // NotFound or Corrupt: re-initialize.
		st, err = initState(ctx, deps, job)
		if err != nil {
			deps.Metrics.IncFailure()
			return Result{}, err
		}
		if len(st.Parts) > 0 {
			if err := store.Save(st); err != nil {
				deps.Metrics.IncFailure()
				return Result{}, newErr(KindIOError, job.URL, err)
			}
		}
	}

	if !job.AccountedInPreScan {
		deps.Counters.AddBytesKnown(st.TotalSize)
	}

	if st.TotalSize == 0 && len(st.Parts) == 0 {
		deps.Log.DebugfURL(job.URL, "size unknown or HEAD failed, using single-connection fallback")
		path, err := downloadSingleConnection(ctx, deps, job, finalPath, slabPath)
		if err != nil {
			deps.Metrics.IncFailure()
			return Result{}, err
		}
		deps.Counters.IncCompletedFiles()
		deps.Metrics.IncSuccess()
		return Result{URL: job.URL, Path: path}, nil
	}

	sl, err := slab.Open(slabPath, st.TotalSize)
	if err != nil {
		deps.Metrics.IncFailure()
		return Result{}, newErr(KindIOError, job.URL, err)
	}
	defer func() { _ = sl.Close() }()

	if err := runSegments(ctx, deps, store, &st, sl, job); err != nil {
		deps.Metrics.IncFailure()
		return Result{}, err
	}

	if err := commit(deps, store, job, finalPath, slabPath); err != nil {
		deps.Metrics.IncFailure()
		return Result{}, err
	}

	deps.Counters.IncCompletedFiles()
	deps.Metrics.IncSuccess()
	return Result{URL: job.URL, Path: finalPath}, nil
}

// initState issues HEAD and either partitions the range into Split segments
// or, when the size is unknown, produces the empty state that routes
// Download to the single-connection fallback.
func initState(ctx context.Context, deps Deps, job Job) (resumestate.DownloadState, error) {
	info, err := deps.HTTP.Head(ctx, job.URL, job.Headers)
	if err != nil || info.ContentLength <= 0 {
		return resumestate.DownloadState{URL: job.URL}, nil
	}
	split := deps.Split
	if split < 1 {
		split = 1
	}
	return resumestate.DownloadState{
		URL:       job.URL,
		TotalSize: info.ContentLength,
		Parts:     resumestate.Partition(info.ContentLength, split),
	}, nil
}

// runSegments spawns one task per incomplete segment and waits for all of
// them; a failed segment does not cancel its siblings, but its error is
// what Download ultimately reports for this file.
func runSegments(ctx context.Context, deps Deps, store *resumestate.Store, st *resumestate.DownloadState, sl *slab.Slab, job Job) error {
	var mu sync.Mutex
	errs := make([]error, len(st.Parts))
	var wg sync.WaitGroup

	for i := range st.Parts {
		if st.Parts[i].Completed {
			continue
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = runSegment(ctx, deps, store, st, &mu, sl, job, idx)
		}(i)
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func runSegment(ctx context.Context, deps Deps, store *resumestate.Store, st *resumestate.DownloadState, mu *sync.Mutex, sl *slab.Slab, job Job, idx int) error {
	mu.Lock()
	cur := st.Parts[idx].CurrentByte
	end := st.Parts[idx].EndByte
	mu.Unlock()

	result, err := deps.HTTP.GetRange(ctx, job.URL, cur, end, job.Headers)
	if err != nil {
		return newErr(KindTransientNetwork, job.URL, err)
	}
	defer func() { _ = result.Body.Close() }()

	if result.StatusCode == 200 {
		deps.Log.WarnfURLThrottled(job.URL, 2*time.Second, "segment %d: server returned 200 to a ranged request", idx)
		return newErr(KindRangeNotHonored, job.URL, ErrRangeNotHonored)
	}
	if result.StatusCode != 206 {
		msg := friendlyHTTPStatus(result.StatusCode, fmt.Sprintf("segment %d: unexpected status %d", idx, result.StatusCode), "")
		return newErr(KindTransientNetwork, job.URL, fmt.Errorf("%s", msg))
	}

	buf := make([]byte, readBufSize)
	for {
		n, rerr := result.Body.Read(buf)
		if n > 0 {
			if err := deps.Limiter.Acquire(ctx, int64(n)); err != nil {
				return newErr(KindTransientNetwork, job.URL, err)
			}

			mu.Lock()
			offset := st.Parts[idx].CurrentByte
			mu.Unlock()
			if _, werr := sl.WriteAt(offset, buf[:n]); werr != nil {
				return newErr(KindIOError, job.URL, werr)
			}
			deps.Counters.AddBytesDownloaded(int64(n))
			deps.Metrics.AddBytes(int64(n))

			mu.Lock()
			st.Parts[idx].CurrentByte += int64(n)
			if st.Parts[idx].CurrentByte == st.Parts[idx].EndByte+1 {
				st.Parts[idx].Completed = true
			}
			snap := cloneState(st)
			force := st.Parts[idx].Completed
			mu.Unlock()
			if store != nil {
				_ = store.SaveThrottled(snap, force)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return newErr(KindTransientNetwork, job.URL, rerr)
		}
	}

	mu.Lock()
	completed := st.Parts[idx].Completed
	finalCur := st.Parts[idx].CurrentByte
	finalEnd := st.Parts[idx].EndByte
	if !completed && finalCur == finalEnd+1 {
		st.Parts[idx].Completed = true
		completed = true
	}
	snap := cloneState(st)
	mu.Unlock()

	if !completed {
		return newErr(KindTransientNetwork, job.URL, fmt.Errorf("segment %d ended early at byte %d (expected %d)", idx, finalCur, finalEnd+1))
	}
	if store != nil {
		_ = store.Save(snap)
	}
	return nil
}

func cloneState(st *resumestate.DownloadState) resumestate.DownloadState {
	parts := make([]resumestate.PartState, len(st.Parts))
	copy(parts, st.Parts)
	return resumestate.DownloadState{URL: st.URL, TotalSize: st.TotalSize, Parts: parts}
}
