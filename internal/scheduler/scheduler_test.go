package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"segfetch/internal/config"
	"segfetch/internal/engine"
	"segfetch/internal/httpclient"
	"segfetch/internal/logging"
	"segfetch/internal/metrics"
	"segfetch/internal/progress"
	"segfetch/internal/ratelimit"
)

func testDeps() engine.Deps {
	return engine.Deps{
		HTTP:     httpclient.New(0, "segfetch-test"),
		Limiter:  ratelimit.New(0),
		Counters: progress.New(),
		Metrics:  metrics.New(""),
		Log:      logging.New("error", false),
		Split:    2,
		Verify:   config.ModeOff,
	}
}

func servePayload(payload []byte) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.WriteHeader(200)
			return
		}
		var start, end int
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err == nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
			w.WriteHeader(206)
			w.Write(payload[start : end+1])
			return
		}
		w.WriteHeader(200)
		w.Write(payload)
	})
	return httptest.NewServer(mux)
}

func TestRunCompletesAllJobsEvenWhenOneFails(t *testing.T) {
	ts := servePayload([]byte("ok"))
	defer ts.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer bad.Close()

	dir := t.TempDir()
	sched := New(testDeps(), dir, 2)
	jobs := []engine.Job{
		{URL: ts.URL + "/a.bin"},
		{URL: bad.URL + "/b.bin"},
		{URL: ts.URL + "/c.bin"},
	}
	outcomes := sched.Run(context.Background(), jobs)
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Err != nil {
		t.Fatalf("job 0 should have succeeded, got %v", outcomes[0].Err)
	}
	if outcomes[2].Err != nil {
		t.Fatalf("job 2 should have succeeded despite job 1 failing, got %v", outcomes[2].Err)
	}
}

// TestRunBoundsConcurrency uses Split:1 so each job issues exactly one GET,
// isolating the scheduler's file-level bound from the engine's own
// per-file segment fan-out.
func TestRunBoundsConcurrency(t *testing.T) {
	const parallelism = 2
	var inFlight int64
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "2")
			w.WriteHeader(200)
			return
		}
		atomic.AddInt64(&inFlight, 1)
		<-release
		atomic.AddInt64(&inFlight, -1)
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	dir := t.TempDir()
	deps := testDeps()
	deps.Split = 1
	sched := New(deps, dir, parallelism)
	jobs := make([]engine.Job, 4)
	for i := range jobs {
		jobs[i] = engine.Job{URL: ts.URL + fmt.Sprintf("/%d.bin", i)}
	}

	done := make(chan []Outcome, 1)
	go func() { done <- sched.Run(context.Background(), jobs) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt64(&inFlight) < parallelism {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // give any over-admission a chance to show up
	if got := atomic.LoadInt64(&inFlight); got > parallelism {
		t.Fatalf("expected at most %d concurrent downloads, observed %d", parallelism, got)
	}
	close(release)
	<-done
}
