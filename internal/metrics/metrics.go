// Package metrics exports a Prometheus textfile with the counters this
// domain produces: bytes downloaded, segment retries, file completions,
// and the active rate-limiter ceiling.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Manager accumulates counters in memory and flushes them to a Prometheus
// textfile-collector-compatible file via atomic rename each time Write is
// called.
type Manager struct {
	path string
	mu   sync.Mutex

	bytesTotal     int64
	retriesTotal   int64
	successTotal   int64
	failureTotal   int64
	rateLimitBytes int64
}

// New returns a Manager writing to path, or nil if path is empty (in which
// case every method is a safe no-op via nil-receiver checks).
func New(path string) *Manager {
	if path == "" {
		return nil
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return &Manager{path: path}
}

func (m *Manager) AddBytes(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.bytesTotal += n
	m.mu.Unlock()
}

func (m *Manager) IncRetries(n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.retriesTotal += n
	m.mu.Unlock()
}

func (m *Manager) IncSuccess() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.successTotal++
	m.mu.Unlock()
}

func (m *Manager) IncFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failureTotal++
	m.mu.Unlock()
}

func (m *Manager) SetRateLimit(bytesPerSecond int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.rateLimitBytes = bytesPerSecond
	m.mu.Unlock()
}

// Write flushes the current counters to the textfile path via a temp file
// plus rename, matching the resume state store's crash-safety pattern.
func (m *Manager) Write() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.CreateTemp(filepath.Dir(m.path), ".metrics.tmp.*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	fmt.Fprintf(f, "# HELP segfetch_bytes_downloaded_total Total bytes downloaded.\n")
	fmt.Fprintf(f, "# TYPE segfetch_bytes_downloaded_total counter\n")
	fmt.Fprintf(f, "segfetch_bytes_downloaded_total %d\n", m.bytesTotal)

	fmt.Fprintf(f, "# HELP segfetch_segment_retries_total Total segment retry attempts.\n")
	fmt.Fprintf(f, "# TYPE segfetch_segment_retries_total counter\n")
	fmt.Fprintf(f, "segfetch_segment_retries_total %d\n", m.retriesTotal)

	fmt.Fprintf(f, "# HELP segfetch_files_complete_total Files committed successfully.\n")
	fmt.Fprintf(f, "# TYPE segfetch_files_complete_total counter\n")
	fmt.Fprintf(f, "segfetch_files_complete_total %d\n", m.successTotal)

	fmt.Fprintf(f, "# HELP segfetch_files_failed_total Files that ended the run in error.\n")
	fmt.Fprintf(f, "# TYPE segfetch_files_failed_total counter\n")
	fmt.Fprintf(f, "segfetch_files_failed_total %d\n", m.failureTotal)

	fmt.Fprintf(f, "# HELP segfetch_rate_limit_bytes_per_second Configured aggregate rate cap, 0 if unlimited.\n")
	fmt.Fprintf(f, "# TYPE segfetch_rate_limit_bytes_per_second gauge\n")
	fmt.Fprintf(f, "segfetch_rate_limit_bytes_per_second %d\n", m.rateLimitBytes)

	fmt.Fprintf(f, "# HELP segfetch_metrics_timestamp_seconds UNIX timestamp when this file was written.\n")
	fmt.Fprintf(f, "# TYPE segfetch_metrics_timestamp_seconds gauge\n")
	fmt.Fprintf(f, "segfetch_metrics_timestamp_seconds %d\n", time.Now().Unix())

	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), m.path)
}
