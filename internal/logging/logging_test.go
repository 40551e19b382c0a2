package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newTestLogger(jsonOut bool) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := &Logger{min: Debug, json: jsonOut, out: buf}
	return l, buf
}

// WarnfURL must strip a signed download URL's query string (the kind of
// secret-bearing query this domain actually fetches from, e.g. a
// presigned S3 object URL) before it reaches the log line.
func TestWarnfURLSanitizesQueryString(t *testing.T) {
	l, buf := newTestLogger(false)
	l.WarnfURL("https://cdn.example.com/releases/segfetch-linux-amd64.tar.gz?X-Amz-Signature=abc123&X-Amz-Expires=900",
		"segment %d: server ignored Range", 2)
	out := buf.String()
	if strings.Contains(out, "X-Amz-Signature") {
		t.Fatalf("expected signature query param to be stripped, got: %s", out)
	}
	if !strings.Contains(out, "https://cdn.example.com/releases/segfetch-linux-amd64.tar.gz") {
		t.Fatalf("expected sanitized url in output, got: %s", out)
	}
	if !strings.Contains(out, "segment 2: server ignored Range") {
		t.Fatalf("expected formatted message in output, got: %s", out)
	}
}

// Under JSON output, the sanitized URL must also appear as a structured
// "url" field, not just interpolated into "msg".
func TestWarnfURLAttachesStructuredURLFieldUnderJSON(t *testing.T) {
	l, buf := newTestLogger(true)
	l.WarnfURL("https://host/a.bin?token=secret", "unexpected status %d", 500)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("expected valid json line, got %q: %v", buf.String(), err)
	}
	if payload["url"] != "https://host/a.bin" {
		t.Fatalf("expected structured url field without query, got %v", payload["url"])
	}
	if msg, _ := payload["msg"].(string); strings.Contains(msg, "secret") {
		t.Fatalf("expected msg to omit the query secret, got %q", msg)
	}
}

// DebugfURL follows the same sanitize-then-log contract as WarnfURL, at
// debug level; this is what the engine uses when it routes a sizeless
// download to the single-connection fallback.
func TestDebugfURLRespectsLevel(t *testing.T) {
	l, buf := newTestLogger(false)
	l.min = Info // debug suppressed
	l.DebugfURL("https://host/big.bin", "size unknown, using single-connection fallback")
	if buf.Len() != 0 {
		t.Fatalf("expected debug line suppressed at info level, got: %s", buf.String())
	}
}

// WarnfURLThrottled must coalesce repeated warnings for the SAME url
// (e.g. every segment of one large file discovering the server ignores
// Range, all within milliseconds of each other) while still logging
// independently for a DIFFERENT url.
func TestWarnfURLThrottledCoalescesPerURLNotGlobally(t *testing.T) {
	l, buf := newTestLogger(false)
	const url = "https://host/big.bin"

	l.WarnfURLThrottled(url, time.Minute, "segment %d: server returned 200 to a ranged request", 0)
	l.WarnfURLThrottled(url, time.Minute, "segment %d: server returned 200 to a ranged request", 1)
	l.WarnfURLThrottled(url, time.Minute, "segment %d: server returned 200 to a ranged request", 2)
	lines := strings.Count(buf.String(), "\n")
	if lines != 1 {
		t.Fatalf("expected exactly one line for three segments of the same file within the window, got %d:\n%s", lines, buf.String())
	}
	// The suppressed count is carried forward and summarized on the next
	// line logged for this url once the window has passed.
	l.mu.Lock()
	supp := l.throttle[SanitizeURL(url)].suppressed
	l.mu.Unlock()
	if supp != 2 {
		t.Fatalf("expected 2 suppressed warnings recorded for the next summary, got %d", supp)
	}

	l.WarnfURLThrottled("https://host/other.bin", time.Minute, "segment %d: server returned 200 to a ranged request", 0)
	lines = strings.Count(buf.String(), "\n")
	if lines != 2 {
		t.Fatalf("expected a second file's warning to log independently, got %d lines:\n%s", lines, buf.String())
	}
}
