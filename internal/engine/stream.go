package engine

import (
	"context"
	"io"
	"os"

	"segfetch/internal/httpclient"
)

const readBufSize = 256 * 1024

// streamInto copies result.Body into f sequentially (the single-connection
// fallback's append-mode write path), rate-limiting and accounting each
// chunk as it lands.
func streamInto(ctx context.Context, deps Deps, f *os.File, result httpclient.RangeResult, job Job) error {
	buf := make([]byte, readBufSize)
	for {
		n, rerr := result.Body.Read(buf)
		if n > 0 {
			if err := deps.Limiter.Acquire(ctx, int64(n)); err != nil {
				return newErr(KindTransientNetwork, job.URL, err)
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return newErr(KindIOError, job.URL, werr)
			}
			deps.Counters.AddBytesDownloaded(int64(n))
			deps.Metrics.AddBytes(int64(n))
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return newErr(KindTransientNetwork, job.URL, rerr)
		}
	}
}
