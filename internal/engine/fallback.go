package engine

import (
	"context"
	"fmt"
	"io"
	"os"
)

// downloadSingleConnection handles the unknown-size path: sequential writes
// in append mode, resuming from the slab's current length via a suffix
// Range request when possible. It never partitions into segments and so
// never touches a resume-state sidecar.
func downloadSingleConnection(ctx context.Context, deps Deps, job Job, finalPath, slabPath string) (string, error) {
	f, err := os.OpenFile(slabPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", newErr(KindIOError, job.URL, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return "", newErr(KindIOError, job.URL, err)
	}
	offset := fi.Size()

	result, err := deps.HTTP.Get(ctx, job.URL, offset, job.Headers)
	if err != nil {
		return "", newErr(KindTransientNetwork, job.URL, err)
	}
	defer func() { _ = result.Body.Close() }()

	if offset > 0 && result.StatusCode == 200 {
		deps.Log.WarnfURL(job.URL, "server ignored Range on resume, restarting from byte 0")
		if err := f.Truncate(0); err != nil {
			return "", newErr(KindIOError, job.URL, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return "", newErr(KindIOError, job.URL, err)
		}
	} else if result.StatusCode != 200 && result.StatusCode != 206 {
		msg := friendlyHTTPStatus(result.StatusCode, fmt.Sprintf("unexpected status %d", result.StatusCode), "")
		return "", newErr(KindTransientNetwork, job.URL, fmt.Errorf("%s", msg))
	}

	if err := streamInto(ctx, deps, f, result, job); err != nil {
		return "", err
	}

	if err := commit(deps, nil, job, finalPath, slabPath); err != nil {
		return "", err
	}
	return finalPath, nil
}
