package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/zeroinstall-go/zerostore/zerrors"
)

// downloadFile performs one File's transfer to completion: it issues a
// Range request when resuming, falls back to a fresh download if the
// server ignores the range (200 OK instead of 206), and writes bytes in
// strictly increasing offset order as spec.md §5 requires. retryablehttp
// absorbs transient network failures internally (the configured number
// of attempts, seeded exponential backoff); a failure returned here has
// already exhausted that budget.
func (s *Scheduler) downloadFile(ctx context.Context, job *Job, file *File) error {
	resuming := file.SupportsResume && file.written > 0
	rangeRequested := resuming || file.RangeStart > 0

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return &zerrors.NetworkError{URL: file.URL, Err: err}
	}
	if rangeRequested {
		req.Header.Set("Range", rangeHeader(file.RangeStart+file.written))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &zerrors.NetworkError{URL: file.URL, Err: err}
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		if resuming {
			flags |= os.O_APPEND
			s.metrics.resumed.Increment()
			s.publish(Event{Kind: EventResumed, JobID: job.ID, URL: file.URL, At: time.Now()})
		} else {
			// First request for this file, server honoured RangeStart:
			// Dest holds only the requested suffix, starting at 0.
			flags |= os.O_TRUNC
			file.rangeHonored = true
		}
	case http.StatusOK:
		// Server ignored the Range header (or none was requested):
		// restart from zero per spec.md §4.4. If RangeStart narrowed
		// ExpectedSize on the assumption the range would be honoured,
		// restore it to the whole resource's size now that the server
		// sent the whole body instead.
		file.written = 0
		flags |= os.O_TRUNC
		if file.FullSize > 0 {
			file.ExpectedSize = file.FullSize
		}
	default:
		return &zerrors.NetworkError{URL: file.URL, Err: errStatus(resp.StatusCode)}
	}

	out, err := os.OpenFile(file.Dest, flags, 0o644)
	if err != nil {
		return &zerrors.IOError{Op: "open", Path: file.Dest, Err: err}
	}
	defer out.Close()

	const chunk = 64 * 1024 // cancellation granularity per spec.md §5
	buf := make([]byte, chunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return &zerrors.IOError{Op: "write", Path: file.Dest, Err: werr}
			}
			file.written += int64(n)
			s.metrics.bytes.Add(float64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &zerrors.NetworkError{URL: file.URL, Err: readErr}
		}
	}

	if file.ExpectedSize > 0 && file.written != file.ExpectedSize {
		return &zerrors.SizeMismatch{Expected: file.ExpectedSize, Actual: file.written, URL: file.URL}
	}
	return nil
}

func rangeHeader(offset int64) string {
	return "bytes=" + strconv.FormatInt(offset, 10) + "-"
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", int(e))
}

func errStatus(code int) error { return httpStatusError(code) }
