package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Zmmoly/modelcache/metrics"
	"github.com/Zmmoly/modelcache/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	copyBufferSize int = 64 * 1024
)

// ProgressFunc is called while a download is in progress
// total is -1 if the server does not tell the content length
type ProgressFunc func(name string, processed int64, total int64)

// Fetcher downloads a model file to local storage
type Fetcher interface {
	// Fetch downloads url to dest, dest has non-zero length on success
	Fetch(ctx context.Context, name string, url string, dest string) error
}

// HTTPFetcher downloads models over HTTP(S)
type HTTPFetcher struct {
	client   *http.Client
	metrics  *metrics.Metrics
	progress ProgressFunc
}

// NewHTTPFetcher creates a new HTTPFetcher
// timeout bounds a whole download, zero means no limit
func NewHTTPFetcher(timeout time.Duration, fetchMetrics *metrics.Metrics) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		metrics: fetchMetrics,
	}
}

// NewHTTPFetcherWithClient creates a new HTTPFetcher using the client given
func NewHTTPFetcherWithClient(client *http.Client, fetchMetrics *metrics.Metrics) *HTTPFetcher {
	return &HTTPFetcher{
		client:  client,
		metrics: fetchMetrics,
	}
}

// SetProgressFunc sets a callback reporting download progress
func (fetcher *HTTPFetcher) SetProgressFunc(progress ProgressFunc) {
	fetcher.progress = progress
}

// Fetch downloads url to dest
// bytes are written to a temp file next to dest and renamed when complete
func (fetcher *HTTPFetcher) Fetch(ctx context.Context, name string, url string, dest string) error {
	logger := log.WithFields(log.Fields{
		"package":  "fetch",
		"struct":   "HTTPFetcher",
		"function": "Fetch",
	})

	defer utils.StackTraceFromPanic(logger)

	logger.Infof("downloading model %s from %s to %s", name, url, dest)

	startTime := time.Now()
	written, err := fetcher.fetch(ctx, name, url, dest)
	if err != nil {
		logger.WithError(err).Errorf("failed to download model %s", name)
		fetcher.observe(metrics.StatusFailure, 0, startTime)
		return err
	}

	logger.Infof("downloaded model %s - %d bytes", name, written)
	fetcher.observe(metrics.StatusOK, written, startTime)
	return nil
}

func (fetcher *HTTPFetcher) fetch(ctx context.Context, name string, url string, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, NewFetchError(FetchErrorNetwork, name, url, xerrors.Errorf("failed to make request: %w", err))
	}

	resp, err := fetcher.client.Do(req)
	if err != nil {
		return 0, NewFetchError(FetchErrorNetwork, name, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, NewFetchError(FetchErrorNetwork, name, url, xerrors.Errorf("unexpected status %s", resp.Status))
	}

	err = os.MkdirAll(utils.GetDir(dest), 0755)
	if err != nil {
		return 0, NewFetchError(FetchErrorIO, name, url, xerrors.Errorf("failed to make dir for %s: %w", dest, err))
	}

	tempFile, err := os.CreateTemp(utils.GetDir(dest), "."+utils.GetFileName(dest)+".*.part")
	if err != nil {
		return 0, NewFetchError(FetchErrorIO, name, url, xerrors.Errorf("failed to create temp file for %s: %w", dest, err))
	}

	tempPath := tempFile.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tempPath)
		}
	}()

	written, copyErr := fetcher.copy(name, tempFile, resp.Body, resp.ContentLength)
	closeErr := tempFile.Close()

	if copyErr != nil {
		var writeErr *writeError
		if xerrors.As(copyErr, &writeErr) {
			return written, NewFetchError(FetchErrorIO, name, url, writeErr.err)
		}
		return written, NewFetchError(FetchErrorNetwork, name, url, copyErr)
	}

	if closeErr != nil {
		return written, NewFetchError(FetchErrorIO, name, url, xerrors.Errorf("failed to close temp file %s: %w", tempPath, closeErr))
	}

	if written == 0 {
		return 0, NewFetchError(FetchErrorEmpty, name, url, nil)
	}

	err = os.Rename(tempPath, dest)
	if err != nil {
		return written, NewFetchError(FetchErrorIO, name, url, xerrors.Errorf("failed to rename %s to %s: %w", tempPath, dest, err))
	}

	committed = true
	return written, nil
}

// writeError marks failures on the local side of a copy
type writeError struct {
	err error
}

func (err *writeError) Error() string {
	return err.err.Error()
}

func (fetcher *HTTPFetcher) copy(name string, dst io.Writer, src io.Reader, total int64) (int64, error) {
	if total <= 0 {
		total = -1
	}

	buffer := make([]byte, copyBufferSize)
	processed := int64(0)
	for {
		readLen, readErr := src.Read(buffer)
		if readLen > 0 {
			_, writeErr := dst.Write(buffer[:readLen])
			if writeErr != nil {
				return processed, &writeError{err: writeErr}
			}

			processed += int64(readLen)
			if fetcher.progress != nil {
				fetcher.progress(name, processed, total)
			}
		}

		if readErr == io.EOF {
			return processed, nil
		}

		if readErr != nil {
			return processed, xerrors.Errorf("failed to read response body: %w", readErr)
		}
	}
}

func (fetcher *HTTPFetcher) observe(status string, written int64, startTime time.Time) {
	if fetcher.metrics == nil {
		return
	}

	fetcher.metrics.ObserveOperation(metrics.OperationFetch, status)
	fetcher.metrics.ObserveBytes(metrics.OperationFetch, status, written)
	fetcher.metrics.ObserveFetchDuration(time.Since(startTime).Seconds())
}
