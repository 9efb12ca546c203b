package usecase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"neatsync/internal/domain"
	"neatsync/internal/pkg/retry"
	"neatsync/internal/pkg/sanitize"
)

const (
	fetchAttempts  = 3
	fetchBaseDelay = 1 * time.Second
)

// ClientSource hands out an HTTP client carrying the live session's cookies.
// Satisfied by the browser session driver.
type ClientSource interface {
	AuthenticatedClient(ctx context.Context) (*http.Client, error)
}

// DownloadResolver decides, per document, whether to fetch, skip, or
// disambiguate against what is already on disk, then performs the fetch.
type DownloadResolver struct {
	clients  ClientSource
	mirror   domain.Mirror
	progress domain.ProgressReporter
	status   domain.StatusFunc
	log      *zap.SugaredLogger

	downloadTimeout time.Duration
	delay           time.Duration
}

func NewDownloadResolver(
	clients ClientSource,
	mirror domain.Mirror,
	progress domain.ProgressReporter,
	status domain.StatusFunc,
	log *zap.SugaredLogger,
	downloadTimeout, delay time.Duration,
) *DownloadResolver {
	return &DownloadResolver{
		clients:         clients,
		mirror:          mirror,
		progress:        progress,
		status:          status,
		log:             log,
		downloadTimeout: downloadTimeout,
		delay:           delay,
	}
}

// Resolve processes a single listed item into destDir. The returned error is
// non-nil exactly when the outcome is OutcomeFailed; it is item-scoped and
// never aborts the walk.
func (r *DownloadResolver) Resolve(ctx context.Context, item domain.Entity, destDir string) (domain.Outcome, error) {
	if item.Kind != domain.KindDocument {
		return domain.OutcomeSkipped, nil
	}

	base := sanitize.Name(item.DisplayName())

	if item.DownloadURL == "" {
		return domain.OutcomeFailed, fmt.Errorf("listing entry has no download url")
	}

	client, err := r.clients.AuthenticatedClient(ctx)
	if err != nil {
		return domain.OutcomeFailed, fmt.Errorf("no authenticated session: %w", err)
	}

	size := item.Size
	if size <= 0 {
		size = r.probeSize(ctx, client, item.DownloadURL)
	}

	if size > 0 {
		for _, existing := range r.mirror.ExistingSizes(destDir, base) {
			if existing == size {
				r.status(fmt.Sprintf("Skipped %s (already downloaded)", base), domain.LevelInfo)
				return domain.OutcomeSkipped, nil
			}
		}
	}

	path := r.mirror.NextAvailableName(destDir, base)

	err = retry.WithRetry(ctx, r.log, "download "+base, func() error {
		return r.fetch(ctx, client, item.DownloadURL, path, size)
	}, fetchAttempts, fetchBaseDelay)
	if err != nil {
		return domain.OutcomeFailed, err
	}

	r.status(fmt.Sprintf("Downloaded %s", filepath.Base(path)), domain.LevelSuccess)
	r.pause(ctx)
	return domain.OutcomeDownloaded, nil
}

// probeSize asks the server for the declared size when the listing omitted
// it. Best effort; a failed probe just disables the skip check.
func (r *DownloadResolver) probeSize(ctx context.Context, client *http.Client, rawURL string) int64 {
	probeCtx, cancel := context.WithTimeout(ctx, r.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0
	}
	resp, err := client.Do(req)
	if err != nil {
		r.log.Debugw("size probe failed", "err", err)
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength <= 0 {
		return 0
	}
	return resp.ContentLength
}

func (r *DownloadResolver) fetch(ctx context.Context, client *http.Client, rawURL, path string, expected int64) error {
	fetchCtx, cancel := context.WithTimeout(ctx, r.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %s", resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = expected
	}
	task := r.progress.Start(filepath.Base(path), total)
	defer task.Complete()

	n, err := r.mirror.WriteFile(path, &progressReader{r: resp.Body, task: task})
	if err != nil {
		return err
	}
	r.log.Debugw("downloaded", "path", path, "bytes", n)
	return nil
}

// pause spaces requests out so the backup does not hammer the service.
func (r *DownloadResolver) pause(ctx context.Context) {
	if r.delay <= 0 {
		return
	}
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
	}
}

type progressReader struct {
	r    io.Reader
	task domain.ProgressTask
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.task.Increment(n)
	}
	return n, err
}
