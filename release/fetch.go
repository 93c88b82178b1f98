package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getpup/pupsourcing/es"

	"github.com/getpup/glpi-bootstrap"
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Client performs the download (default: client with a 10m timeout).
	Client *http.Client

	// KeepTopDir disables stripping of the archive's top-level directory.
	KeepTopDir bool

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Result describes a completed download.
type Result struct {
	Bytes    int64
	Files    int
	Duration time.Duration
}

// Fetcher downloads a release archive and unpacks it while it streams.
type Fetcher struct {
	config FetcherConfig
}

// NewFetcher creates a Fetcher, applying defaults for zero-valued fields.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Fetcher{config: cfg}
}

// Fetch downloads rel and extracts it into dir. There is no retry: any
// network or archive failure is returned to the caller.
func (f *Fetcher) Fetch(ctx context.Context, rel bootstrap.Release, dir string) (Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rel.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build download request: %w", err)
	}

	if f.config.Logger != nil {
		f.config.Logger.Info(ctx, "downloading release", "version", rel.Version, "url", rel.URL)
	}

	resp, err := f.config.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to download release %s: %w", rel.Version, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Result{}, fmt.Errorf("%w: %s returned %s", bootstrap.ErrReleaseNotFound, rel.URL, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("failed to download release %s: %s", rel.Version, resp.Status)
	}

	strip := 1
	if f.config.KeepTopDir {
		strip = 0
	}

	counter := &countingReader{r: resp.Body}
	files, err := Extract(counter, dir, strip)
	if err != nil {
		return Result{Bytes: counter.n, Files: files}, err
	}
	// Drain trailing padding so the byte count covers the whole archive.
	if _, err := io.Copy(io.Discard, counter); err != nil {
		return Result{Bytes: counter.n, Files: files}, fmt.Errorf("failed to download release %s: %w", rel.Version, err)
	}

	if rel.Size > 0 && rel.Size != counter.n {
		return Result{Bytes: counter.n, Files: files}, fmt.Errorf("%w: archive size mismatch, expected %d, got %d",
			bootstrap.ErrArchiveInvalid, rel.Size, counter.n)
	}

	res := Result{Bytes: counter.n, Files: files, Duration: time.Since(start)}
	if f.config.Logger != nil {
		f.config.Logger.Info(ctx, "release unpacked", "version", rel.Version,
			"size", humanize.Bytes(uint64(res.Bytes)), "files", humanize.Comma(int64(res.Files)),
			"dir", dir, "duration", res.Duration.Round(time.Millisecond))
	}
	return res, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
