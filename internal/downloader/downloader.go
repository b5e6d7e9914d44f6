// Package downloader walks a course tree and downloads the media of every
// unit into the planned layout, recording progress in the course ledger.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/keanucz/maktabdl/internal/layout"
	"github.com/keanucz/maktabdl/internal/logging"
	"github.com/keanucz/maktabdl/internal/transport"
)

// ChunkSize is the read size used while streaming a file to disk.
const ChunkSize = 8 << 10

const (
	// DefaultUnitPause bounds the random pause after each unit.
	DefaultUnitPause = time.Second
	// DefaultFailurePause bounds the random pause after a failed unit.
	DefaultFailurePause = 60 * time.Second
)

// Session is the subset of *transport.Client used by the downloader.
type Session interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
	Head(ctx context.Context, rawURL string) (*transport.Response, error)
	Stream(ctx context.Context, rawURL string) (*http.Response, error)
	BaseURL() string
}

// ProgressCallback is called while a file is streamed with the cumulative
// number of bytes written and the expected total (0 when unknown).
type ProgressCallback func(path string, written, total int64)

// Options control how a course is downloaded.
type Options struct {
	OutputDir  string
	Log        logging.Logger
	OnProgress ProgressCallback

	Extract    bool // unpack .zip and .7z files after they are transferred
	Transcript bool // write a plain-text transcript next to each subtitle

	Sleep        transport.SleepFunc
	Jitter       func(limit time.Duration) time.Duration // returns a value in [0, limit]
	UnitPause    time.Duration
	FailurePause time.Duration
}

// State is the result of a single file fetch.
type State int

const (
	Skipped State = iota
	Transferred
	Failed
)

func (s State) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case Transferred:
		return "transferred"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome describes what FetchToFile did.
type Outcome struct {
	State   State
	Path    string
	Size    int64 // size of the file on disk afterwards
	Written int64 // bytes transferred by this call
	Err     error
}

// Downloader coordinates downloading courses.
type Downloader struct {
	session Session
	planner layout.Planner
	opts    Options
	log     logging.Logger
}

// New creates a Downloader.
func New(session Session, opts Options) *Downloader {
	if opts.Sleep == nil {
		opts.Sleep = transport.Sleep
	}
	if opts.Jitter == nil {
		opts.Jitter = func(limit time.Duration) time.Duration {
			if limit <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(limit + 1)))
		}
	}
	if opts.UnitPause == 0 {
		opts.UnitPause = DefaultUnitPause
	}
	if opts.FailurePause == 0 {
		opts.FailurePause = DefaultFailurePause
	}
	return &Downloader{
		session: session,
		planner: layout.Planner{Root: opts.OutputDir},
		opts:    opts,
		log:     logging.OrDiscard(opts.Log),
	}
}

// Planner returns the path planner rooted at the output directory.
func (d *Downloader) Planner() layout.Planner {
	return d.planner
}

// origin returns the site origin that relative page links resolve against.
func (d *Downloader) origin() *url.URL {
	u, err := url.Parse(d.session.BaseURL())
	if err != nil {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}

// progressReader wraps an io.Reader and reports progress.
type progressReader struct {
	reader     io.Reader
	path       string
	total      int64
	written    int64
	onProgress ProgressCallback
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.written += int64(n)
		if pr.onProgress != nil {
			pr.onProgress(pr.path, pr.written, pr.total)
		}
	}
	return n, err
}

// FetchToFile downloads url to dest unless dest already holds a file of the
// size announced by a HEAD request. A file of any other size is replaced. A
// failed transfer leaves the partial file in place.
func (d *Downloader) FetchToFile(ctx context.Context, url, dest string) Outcome {
	out := Outcome{Path: dest}
	fail := func(err error) Outcome {
		out.State = Failed
		out.Err = err
		return out
	}

	head, err := d.session.Head(ctx, url)
	if err != nil {
		return fail(fmt.Errorf("head %s: %w", url, err))
	}
	total := head.ContentLength()

	if fi, err := os.Stat(dest); err == nil {
		if fi.Size() == total {
			d.log.Info("File already downloaded", "path", dest)
			out.State = Skipped
			out.Size = total
			return out
		}
		d.log.Info("File exists with a different size", "path", dest, "have", fi.Size(), "want", total)
		if err := os.Remove(dest); err != nil {
			return fail(fmt.Errorf("remove stale file: %w", err))
		}
	}

	resp, err := d.session.Stream(ctx, url)
	if err != nil {
		return fail(fmt.Errorf("get %s: %w", url, err))
	}
	defer resp.Body.Close()
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fail(err)
	}
	file, err := os.Create(dest)
	if err != nil {
		return fail(err)
	}
	defer file.Close()

	d.log.Debug("Downloading", "url", url, "path", dest, "bytes", total)
	reader := &progressReader{reader: resp.Body, path: dest, total: total, onProgress: d.opts.OnProgress}
	buf := make([]byte, ChunkSize)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				out.Written = reader.written
				return fail(fmt.Errorf("write %s: %w", dest, err))
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			out.Written = reader.written
			return fail(fmt.Errorf("read %s: %w", url, readErr))
		}
	}
	if err := file.Close(); err != nil {
		return fail(err)
	}

	d.log.Info("Downloaded", "path", filepath.Base(dest), "bytes", reader.written)
	out.State = Transferred
	out.Written = reader.written
	out.Size = reader.written
	return out
}

func (d *Downloader) pause(ctx context.Context, limit time.Duration) error {
	wait := d.opts.Jitter(limit)
	if wait <= 0 {
		return ctx.Err()
	}
	d.log.Debug("Sleeping", "duration", wait)
	return d.opts.Sleep(ctx, wait)
}
