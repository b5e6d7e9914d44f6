package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/keanucz/maktabdl/internal/archive"
	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/extract"
	"github.com/keanucz/maktabdl/internal/layout"
	"github.com/keanucz/maktabdl/internal/ledger"
	"github.com/keanucz/maktabdl/internal/transport"
)

// ErrNoVideo indicates a lecture page without any video source.
var ErrNoVideo = errors.New("no video found")

const defaultVideoExt = "mp4"

// UnitResult is the outcome of processing one unit.
type UnitResult struct {
	Chapter string // ledger chapter key
	Unit    string // ledger unit key
	Title   string
	URL     string
	Status  ledger.Status
	Path    string // main file of the unit
	Size    int64
	Written int64
	Err     error
}

// tally folds file outcomes into a unit status. Any failure makes the unit
// Failed, then any transfer makes it Downloaded, then any skip makes it
// Already Exists. A unit that touched no file has No Content.
type tally struct {
	errs        []error
	transferred bool
	skipped     bool
	written     int64
}

func (t *tally) add(o Outcome) {
	switch o.State {
	case Failed:
		t.errs = append(t.errs, o.Err)
	case Transferred:
		t.transferred = true
	case Skipped:
		t.skipped = true
	}
	t.written += o.Written
}

func (t *tally) fail(err error) {
	t.errs = append(t.errs, err)
}

func (t *tally) status() ledger.Status {
	switch {
	case len(t.errs) > 0:
		return ledger.Failed
	case t.transferred:
		return ledger.Downloaded
	case t.skipped:
		return ledger.AlreadyExists
	default:
		return ledger.NoContent
	}
}

// ProcessUnit fetches the page of unit ui in chapter ci once and downloads
// everything it references.
func (d *Downloader) ProcessUnit(ctx context.Context, info *course.Info, ci, ui int) UnitResult {
	ch := info.Chapters.Chapters[ci]
	u := ch.Units[ui]
	pageURL := info.UnitURL(ch, u)

	res := UnitResult{
		Chapter: ledger.ChapterName(ci, ch.Title),
		Unit:    d.planner.Plan(info.Course.Title, ci, ch.Title, ui, u.Title, u.Type, false).Stem,
		Title:   u.Title,
		URL:     pageURL,
	}

	d.log.Info("Processing unit", "chapter", ch.Title, "unit", u.Title, "type", u.Type)
	resp, err := d.fetchPage(ctx, pageURL)
	if err != nil {
		res.Status = ledger.Failed
		res.Err = fmt.Errorf("fetch unit page: %w", err)
		return res
	}

	page := extract.Parse(resp.Body, d.origin())
	plan := d.planner.Plan(info.Course.Title, ci, ch.Title, ui, u.Title, u.Type, page.Subtitle != nil)

	var t tally
	if u.Attachment {
		if page.Attachment == nil {
			d.log.Info("No attachment found", "unit", u.Title)
		} else {
			dest := plan.Attachment(fileName(page.Attachment.URL))
			o := d.FetchToFile(ctx, page.Attachment.URL, dest)
			t.add(o)
			d.afterArchive(o)
		}
	}

	if u.IsLecture() {
		res.Path = d.lecture(ctx, page, plan, &t)
	} else {
		res.Path = d.textPage(ctx, resp.Body, page, plan, &t)
	}

	res.Status = t.status()
	res.Written = t.written
	res.Err = errors.Join(t.errs...)
	if res.Path != "" {
		if fi, err := os.Stat(res.Path); err == nil {
			res.Size = fi.Size()
		}
	}
	return res
}

func (d *Downloader) fetchPage(ctx context.Context, pageURL string) (*transport.Response, error) {
	return d.session.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    pageURL,
		Header: http.Header{"Accept": {"text/html,application/xhtml+xml"}},
	})
}

func (d *Downloader) lecture(ctx context.Context, page extract.Page, plan layout.UnitPlan, t *tally) string {
	if page.Subtitle != nil {
		o := d.FetchToFile(ctx, page.Subtitle.URL, plan.Subtitle())
		t.add(o)
		if d.opts.Transcript && o.State != Failed {
			d.transcript(o)
		}
	} else {
		d.log.Debug("No subtitle found")
	}

	video, ok := extract.SelectVideo(page.Videos)
	if !ok {
		t.fail(ErrNoVideo)
		return ""
	}
	d.log.Debug("Selected video", "url", video.URL, "quality", video.Quality, "candidates", len(page.Videos))
	dest := plan.Video(extension(video.URL, defaultVideoExt))
	t.add(d.FetchToFile(ctx, video.URL, dest))
	return dest
}

func (d *Downloader) textPage(ctx context.Context, body []byte, page extract.Page, plan layout.UnitPlan, t *tally) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	dest := plan.Page()
	o := Outcome{Path: dest, Size: int64(len(body))}
	if existing, err := os.ReadFile(dest); err == nil && bytes.Equal(existing, body) {
		o.State = Skipped
	} else if err := writeFile(dest, body); err != nil {
		o.State, o.Err = Failed, err
	} else {
		o.State, o.Written = Transferred, int64(len(body))
		d.log.Info("Saved page", "path", filepath.Base(dest))
	}
	t.add(o)

	n := 0
	for _, a := range page.Archives {
		ext := extension(a.URL, "")
		if ext == "" {
			d.log.Error("Could not determine file extension", "url", a.URL)
			continue
		}
		ao := d.FetchToFile(ctx, a.URL, plan.Archive(ext, n))
		t.add(ao)
		d.afterArchive(ao)
		n++
	}
	return dest
}

func (d *Downloader) afterArchive(o Outcome) {
	if !d.opts.Extract || o.State != Transferred || !archive.Supported(o.Path) {
		return
	}
	dest := strings.TrimSuffix(o.Path, filepath.Ext(o.Path))
	if err := archive.Extract(o.Path, dest); err != nil {
		d.log.Warn("Extraction failed", "path", o.Path, "err", err)
		return
	}
	d.log.Info("Extracted", "path", filepath.Base(o.Path), "dir", dest)
}

func (d *Downloader) transcript(o Outcome) {
	out := strings.TrimSuffix(o.Path, filepath.Ext(o.Path)) + ".txt"
	if o.State == Skipped {
		if _, err := os.Stat(out); err == nil {
			return
		}
	}
	if err := WriteTranscript(o.Path, out); err != nil {
		d.log.Warn("Transcript failed", "path", o.Path, "err", err)
	}
}

func writeFile(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// fileName returns the unescaped last path segment of a URL.
func fileName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "." || name == "/" {
		return "attachment"
	}
	return name
}

// extension returns the lower-cased extension of a URL's path without the
// dot, or fallback when there is none.
func extension(rawURL, fallback string) string {
	ext := strings.TrimPrefix(path.Ext(fileName(rawURL)), ".")
	if ext == "" {
		return fallback
	}
	return strings.ToLower(ext)
}
