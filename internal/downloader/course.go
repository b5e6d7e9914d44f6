package downloader

import (
	"context"
	"fmt"
	"os"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/extract"
	"github.com/keanucz/maktabdl/internal/ledger"
)

// Summary describes a finished course run.
type Summary struct {
	Course     string
	LedgerPath string
	Units      int
	Downloaded int
	Existing   int
	NoContent  int
	Failed     int
	Bytes      int64
	Failures   []UnitResult
}

func (s *Summary) add(r UnitResult) {
	s.Units++
	s.Bytes += r.Written
	switch r.Status {
	case ledger.Downloaded:
		s.Downloaded++
	case ledger.AlreadyExists:
		s.Existing++
	case ledger.NoContent:
		s.NoContent++
	case ledger.Failed:
		s.Failed++
		s.Failures = append(s.Failures, r)
	}
}

// DownloadCourse processes every unit of info in order. A failed unit is
// recorded in the ledger and never stops the run; the returned error is set
// only when the course directory or ledger cannot be used or ctx is done.
func (d *Downloader) DownloadCourse(ctx context.Context, info *course.Info) (Summary, error) {
	title := info.Course.Title
	sum := Summary{Course: title, LedgerPath: d.planner.LedgerPath(title)}

	courseDir := d.planner.CourseDir(title)
	if err := os.MkdirAll(courseDir, 0o755); err != nil {
		return sum, fmt.Errorf("create course directory: %w", err)
	}

	lg, err := ledger.Open(sum.LedgerPath, info, d.planner,
		ledger.WithLogger(d.log), ledger.WithSizer(d.remoteSizer(ctx, info)))
	if err != nil {
		return sum, err
	}
	if err := lg.Save(sum.LedgerPath); err != nil {
		return sum, err
	}
	d.log.Info("Downloading course", "title", title, "units", info.UnitCount(), "dir", courseDir)

	for ci, ch := range info.Chapters.Chapters {
		d.log.Info("Processing chapter", "chapter", ch.Title)
		if err := os.MkdirAll(d.planner.ChapterDir(title, ci, ch.Title), 0o755); err != nil {
			return sum, fmt.Errorf("create chapter directory: %w", err)
		}

		for ui := range ch.Units {
			if err := ctx.Err(); err != nil {
				return sum, err
			}

			res := d.ProcessUnit(ctx, info, ci, ui)
			sum.add(res)
			lg.Update(res.Chapter, res.Unit, res.Status, res.Size, res.Err)
			if res.Path != "" {
				lg.SetPath(res.Chapter, res.Unit, res.Path)
			}
			if err := lg.Save(sum.LedgerPath); err != nil {
				d.log.Warn("Could not save ledger", "path", sum.LedgerPath, "err", err)
			}

			wait := d.opts.UnitPause
			if res.Status == ledger.Failed {
				d.log.Error("Error in unit", "unit", res.Title, "course", info.Link, "err", res.Err)
				wait = d.opts.FailurePause
			}
			if err := d.pause(ctx, wait); err != nil {
				return sum, err
			}
		}
	}

	d.log.Info("Course finished", "title", title,
		"downloaded", sum.Downloaded, "existing", sum.Existing,
		"no_content", sum.NoContent, "failed", sum.Failed)
	return sum, nil
}

// remoteSizer reports the size a unit's main file has after a download: the
// HEAD length of the selected video for lectures, the page length otherwise.
func (d *Downloader) remoteSizer(ctx context.Context, info *course.Info) ledger.Sizer {
	return func(ci, ui int, _ string) (int64, bool) {
		ch := info.Chapters.Chapters[ci]
		u := ch.Units[ui]
		resp, err := d.fetchPage(ctx, info.UnitURL(ch, u))
		if err != nil {
			d.log.Debug("Size check failed", "unit", u.Title, "err", err)
			return 0, false
		}
		if !u.IsLecture() {
			return int64(len(resp.Body)), true
		}
		video, ok := extract.SelectVideo(extract.Parse(resp.Body, d.origin()).Videos)
		if !ok {
			return 0, false
		}
		head, err := d.session.Head(ctx, video.URL)
		if err != nil {
			d.log.Debug("Size check failed", "unit", u.Title, "err", err)
			return 0, false
		}
		return head.ContentLength(), true
	}
}
