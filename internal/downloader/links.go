package downloader

import (
	"context"
	"fmt"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/extract"
)

// UnitLinks holds every download URL found on one unit page.
type UnitLinks struct {
	Chapter string
	Unit    string
	Type    string
	PageURL string
	Links   []string
	Err     error
}

// CollectLinks fetches every unit page of info and gathers its download
// URLs. Pages that cannot be fetched are reported through UnitLinks.Err.
func (d *Downloader) CollectLinks(ctx context.Context, info *course.Info) ([]UnitLinks, error) {
	out := make([]UnitLinks, 0, info.UnitCount())
	for _, ch := range info.Chapters.Chapters {
		for _, u := range ch.Units {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			ul := UnitLinks{Chapter: ch.Title, Unit: u.Title, Type: u.Type, PageURL: info.UnitURL(ch, u)}
			resp, err := d.fetchPage(ctx, ul.PageURL)
			if err != nil {
				ul.Err = fmt.Errorf("fetch unit page: %w", err)
				d.log.Error("Error getting URLs for unit", "unit", u.Title, "err", err)
			} else {
				ul.Links = extract.DownloadURLs(resp.Body, d.origin())
			}
			out = append(out, ul)
		}
	}
	return out, nil
}
