package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/keanucz/maktabdl/internal/logging"
	"github.com/keanucz/maktabdl/internal/transport"
)

// ErrEmptyLink is returned for a blank course link.
var ErrEmptyLink = errors.New("empty course link")

const coursesAPI = "/api/v1/courses/"

// Doer sends API requests. *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Resolver turns course links into course trees.
type Resolver struct {
	client Doer
	base   string
	log    logging.Logger
}

// NewResolver creates a resolver talking to the platform at base.
func NewResolver(client Doer, base string, logger logging.Logger) *Resolver {
	return &Resolver{
		client: client,
		base:   strings.TrimSuffix(base, "/"),
		log:    logging.OrDiscard(logger),
	}
}

// NormalizeLink cleans a course link: https scheme, no query or fragment and
// a trailing slash. A bare slug becomes a link under base.
func NormalizeLink(raw, base string) (string, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return "", ErrEmptyLink
	}
	if !strings.Contains(link, ".") && !strings.Contains(link, "course/") {
		return strings.TrimSuffix(base, "/") + "/course/" + strings.Trim(link, "/") + "/", nil
	}
	if !strings.HasPrefix(link, "https://") {
		link = "https://" + strings.TrimPrefix(link, "http://")
	}
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	if !strings.HasSuffix(link, "/") {
		link += "/"
	}
	return link, nil
}

// Slug returns the part of a normalized link after the last "course/",
// trailing slash included.
func Slug(link string) string {
	if i := strings.LastIndex(link, "course/"); i >= 0 {
		return link[i+len("course/"):]
	}
	return link
}

// Resolve fetches the course header and chapter tree for a course link or
// slug.
func (r *Resolver) Resolve(ctx context.Context, courseURL string) (*Info, error) {
	link, err := NormalizeLink(courseURL, r.base)
	if err != nil {
		return nil, err
	}
	slug := Slug(link)
	r.log.Info("Resolving course", "link", link)

	var c Course
	if err := r.getJSON(ctx, r.base+coursesAPI+slug, &c); err != nil {
		return nil, fmt.Errorf("fetch course %s: %w", slug, err)
	}
	var chapters Chapters
	if err := r.getJSON(ctx, r.base+coursesAPI+slug+"chapters/", &chapters); err != nil {
		return nil, fmt.Errorf("fetch chapters %s: %w", slug, err)
	}

	info := &Info{Link: link, Course: c, Chapters: chapters}
	r.log.Info("Resolved course", "title", c.Title, "chapters", len(chapters.Chapters), "units", info.UnitCount())
	return info, nil
}

// Enroll enrolls the session's user in the course.
func (r *Resolver) Enroll(ctx context.Context, courseURL string) (*Course, error) {
	link, err := NormalizeLink(courseURL, r.base)
	if err != nil {
		return nil, err
	}
	slug := Slug(link)
	r.log.Info("Enrolling", "link", link)

	resp, err := r.client.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    r.base + coursesAPI + slug + "enroll/",
	})
	if err != nil {
		return nil, fmt.Errorf("enroll %s: %w", slug, err)
	}
	var c Course
	if err := resp.JSON(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, v any) error {
	resp, err := r.client.Do(ctx, &transport.Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return err
	}
	return resp.JSON(v)
}
