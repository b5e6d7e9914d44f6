// Package extract finds media references in unit pages.
package extract

import (
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Kind is the kind of media a reference points to.
type Kind string

const (
	KindVideo      Kind = "video"
	KindSubtitle   Kind = "subtitle"
	KindAttachment Kind = "attachment"
	KindArchive    Kind = "archive"
)

// AttachmentClass marks the element wrapping a unit's attachment link.
const AttachmentClass = "unit-content--download"

// HQMarker identifies the high quality variant of a video URL.
const HQMarker = "hq"

// MediaRef is a single downloadable URL found in a page.
type MediaRef struct {
	Kind    Kind
	URL     string
	Quality string
}

// Page holds everything found in one unit page.
type Page struct {
	Videos     []MediaRef
	Subtitle   *MediaRef
	Attachment *MediaRef
	Archives   []MediaRef
}

// All returns every reference in the page, videos first.
func (p Page) All() []MediaRef {
	refs := slices.Clone(p.Videos)
	if p.Subtitle != nil {
		refs = append(refs, *p.Subtitle)
	}
	if p.Attachment != nil {
		refs = append(refs, *p.Attachment)
	}
	return append(refs, p.Archives...)
}

// Parse extracts media references from body. Relative URLs are resolved
// against base. Documents that cannot be parsed yield an empty Page.
func Parse(body []byte, base *url.URL) Page {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return Page{}
	}

	var p Page
	seen := map[string]bool{}
	walk(doc, false, func(n *html.Node, inAttachment bool) {
		switch n.Data {
		case "source":
			if src := attr(n, "src"); src != "" {
				p.Videos = append(p.Videos, MediaRef{Kind: KindVideo, URL: resolve(base, src), Quality: quality(n)})
			}
		case "track":
			if p.Subtitle == nil && attr(n, "kind") == "subtitles" {
				if src := attr(n, "src"); src != "" {
					p.Subtitle = &MediaRef{Kind: KindSubtitle, URL: resolve(base, src)}
				}
			}
		case "a":
			href := attr(n, "href")
			if href == "" {
				return
			}
			if inAttachment && p.Attachment == nil {
				p.Attachment = &MediaRef{Kind: KindAttachment, URL: resolve(base, href)}
			}
			if strings.Contains(href, ".rar") {
				u := resolve(base, href)
				if !seen[u] {
					seen[u] = true
					p.Archives = append(p.Archives, MediaRef{Kind: KindArchive, URL: u})
				}
			}
		}
	})
	return p
}

// DownloadURLs returns every downloadable URL in body: videos, subtitle,
// attachment and .rar/.zip links, de-duplicated in document order.
func DownloadURLs(body []byte, base *url.URL) []string {
	p := Parse(body, base)

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}
	var zips []string
	walk(doc, false, func(n *html.Node, _ bool) {
		if n.Data != "a" {
			return
		}
		if href := attr(n, "href"); strings.Contains(href, ".zip") {
			zips = append(zips, resolve(base, href))
		}
	})

	var urls []string
	seen := map[string]bool{}
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, ref := range p.All() {
		add(ref.URL)
	}
	for _, u := range zips {
		add(u)
	}
	return urls
}

// SelectVideo picks the HQ variant, falling back to the first reference.
// It reports false when there are no videos at all.
func SelectVideo(videos []MediaRef) (MediaRef, bool) {
	if len(videos) == 0 {
		return MediaRef{}, false
	}
	for _, v := range videos {
		if strings.Contains(v.URL, HQMarker) {
			return v, true
		}
	}
	return videos[0], true
}

func walk(n *html.Node, inAttachment bool, visit func(*html.Node, bool)) {
	if n.Type == html.ElementNode {
		visit(n, inAttachment)
		if hasClass(n, AttachmentClass) {
			inAttachment = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, inAttachment, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(attr(n, "class")), class)
}

func quality(n *html.Node) string {
	for _, key := range []string{"label", "res", "size"} {
		if v := attr(n, key); v != "" {
			return v
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
