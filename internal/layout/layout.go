// Package layout maps courses, chapters and units to paths on disk.
//
// Every function here is pure: the same titles, indices and unit kind always
// produce the same paths, which is what makes re-runs idempotent.
package layout

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength caps a sanitized path component, in characters.
const MaxNameLength = 255

const (
	lectureKind  = "lecture"
	subtitleExt  = "vtt"
	pageExt      = "html"
	ledgerSuffix = "_download_log.xlsx"
	reportSuffix = "_info.xlsx"
	linksSuffix  = "_links.txt"
)

var (
	reserved   = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Sanitize makes name safe to use as a single path component.
func Sanitize(name string) string {
	name = norm.NFC.String(name)
	name = reserved.ReplaceAllString(name, "_")
	name = whitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled"
	}
	if r := []rune(name); len(r) > MaxNameLength {
		name = strings.TrimSpace(string(r[:MaxNameLength]))
	}
	return name
}

// Planner computes download targets below Root.
type Planner struct {
	Root string
}

// CourseDir returns the directory holding everything of a course.
func (p Planner) CourseDir(courseTitle string) string {
	return filepath.Join(p.Root, Sanitize(courseTitle))
}

// ChapterDir returns the directory of the chapter at zero-based index ci.
func (p Planner) ChapterDir(courseTitle string, ci int, chapterTitle string) string {
	return filepath.Join(p.CourseDir(courseTitle), fmt.Sprintf("%d_%s", ci+1, Sanitize(chapterTitle)))
}

// LedgerPath returns the course's progress workbook.
func (p Planner) LedgerPath(courseTitle string) string {
	return p.courseFile(courseTitle, ledgerSuffix)
}

// ReportPath returns the course's info workbook.
func (p Planner) ReportPath(courseTitle string) string {
	return p.courseFile(courseTitle, reportSuffix)
}

// LinksPath returns the course's download links file.
func (p Planner) LinksPath(courseTitle string) string {
	return p.courseFile(courseTitle, linksSuffix)
}

func (p Planner) courseFile(courseTitle, suffix string) string {
	return filepath.Join(p.CourseDir(courseTitle), Sanitize(courseTitle)+suffix)
}

// PlanUnitPath returns the base path, without extension, of the unit's main
// file.
func (p Planner) PlanUnitPath(courseTitle string, ci int, chapterTitle string, ui int, unitTitle, unitKind string, hasSubtitle bool) string {
	return p.Plan(courseTitle, ci, chapterTitle, ui, unitTitle, unitKind, hasSubtitle).Base
}

// Plan returns every target of a unit.
func (p Planner) Plan(courseTitle string, ci int, chapterTitle string, ui int, unitTitle, unitKind string, hasSubtitle bool) UnitPlan {
	chapterDir := p.ChapterDir(courseTitle, ci, chapterTitle)
	name := Sanitize(unitTitle)
	stem := fmt.Sprintf("%d_%s", ui+1, name)

	dir, base := chapterDir, filepath.Join(chapterDir, stem)
	if unitKind == lectureKind && hasSubtitle {
		dir = filepath.Join(chapterDir, name)
		base = filepath.Join(dir, name)
	}
	return UnitPlan{
		ChapterDir: chapterDir,
		Dir:        dir,
		Stem:       stem,
		Name:       name,
		Base:       base,
	}
}

// UnitPlan holds the planned locations of one unit.
type UnitPlan struct {
	ChapterDir string
	Dir        string // ChapterDir, or a folder named after a subtitled lecture
	Stem       string // "{index}_{title}"
	Name       string // sanitized unit title
	Base       string
}

// Video returns the video path for extension ext.
func (u UnitPlan) Video(ext string) string {
	return u.Base + "." + strings.TrimPrefix(ext, ".")
}

// Subtitle returns the subtitle path.
func (u UnitPlan) Subtitle() string {
	return u.Base + "." + subtitleExt
}

// Page returns the path the raw unit page is saved to.
func (u UnitPlan) Page() string {
	return u.Base + "." + pageExt
}

// Attachment returns the path for an attachment named name. Attachments
// always live in the chapter directory.
func (u UnitPlan) Attachment(name string) string {
	return filepath.Join(u.ChapterDir, u.Stem+"_"+Sanitize(name))
}

// Archive returns the path of the n-th archive linked from a page.
func (u UnitPlan) Archive(ext string, n int) string {
	name := strings.TrimSpace(strings.ReplaceAll(u.Stem, "_", " "))
	if n > 0 {
		name = fmt.Sprintf("%s (%d)", name, n+1)
	}
	return filepath.Join(u.ChapterDir, name+"."+strings.ToLower(strings.TrimPrefix(ext, ".")))
}
