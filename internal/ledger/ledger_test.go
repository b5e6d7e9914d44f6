package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/layout"
)

func sampleInfo() *course.Info {
	return &course.Info{
		Link:   "https://maktabkhooneh.org/course/go-101/",
		Course: course.Course{Title: "Go 101"},
		Chapters: course.Chapters{Chapters: []course.Chapter{
			{ID: 1, Title: "Basics", Slug: "basics", Units: []course.Unit{
				{ID: 10, Title: "Hello", Slug: "hello", Type: course.TypeLecture},
				{ID: 11, Title: "Notes", Slug: "notes", Type: course.TypeText},
			}},
		}},
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
}

func TestInitializePlansRows(t *testing.T) {
	p := layout.Planner{Root: t.TempDir()}
	l := Initialize(sampleInfo(), p, WithRunID("run-1"))

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Basics", entries[0].Chapter)
	assert.Equal(t, "1_Basics", entries[0].Folder)
	assert.Equal(t, "1_Hello", entries[0].Unit)
	assert.Equal(t, Pending, entries[0].Status)
	assert.Equal(t, filepath.Join(p.Root, "Go 101", "1_Basics", "1_Hello.mp4"), entries[0].Path)
	assert.Equal(t, filepath.Join(p.Root, "Go 101", "1_Basics", "2_Notes.html"), entries[1].Path)
	assert.Equal(t, "run-1", entries[1].RunID)
}

func TestInitializeDetectsExistingFiles(t *testing.T) {
	p := layout.Planner{Root: t.TempDir()}
	video := p.Plan("Go 101", 0, "Basics", 0, "Hello", course.TypeLecture, true).Video("mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(video), 0o755))
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o644))

	page := p.Plan("Go 101", 0, "Basics", 1, "Notes", course.TypeText, false).Page()
	require.NoError(t, os.WriteFile(page, nil, 0o644))

	l := Initialize(sampleInfo(), p)

	e, ok := l.Get("1_Basics", "1_Hello")
	require.True(t, ok)
	assert.Equal(t, AlreadyExists, e.Status)
	assert.Equal(t, video, e.Path)
	assert.Equal(t, int64(5), e.Size)

	e, ok = l.Get("1_Basics", "2_Notes")
	require.True(t, ok)
	assert.Equal(t, Pending, e.Status, "empty files do not count")
}

func TestInitializeComparesExpectedSize(t *testing.T) {
	p := layout.Planner{Root: t.TempDir()}
	video := p.Plan("Go 101", 0, "Basics", 0, "Hello", course.TypeLecture, true).Video("mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(video), 0o755))
	require.NoError(t, os.WriteFile(video, []byte("partial"), 0o644))

	var asked []string
	sizer := func(ci, ui int, path string) (int64, bool) {
		asked = append(asked, path)
		if ci == 0 && ui == 0 {
			return 4096, true
		}
		return 0, false
	}

	l := Initialize(sampleInfo(), p, WithSizer(sizer))
	e, ok := l.Get("1_Basics", "1_Hello")
	require.True(t, ok)
	assert.Equal(t, Pending, e.Status, "a truncated file is not complete")
	assert.Equal(t, video, e.Path)
	assert.Equal(t, []string{video}, asked, "only present files are checked")

	l = Initialize(sampleInfo(), p, WithSizer(func(int, int, string) (int64, bool) {
		return int64(len("partial")), true
	}))
	e, _ = l.Get("1_Basics", "1_Hello")
	assert.Equal(t, AlreadyExists, e.Status)

	l = Initialize(sampleInfo(), p, WithSizer(func(int, int, string) (int64, bool) { return 0, false }))
	e, _ = l.Get("1_Basics", "1_Hello")
	assert.Equal(t, Pending, e.Status, "unknown remote size")
}

func TestChaptersSharingATitleStayApart(t *testing.T) {
	dir := t.TempDir()
	p := layout.Planner{Root: dir}
	info := sampleInfo()
	info.Chapters.Chapters = append(info.Chapters.Chapters, course.Chapter{
		ID: 2, Title: "Basics", Units: []course.Unit{{ID: 20, Title: "Hello", Type: course.TypeLecture}},
	})

	l := Initialize(info, p)
	require.Len(t, l.Entries(), 3)
	require.True(t, l.Update("2_Basics", "1_Hello", Downloaded, 7, nil))
	require.NoError(t, l.Save(p.LedgerPath("Go 101")))

	loaded, err := Load(p.LedgerPath("Go 101"))
	require.NoError(t, err)
	first, ok := loaded.Get("1_Basics", "1_Hello")
	require.True(t, ok)
	second, ok := loaded.Get("2_Basics", "1_Hello")
	require.True(t, ok)
	assert.Equal(t, "Basics", first.Chapter)
	assert.Equal(t, "Basics", second.Chapter)
	assert.Equal(t, Pending, first.Status)
	assert.Equal(t, Downloaded, second.Status)
}

func TestUpdateUnknownKeyDoesNotCreate(t *testing.T) {
	l := Initialize(sampleInfo(), layout.Planner{Root: t.TempDir()})

	assert.False(t, l.Update("9_Nope", "1_Hello", Downloaded, 10, nil))
	assert.False(t, l.Update("1_Basics", "7_Missing", Downloaded, 10, nil))
	assert.Len(t, l.Entries(), 2)
	assert.False(t, l.SetPath("9_Nope", "1_Hello", "/x"))
}

func TestUpdateOverwrites(t *testing.T) {
	l := Initialize(sampleInfo(), layout.Planner{Root: t.TempDir()}, WithClock(fixedClock), WithRunID("run-2"))

	require.True(t, l.Update("1_Basics", "1_Hello", Failed, 0, errors.New("boom")))
	require.True(t, l.Update("1_Basics", "1_Hello", Downloaded, 2048, nil))

	e, _ := l.Get("1_Basics", "1_Hello")
	assert.Equal(t, Downloaded, e.Status)
	assert.Equal(t, int64(2048), e.Size)
	assert.Empty(t, e.Error)
	assert.Equal(t, fixedClock(), e.UpdatedAt)
	assert.Equal(t, "run-2", e.RunID)
	assert.Equal(t, map[Status]int{Downloaded: 1, Pending: 1}, l.Counts())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "Go 101_download_log.xlsx")

	l := Initialize(sampleInfo(), layout.Planner{Root: dir}, WithClock(fixedClock), WithRunID("run-3"))
	l.Update("1_Basics", "1_Hello", Downloaded, 123456789012, nil)
	l.Update("1_Basics", "2_Notes", Failed, 0, errors.New("page: 500"))
	require.NoError(t, l.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, l.Entries(), loaded.Entries())
}

func TestOpenAppendsUnknownUnits(t *testing.T) {
	dir := t.TempDir()
	p := layout.Planner{Root: dir}
	path := p.LedgerPath("Go 101")

	first := Initialize(sampleInfo(), p)
	first.Update("1_Basics", "1_Hello", Downloaded, 10, nil)
	require.NoError(t, first.Save(path))

	info := sampleInfo()
	info.Chapters.Chapters = append(info.Chapters.Chapters, course.Chapter{
		ID: 2, Title: "More", Units: []course.Unit{{ID: 20, Title: "Quiz", Type: course.TypeQuiz}},
	})

	l, err := Open(path, info, p)
	require.NoError(t, err)
	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, Downloaded, entries[0].Status)
	assert.Equal(t, "More", entries[2].Chapter)
	assert.Equal(t, "2_More", entries[2].Folder)
	assert.Equal(t, "1_Quiz", entries[2].Unit)
}

func TestOpenMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	p := layout.Planner{Root: dir}

	l, err := Open(filepath.Join(dir, "none.xlsx"), sampleInfo(), p)
	require.NoError(t, err)
	assert.Len(t, l.Entries(), 2)

	bad := filepath.Join(dir, "bad.xlsx")
	require.NoError(t, os.WriteFile(bad, []byte("not a workbook"), 0o644))
	l, err = Open(bad, sampleInfo(), p)
	require.NoError(t, err)
	assert.Len(t, l.Entries(), 2)

	_, err = Load(bad)
	assert.Error(t, err)
}
