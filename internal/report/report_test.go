package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/downloader"
)

func sampleInfo() *course.Info {
	return &course.Info{
		Link:   "https://maktabkhooneh.org/course/go-101/",
		Course: course.Course{Title: "Go 101"},
		Chapters: course.Chapters{Chapters: []course.Chapter{
			{ID: 1, Title: "Basics", Units: []course.Unit{
				{ID: 10, Title: "Hello", Type: "lecture", Attachment: true, Status: course.Flag{Bool: true}},
				{ID: 11, Title: "Quiz", Type: "quiz", ProjectRequired: true, Description: "graded"},
			}},
		}},
	}
}

func TestExportCourse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Go 101", "Go 101_info.xlsx")
	require.NoError(t, ExportCourse(path, sampleInfo()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, CourseColumns, rows[0])
	assert.Equal(t, []string{"Basics", "Hello", "lecture", "", "Yes", "No", "Active"}, rows[1])
	assert.Equal(t, []string{"Basics", "Quiz", "quiz", "graded", "No", "Yes", "Inactive"}, rows[2])
}

func TestSaveLinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	units := []downloader.UnitLinks{
		{Chapter: "Basics", Unit: "Hello", Links: []string{"https://cdn/a_hq.mp4", "https://cdn/a.vtt"}},
		{Chapter: "Basics", Unit: "Quiz", Err: errors.New("fetch unit page: 404")},
		{Chapter: "Advanced", Unit: "Notes", Links: []string{"https://cdn/n.rar"}},
	}
	require.NoError(t, SaveLinks(path, sampleInfo(), units))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `# Course: Go 101
# Link: https://maktabkhooneh.org/course/go-101/

# Chapter: Basics
https://cdn/a_hq.mp4
https://cdn/a.vtt
# Quiz: fetch unit page: 404
# Chapter: Advanced
https://cdn/n.rar
`, string(got))
}
