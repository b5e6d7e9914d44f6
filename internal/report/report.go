// Package report writes human-facing exports of a course: an info workbook
// and a plain list of download links.
package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/downloader"
)

const sheet = "Sheet1"

// CourseColumns is the header row of the course workbook.
var CourseColumns = []string{"Chapter", "Unit", "Type", "Description", "Has Attachment", "Project Required", "Status"}

// ExportCourse writes one row per unit of info to an .xlsx workbook at path.
func ExportCourse(path string, info *course.Info) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(CourseColumns))
	for i, c := range CourseColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	row := 2
	for _, ch := range info.Chapters.Chapters {
		for _, u := range ch.Units {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			values := []any{ch.Title, u.Title, u.Type, u.Description, yesNo(u.Attachment), yesNo(u.ProjectRequired), status(u)}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// SaveLinks writes the download links of every unit to path, grouped by
// chapter, one URL per line. Lines starting with '#' are headings.
func SaveLinks(path string, info *course.Info, units []downloader.UnitLinks) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "# Course: %s\n", info.Course.Title)
	fmt.Fprintf(w, "# Link: %s\n\n", info.Link)

	chapter := ""
	for _, u := range units {
		if u.Chapter != chapter || chapter == "" {
			fmt.Fprintf(w, "# Chapter: %s\n", u.Chapter)
			chapter = u.Chapter
		}
		if u.Err != nil {
			fmt.Fprintf(w, "# %s: %v\n", u.Unit, u.Err)
			continue
		}
		for _, link := range u.Links {
			fmt.Fprintln(w, link)
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func status(u course.Unit) string {
	if u.Status.Text != "" || u.Status.Bool {
		return "Active"
	}
	return "Inactive"
}
