// Package ledger keeps the per-unit download status of a course in an .xlsx
// workbook next to the downloaded files.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/keanucz/maktabdl/internal/course"
	"github.com/keanucz/maktabdl/internal/layout"
	"github.com/keanucz/maktabdl/internal/logging"
)

// Status is the download state of a unit.
type Status string

const (
	Pending       Status = "Pending"
	AlreadyExists Status = "Already Exists"
	Downloaded    Status = "Downloaded"
	Failed        Status = "Failed"
	NoContent     Status = "No Content"
)

const (
	sheet      = "Sheet1"
	timeLayout = time.RFC3339
)

// Columns is the header row of the workbook.
var Columns = []string{"Chapter", "Unit", "Path", "Status", "Download Time", "File Size", "Error", "Run", "Folder"}

// ErrBadHeader is returned when a workbook does not start with Columns.
var ErrBadHeader = errors.New("ledger: unexpected header row")

// Entry is one row of the ledger. Rows are keyed by Folder and Unit.
type Entry struct {
	Chapter   string // chapter title
	Unit      string
	Path      string
	Status    Status
	UpdatedAt time.Time
	Size      int64
	Error     string
	RunID     string
	Folder    string // chapter directory name, see ChapterName
}

type key struct {
	chapter string
	unit    string
}

// Ledger is the in-memory table. It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	index   map[key]int

	runID string
	log   logging.Logger
	now   func() time.Time
	sizer Sizer
}

// Sizer reports the expected size of the file planned at path for unit ui
// of chapter ci. ok is false when the size cannot be determined.
type Sizer func(ci, ui int, path string) (size int64, ok bool)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for ignored updates.
func WithLogger(l logging.Logger) Option {
	return func(lg *Ledger) { lg.log = logging.OrDiscard(l) }
}

// WithRunID stamps updated rows with id instead of a random one.
func WithRunID(id string) Option {
	return func(lg *Ledger) { lg.runID = id }
}

// WithSizer makes the existence pre-check compare a present file against
// the size s reports, as a download would. Without a sizer any non-empty
// file counts as present.
func WithSizer(s Sizer) Option {
	return func(lg *Ledger) { lg.sizer = s }
}

// WithClock sets the time source for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) { lg.now = now }
}

func newLedger(opts []Option) *Ledger {
	l := &Ledger{
		index: map[key]int{},
		runID: uuid.NewString(),
		log:   logging.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ChapterName is the key a chapter is recorded under. It matches the
// chapter's directory name, so chapters sharing a title stay apart.
func ChapterName(ci int, title string) string {
	return fmt.Sprintf("%d_%s", ci+1, layout.Sanitize(title))
}

// Initialize builds a ledger with one row per unit of info. Units whose
// planned file is already present start as AlreadyExists.
func Initialize(info *course.Info, planner layout.Planner, opts ...Option) *Ledger {
	l := newLedger(opts)
	l.addMissing(info, planner)
	return l
}

// Open loads the ledger at path and appends rows for units it does not
// know. A missing or unreadable workbook yields a fresh ledger.
func Open(path string, info *course.Info, planner layout.Planner, opts ...Option) (*Ledger, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Initialize(info, planner, opts...), nil
	}
	l, err := Load(path, opts...)
	if err != nil {
		fresh := Initialize(info, planner, opts...)
		fresh.log.Warn("Ignoring unreadable ledger", "path", path, "err", err)
		return fresh, nil
	}
	l.addMissing(info, planner)
	return l, nil
}

func (l *Ledger) addMissing(info *course.Info, planner layout.Planner) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ci, ch := range info.Chapters.Chapters {
		chapter := ChapterName(ci, ch.Title)
		for ui, u := range ch.Units {
			plan := planner.Plan(info.Course.Title, ci, ch.Title, ui, u.Title, u.Type, false)
			k := key{chapter, plan.Stem}
			if _, ok := l.index[k]; ok {
				continue
			}

			e := Entry{Chapter: ch.Title, Folder: chapter, Unit: plan.Stem, Status: Pending, RunID: l.runID}
			candidates := []string{plan.Page()}
			if u.IsLecture() {
				subtitled := planner.Plan(info.Course.Title, ci, ch.Title, ui, u.Title, u.Type, true)
				candidates = []string{subtitled.Video("mp4"), plan.Video("mp4")}
			}
			e.Path = candidates[len(candidates)-1]
			for _, c := range candidates {
				fi, err := os.Stat(c)
				if err != nil || fi.Size() == 0 {
					continue
				}
				e.Path = c
				if l.sizer != nil {
					if want, ok := l.sizer(ci, ui, c); !ok || want != fi.Size() {
						break
					}
				}
				e.Status, e.Size = AlreadyExists, fi.Size()
				break
			}
			l.index[k] = len(l.entries)
			l.entries = append(l.entries, e)
		}
	}
}

// Update overwrites the status of the row of unit in the chapter folder
// chapter. Unknown keys are logged
// and ignored; the return value reports whether a row was updated.
func (l *Ledger) Update(chapter, unit string, status Status, size int64, cause error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[key{chapter, unit}]
	if !ok {
		l.log.Warn("No ledger entry for unit", "chapter", chapter, "unit", unit)
		return false
	}
	e := &l.entries[i]
	e.Status = status
	e.Size = size
	e.UpdatedAt = l.now()
	e.RunID = l.runID
	e.Error = ""
	if cause != nil {
		e.Error = cause.Error()
	}
	return true
}

// SetPath records where a unit's main file was written.
func (l *Ledger) SetPath(chapter, unit, path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[key{chapter, unit}]
	if ok {
		l.entries[i].Path = path
	}
	return ok
}

// Get returns the row for (chapter, unit).
func (l *Ledger) Get(chapter, unit string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[key{chapter, unit}]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Entries returns a copy of all rows in order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Counts tallies rows by status.
func (l *Ledger) Counts() map[Status]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := map[Status]int{}
	for _, e := range l.entries {
		counts[e.Status]++
	}
	return counts
}

// Save writes the ledger as a workbook at path.
func (l *Ledger) Save(path string) error {
	rows := l.Entries()

	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for i, e := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		updated := ""
		if !e.UpdatedAt.IsZero() {
			updated = e.UpdatedAt.Format(timeLayout)
		}
		row := []any{e.Chapter, e.Unit, e.Path, string(e.Status), updated, e.Size, e.Error, e.RunID, e.Folder}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write ledger row %d: %w", i+1, err)
		}
	}
	_ = f.SetColWidth(sheet, "A", "C", 40)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save ledger %s: %w", path, err)
	}
	return nil
}

// Load reads a workbook written by Save.
func Load(path string, opts ...Option) (*Ledger, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrBadHeader
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if len(rows) == 0 || !slices.Equal(pad(rows[0], len(Columns)), Columns) {
		return nil, ErrBadHeader
	}

	l := newLedger(opts)
	for _, r := range rows[1:] {
		r = pad(r, len(Columns))
		e := Entry{
			Chapter: r[0],
			Unit:    r[1],
			Path:    r[2],
			Status:  Status(r[3]),
			Error:   r[6],
			RunID:   r[7],
			Folder:  r[8],
		}
		if e.Folder == "" {
			e.Folder = e.Chapter
		}
		if r[4] != "" {
			if t, err := time.Parse(timeLayout, r[4]); err == nil {
				e.UpdatedAt = t
			}
		}
		if r[5] != "" {
			if n, err := strconv.ParseFloat(r[5], 64); err == nil {
				e.Size = int64(n)
			}
		}
		k := key{e.Folder, e.Unit}
		if _, dup := l.index[k]; dup || (e.Folder == "" && e.Unit == "") {
			continue
		}
		l.index[k] = len(l.entries)
		l.entries = append(l.entries, e)
	}
	return l, nil
}

func pad(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	return append(slices.Clone(row), make([]string, n-len(row))...)
}
