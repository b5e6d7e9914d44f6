// Package course models the course tree returned by the platform API and
// resolves course links into it.
package course

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Unit types the download engine treats specially.
const (
	TypeLecture    = "lecture"
	TypeText       = "text"
	TypeAssignment = "assignment"
	TypeQuiz       = "quiz"
)

var (
	// ErrMissingID is returned when a chapter or unit arrives without an id.
	ErrMissingID = errors.New("missing id")
)

// Course is the course header.
type Course struct {
	SlugID        *int64  `json:"slug_id"`
	Slug          string  `json:"slug"`
	VersionNumber *int64  `json:"version_number"`
	Level         *string `json:"level"`
	Title         string  `json:"title"`
	Heading       string  `json:"heading"`
	Type          string  `json:"type"`
	Description   string  `json:"description"`
}

// Flag is a field the API sends either as a boolean or as a string.
type Flag struct {
	Bool bool
	Text string // set when the wire value was a string
}

// String renders the flag as it appeared on the wire.
func (f Flag) String() string {
	if f.Text != "" {
		return f.Text
	}
	return strconv.FormatBool(f.Bool)
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Flag{Text: s}
		if b, err := strconv.ParseBool(s); err == nil {
			f.Bool = b
		}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("flag: %w", err)
	}
	*f = Flag{Bool: b}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f.Text != "" {
		return json.Marshal(f.Text)
	}
	return json.Marshal(f.Bool)
}

// Number is a numeric field the API sometimes sends as a string.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*n = "0"
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("number: %w", err)
		}
		*n = Number(num.String())
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	if _, err := strconv.ParseFloat(string(n), 64); err == nil {
		return []byte(n), nil
	}
	return json.Marshal(string(n))
}

// Unit is a single lesson inside a chapter.
type Unit struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	Type            string `json:"type"`
	Description     string `json:"description"`
	Attachment      bool   `json:"attachment"`
	ProjectRequired bool   `json:"project_required"`
	Inactive        bool   `json:"inactive"`
	Status          Flag   `json:"status"`
}

// IsLecture reports whether the unit carries a video.
func (u Unit) IsLecture() bool { return u.Type == TypeLecture }

func (u *Unit) UnmarshalJSON(data []byte) error {
	type plain Unit
	wire := struct {
		ID *int64 `json:"id"`
		*plain
	}{plain: (*plain)(u)}
	u.Status = Flag{Bool: true}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.ID == nil {
		return fmt.Errorf("unit %q: %w", u.Title, ErrMissingID)
	}
	u.ID = *wire.ID
	return nil
}

// Chapter is an ordered group of units.
type Chapter struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	Units []Unit `json:"unit_set"`
}

func (c *Chapter) UnmarshalJSON(data []byte) error {
	type plain Chapter
	wire := struct {
		ID *int64 `json:"id"`
		*plain
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.ID == nil {
		return fmt.Errorf("chapter %q: %w", c.Title, ErrMissingID)
	}
	c.ID = *wire.ID
	if c.Units == nil {
		c.Units = []Unit{}
	}
	return nil
}

// Chapters is the chapter listing of a course.
type Chapters struct {
	TotalWorth Number    `json:"total_worth"`
	Chapters   []Chapter `json:"chapters"`
}

// Info is everything known about a course: its normalized link, header and
// chapter tree.
type Info struct {
	Link     string   `json:"link"`
	Course   Course   `json:"course"`
	Chapters Chapters `json:"chapters"`
}

// UnitURL returns the page URL of unit u inside chapter ch.
func (i *Info) UnitURL(ch Chapter, u Unit) string {
	return fmt.Sprintf("%s%s-ch%d/%s/", i.Link, ch.Slug, ch.ID, u.Slug)
}

// UnitCount returns the number of units across all chapters.
func (i *Info) UnitCount() int {
	n := 0
	for _, ch := range i.Chapters.Chapters {
		n += len(ch.Units)
	}
	return n
}
