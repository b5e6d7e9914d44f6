package course

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanucz/maktabdl/internal/transport"
)

func TestNormalizeLink(t *testing.T) {
	const base = "https://maktabkhooneh.org"
	tests := []struct {
		in   string
		want string
	}{
		{"https://maktabkhooneh.org/course/go-101/", "https://maktabkhooneh.org/course/go-101/"},
		{"http://maktabkhooneh.org/course/go-101", "https://maktabkhooneh.org/course/go-101/"},
		{"maktabkhooneh.org/course/go-101?utm=x#top", "https://maktabkhooneh.org/course/go-101/"},
		{"  https://maktabkhooneh.org/course/go-101#intro ", "https://maktabkhooneh.org/course/go-101/"},
		{"go-101", "https://maktabkhooneh.org/course/go-101/"},
		{"go-101/", "https://maktabkhooneh.org/course/go-101/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeLink(tt.in, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeLink("   ", base)
	assert.ErrorIs(t, err, ErrEmptyLink)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "go-101/", Slug("https://maktabkhooneh.org/course/go-101/"))
	assert.Equal(t, "inner/", Slug("https://x.org/course/outer/course/inner/"))
}

func TestUnitDefaultsAndFlexibleFields(t *testing.T) {
	var u Unit
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "title": "Intro", "extra": 1}`), &u))
	assert.Equal(t, int64(7), u.ID)
	assert.True(t, u.Status.Bool)
	assert.False(t, u.Attachment)
	assert.False(t, u.ProjectRequired)
	assert.False(t, u.Inactive)

	require.NoError(t, json.Unmarshal([]byte(`{"id": 8, "status": "locked"}`), &u))
	assert.Equal(t, "locked", u.Status.String())

	require.NoError(t, json.Unmarshal([]byte(`{"id": 9, "status": false}`), &u))
	assert.False(t, u.Status.Bool)
	assert.Equal(t, "false", u.Status.String())

	var cs Chapters
	require.NoError(t, json.Unmarshal([]byte(`{"total_worth": "12.5", "chapters": []}`), &cs))
	assert.Equal(t, Number("12.5"), cs.TotalWorth)
	require.NoError(t, json.Unmarshal([]byte(`{"total_worth": 40}`), &cs))
	assert.Equal(t, Number("40"), cs.TotalWorth)

	out, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"total_worth":40`)
}

func TestMissingIDRejected(t *testing.T) {
	var cs Chapters
	err := json.Unmarshal([]byte(`{"chapters": [{"title": "one", "unit_set": []}]}`), &cs)
	assert.ErrorIs(t, err, ErrMissingID)

	err = json.Unmarshal([]byte(`{"chapters": [{"id": 1, "unit_set": [{"title": "u"}]}]}`), &cs)
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestUnitURL(t *testing.T) {
	info := &Info{Link: "https://maktabkhooneh.org/course/go-101/"}
	got := info.UnitURL(Chapter{ID: 12, Slug: "basics"}, Unit{Slug: "hello"})
	assert.Equal(t, "https://maktabkhooneh.org/course/go-101/basics-ch12/hello/", got)
}

func newAPI(t *testing.T, handler http.HandlerFunc) (*Resolver, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := transport.New(srv.Client(), srv.URL)
	require.NoError(t, err)
	return NewResolver(c, srv.URL, nil), srv
}

func TestResolve(t *testing.T) {
	var paths []string
	r, srv := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/v1/courses/go-101/":
			io.WriteString(w, `{"slug": "go-101", "title": "Go 101", "slug_id": 3}`)
		case "/api/v1/courses/go-101/chapters/":
			io.WriteString(w, `{"total_worth": 1, "chapters": [
				{"id": 1, "title": "Basics", "slug": "basics", "unit_set": [
					{"id": 10, "title": "Hello", "slug": "hello", "type": "lecture"},
					{"id": 11, "title": "Notes", "slug": "notes", "type": "text", "attachment": true}
				]}
			]}`)
		default:
			http.NotFound(w, r)
		}
	})

	info, err := r.Resolve(context.Background(), "go-101")
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/v1/courses/go-101/", "/api/v1/courses/go-101/chapters/"}, paths)
	assert.Equal(t, srv.URL+"/course/go-101/", info.Link)
	assert.Equal(t, "Go 101", info.Course.Title)
	require.Len(t, info.Chapters.Chapters, 1)
	assert.Equal(t, 2, info.UnitCount())
	assert.True(t, info.Chapters.Chapters[0].Units[0].IsLecture())
	assert.True(t, info.Chapters.Chapters[0].Units[1].Attachment)
}

func TestResolveRejectsInvalidTree(t *testing.T) {
	r, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/courses/bad/" {
			io.WriteString(w, `{"title": "Bad"}`)
			return
		}
		io.WriteString(w, `{"chapters": [{"title": "no id"}]}`)
	})
	_, err := r.Resolve(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestResolveMissingCourse(t *testing.T) {
	r, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := r.Resolve(context.Background(), "nope")
	assert.True(t, transport.IsStatus(err, http.StatusNotFound))
}

func TestEnroll(t *testing.T) {
	var method, path string
	r, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		io.WriteString(w, `{"slug": "go-101", "title": "Go 101"}`)
	})
	c, err := r.Enroll(context.Background(), "go-101")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/v1/courses/go-101/enroll/", path)
	assert.Equal(t, "Go 101", c.Title)
}
