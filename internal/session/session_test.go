package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanucz/maktabdl/internal/transport"
)

func newClient(t *testing.T, handler http.HandlerFunc) *transport.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := NewJar()
	require.NoError(t, err)
	hc := srv.Client()
	hc.Jar = jar

	c, err := transport.New(hc, srv.URL)
	require.NoError(t, err)
	return c
}

func TestLogin(t *testing.T) {
	var gotToken, gotHeader, gotPassword string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.URL.Path {
		case "/api/v1/auth/check-active-user":
			http.SetCookie(w, &http.Cookie{Name: transport.CSRFCookie, Value: "tok", Path: "/"})
			io.WriteString(w, `{"status": "success", "message": "get-pass"}`)
		case "/api/v1/auth/login-authentication":
			gotToken = r.PostForm.Get("csrfmiddlewaretoken")
			gotPassword = r.PostForm.Get("password")
			gotHeader = r.Header.Get(transport.CSRFHeader)
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess", Path: "/"})
			io.WriteString(w, `{"status": "success", "message": "logined", "user_id": 42, "email": "me@example.com"}`)
		default:
			http.NotFound(w, r)
		}
	})

	user, err := Login(context.Background(), c, "me@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, user.UserID)
	assert.Equal(t, int64(42), *user.UserID)
	assert.Equal(t, "me@example.com", *user.Email)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, "tok", gotHeader)
	assert.Equal(t, "secret", gotPassword)

	var names []string
	for _, ck := range c.Cookies() {
		names = append(names, ck.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"csrftoken", "sessionid"}, names)
}

func TestLoginCheckFailures(t *testing.T) {
	tests := []struct {
		message string
		want    error
	}{
		{"get-token", ErrUserNotFound},
		{"invalid-format", ErrInvalidUsername},
		{"something-else", ErrLoginRejected},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"status": "failed", "message": "`+tt.message+`"}`)
			})
			_, err := Login(context.Background(), c, "someone", "pw")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/check-active-user" {
			io.WriteString(w, `{"status": "success", "message": "get-pass"}`)
			return
		}
		io.WriteString(w, `{"status": "failed", "message": "wrong-password"}`)
	})
	_, err := Login(context.Background(), c, "me@example.com", "bad")
	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.Contains(t, err.Error(), "wrong-password")
}

func TestCookieFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "cookies.json")
	require.NoError(t, SaveCookies(path, []*http.Cookie{
		{Name: "csrftoken", Value: "abc"},
		{Name: "sessionid", Value: "xyz"},
	}))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	jar, err := NewJar()
	require.NoError(t, err)
	n, err := LoadCookies(path, jar, "https://maktabkhooneh.org")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u, _ := url.Parse("https://maktabkhooneh.org/course/x/")
	got := map[string]string{}
	for _, ck := range jar.Cookies(u) {
		got[ck.Name] = ck.Value
	}
	assert.Equal(t, map[string]string{"csrftoken": "abc", "sessionid": "xyz"}, got)
}

func TestLoadCookiesErrors(t *testing.T) {
	jar, err := NewJar()
	require.NoError(t, err)

	_, err = LoadCookies(filepath.Join(t.TempDir(), "missing.json"), jar, "https://maktabkhooneh.org")
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[1,2]"), 0o600))
	_, err = LoadCookies(bad, jar, "https://maktabkhooneh.org")
	assert.Error(t, err)
}
