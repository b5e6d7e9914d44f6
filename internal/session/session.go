// Package session authenticates against the platform and persists the
// resulting cookies between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/net/publicsuffix"

	"github.com/keanucz/maktabdl/internal/transport"
)

var (
	// ErrUserNotFound means the account does not exist and must sign up.
	ErrUserNotFound = errors.New("user does not exist")
	// ErrInvalidUsername means the username is neither an email nor a phone number.
	ErrInvalidUsername = errors.New("username has an invalid format")
	// ErrLoginRejected means the platform refused the credentials.
	ErrLoginRejected = errors.New("login rejected")
)

const (
	authAPI          = "/api/v1/auth/"
	recaptchaField   = "g-recaptcha-response"
	recaptchaDummy   = "recaptcha-token"
	msgPasswordStep  = "get-pass"
	msgSignupNeeded  = "get-token"
	msgInvalidFormat = "invalid-format"
	msgLoggedIn      = "logined"
)

// Client is the part of *transport.Client used to log in.
type Client interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
	Cookies() []*http.Cookie
	SetHeader(name, value string)
	BaseURL() string
}

// UserInfo is returned by a successful login.
type UserInfo struct {
	IsStaff         bool    `json:"is_staff"`
	UserID          *int64  `json:"user_id"`
	Email           *string `json:"email"`
	Phone           *string `json:"phone"`
	BusinessAdmin   bool    `json:"business_admin"`
	TeamAdmin       bool    `json:"team_admin"`
	BusinessStudent bool    `json:"business_student"`
}

type loginResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewJar returns a cookie jar aware of public suffixes.
func NewJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Login checks that username exists and then authenticates with password.
// On success the session cookies live in the client's jar.
func Login(ctx context.Context, c Client, username, password string) (*UserInfo, error) {
	base := c.BaseURL()

	var check loginResponse
	if err := post(ctx, c, base+authAPI+"check-active-user", url.Values{
		"tessera":      {username},
		recaptchaField: {recaptchaDummy},
	}, &check); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	switch check.Message {
	case msgPasswordStep:
	case msgSignupNeeded:
		return nil, ErrUserNotFound
	case msgInvalidFormat:
		return nil, ErrInvalidUsername
	default:
		return nil, fmt.Errorf("%w: %s", ErrLoginRejected, check.Message)
	}

	token := cookieValue(c.Cookies(), transport.CSRFCookie)
	if token != "" {
		c.SetHeader(transport.CSRFHeader, token)
	}

	resp, err := c.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    base + authAPI + "login-authentication",
		Form: url.Values{
			"csrfmiddlewaretoken": {token},
			"tessera":             {username},
			"hidden_username":     {username},
			"password":            {password},
			recaptchaField:        {recaptchaDummy},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	var auth loginResponse
	if err := resp.JSON(&auth); err != nil {
		return nil, err
	}
	if auth.Message != msgLoggedIn {
		return nil, fmt.Errorf("%w: %s", ErrLoginRejected, auth.Message)
	}

	var user UserInfo
	if err := resp.JSON(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func post(ctx context.Context, c Client, rawURL string, form url.Values, v any) error {
	resp, err := c.Do(ctx, &transport.Request{Method: http.MethodPost, URL: rawURL, Form: form})
	if err != nil {
		return err
	}
	return resp.JSON(v)
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, ck := range cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// LoadCookies reads a name to value JSON object from path into jar for the
// site at base. It returns the number of cookies loaded.
func LoadCookies(path string, jar http.CookieJar, base string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return 0, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	u, err := url.Parse(base)
	if err != nil {
		return 0, err
	}

	cookies := make([]*http.Cookie, 0, len(values))
	for name, value := range values {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(u, cookies)
	return len(cookies), nil
}

// SaveCookies writes cookies to path as a name to value JSON object.
func SaveCookies(path string, cookies []*http.Cookie) error {
	values := make(map[string]string, len(cookies))
	for _, ck := range cookies {
		values[ck.Name] = ck.Value
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
