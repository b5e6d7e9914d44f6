package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/keanucz/maktabdl/internal/config"
	"github.com/keanucz/maktabdl/internal/session"
	"github.com/keanucz/maktabdl/internal/transport"
)

// errNoSession is returned when no cookies exist and no credentials can be
// obtained.
var errNoSession = errors.New("no saved session: run `maktabdl login` first")

// newClient builds the HTTP session from cfg, loading saved cookies when the
// cookie file exists. It reports whether any cookie was loaded.
func newClient(cfg *config.Config) (*transport.Client, bool, error) {
	jar, err := session.NewJar()
	if err != nil {
		return nil, false, err
	}

	loaded := 0
	if _, statErr := os.Stat(cfg.CookiesPath); statErr == nil {
		loaded, err = session.LoadCookies(cfg.CookiesPath, jar, cfg.BaseURL)
		if err != nil {
			return nil, false, err
		}
		Logger.Debug("loaded cookies", "path", cfg.CookiesPath, "count", loaded)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = cfg.Timeout
	proxy, err := cfg.ProxyURL()
	if err != nil {
		return nil, false, err
	}
	if proxy != nil {
		tr.Proxy = http.ProxyURL(proxy)
	}

	opts := []transport.Option{
		transport.WithLogger(Logger),
		transport.WithMaxAttempts(cfg.MaxAttempts),
		transport.WithBackoff(cfg.RateLimitBackoff),
	}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, transport.WithRateLimit(cfg.RequestsPerSecond))
	}
	client, err := transport.New(&http.Client{Transport: tr, Jar: jar}, cfg.BaseURL, opts...)
	if err != nil {
		return nil, false, err
	}
	return client, loaded > 0, nil
}

// authenticatedClient returns a client with a usable session, logging in
// with configured or prompted credentials when no cookies were saved.
func authenticatedClient(ctx context.Context, cfg *config.Config) (*transport.Client, error) {
	client, ok, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if ok {
		return client, nil
	}

	Logger.Warn("cookies file not found, logging in", "path", cfg.CookiesPath)
	if err := login(ctx, client, cfg, os.Stdin, os.Stderr); err != nil {
		return nil, err
	}
	return client, nil
}

// login authenticates client and saves its cookies to cfg.CookiesPath.
func login(ctx context.Context, client *transport.Client, cfg *config.Config, in io.Reader, out io.Writer) error {
	username, password := cfg.Username, cfg.Password
	reader := bufio.NewReader(in)
	if username == "" {
		fmt.Fprint(out, "Enter Username: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return errNoSession
		}
		username = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Fprint(out, "Enter Password: ")
		p, err := readPassword(reader, in)
		fmt.Fprintln(out)
		if err != nil {
			return errNoSession
		}
		password = p
	}
	if username == "" || password == "" {
		return errNoSession
	}

	user, err := session.Login(ctx, client, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	Logger.Info("logged in", "user", username, "id", deref(user.UserID))

	if err := session.SaveCookies(cfg.CookiesPath, client.Cookies()); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	Logger.Info("cookies saved", "path", cfg.CookiesPath)
	return nil
}

func readPassword(buffered *bufio.Reader, in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return strings.TrimSpace(string(b)), err
	}
	line, err := buffered.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func deref(p *int64) any {
	if p == nil {
		return "-"
	}
	return *p
}
